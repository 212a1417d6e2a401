package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
	"github.com/pesio-ai/be-qc-inspections/internal/service"
)

// ActorHeader carries the acting user id when the request body omits it.
const ActorHeader = "X-Actor-ID"

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service *service.InspectionService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service *service.InspectionService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log,
	}
}

// RegisterRoutes mounts every inspection route on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/inspections", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListInspections(w, r)
		case http.MethodPost:
			h.CreateInspection(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/inspections/get", h.GetInspection)
	mux.HandleFunc("/api/v1/inspections/projection", h.GetProjection)
	mux.HandleFunc("/api/v1/inspections/current", h.GetCurrentCheckpoint)
	mux.HandleFunc("/api/v1/inspections/audit", h.GetAuditTrail)
	mux.HandleFunc("/api/v1/inspections/stats", h.GetStats)
	mux.HandleFunc("/api/v1/inspections/submit", h.SubmitCriterion)
	mux.HandleFunc("/api/v1/inspections/reopen", h.ReopenCheckpoint)
	mux.HandleFunc("/api/v1/inspections/escalate", h.EscalateCheckpoint)
	mux.HandleFunc("/api/v1/inspections/assign", h.AssignInspector)
	mux.HandleFunc("/api/v1/inspections/cancel", h.CancelInspection)
	mux.HandleFunc("/api/v1/inspections/reject", h.RejectInspection)
	mux.HandleFunc("/api/v1/inspections/priority", h.SetPriority)
	mux.HandleFunc("/api/v1/inspections/estimate", h.SetEstimatedCompletion)
	mux.HandleFunc("/api/v1/inspections/import", h.ImportRoster)
	mux.HandleFunc("/api/v1/templates", h.ListTemplates)
}

// ── Queries ──────────────────────────────────────────────────────────────────

// ListInspections handles list inspections HTTP requests
func (h *HTTPHandler) ListInspections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list, err := h.service.ListInspections(r.Context(), filterFromQuery(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"inspections": list,
		"total":       len(list),
	})
}

// GetInspection handles get inspection HTTP requests
func (h *HTTPHandler) GetInspection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	insp, err := h.service.GetInspection(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

// GetProjection returns the status projection of one inspection.
func (h *HTTPHandler) GetProjection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	proj, err := h.service.GetStatusProjection(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

// GetCurrentCheckpoint returns the checkpoint currently accepting results.
func (h *HTTPHandler) GetCurrentCheckpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cp, ok, err := h.service.CurrentCheckpoint(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body := map[string]any{"complete": !ok}
	if ok {
		body["checkpoint"] = cp
	}
	writeJSON(w, http.StatusOK, body)
}

// GetAuditTrail returns the append-only event log of an inspection.
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := h.service.GetAuditTrail(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// GetStats returns dashboard counts for the filtered inspections.
func (h *HTTPHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.service.Stats(r.Context(), filterFromQuery(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListTemplates returns the configured template sets.
func (h *HTTPHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sets, err := h.service.ListTemplateSets(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"template_sets": sets})
}

// ── Mutations ────────────────────────────────────────────────────────────────

// CreateInspection handles create inspection HTTP requests
func (h *HTTPHandler) CreateInspection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req service.CreateInspectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}

	insp, err := h.service.CreateInspection(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, insp)
}

// SubmitCriterion handles criterion result submissions
func (h *HTTPHandler) SubmitCriterion(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitCriterionRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}
	h.respond(w, r, func() (*inspection.Inspection, error) {
		return h.service.SubmitCriterion(r.Context(), &req)
	})
}

// ReopenCheckpoint handles checkpoint reopen requests
func (h *HTTPHandler) ReopenCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req service.CheckpointActionRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}
	h.respond(w, r, func() (*inspection.Inspection, error) {
		return h.service.ReopenCheckpoint(r.Context(), &req)
	})
}

// EscalateCheckpoint handles checkpoint escalation requests
func (h *HTTPHandler) EscalateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req service.CheckpointActionRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}
	h.respond(w, r, func() (*inspection.Inspection, error) {
		return h.service.EscalateCheckpoint(r.Context(), &req)
	})
}

// AssignInspector handles inspector assignment requests
func (h *HTTPHandler) AssignInspector(w http.ResponseWriter, r *http.Request) {
	var req service.AssignInspectorRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}
	h.respond(w, r, func() (*inspection.Inspection, error) {
		return h.service.AssignInspector(r.Context(), &req)
	})
}

// CancelInspection handles cancellation requests
func (h *HTTPHandler) CancelInspection(w http.ResponseWriter, r *http.Request) {
	var req service.CancelInspectionRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}
	h.respond(w, r, func() (*inspection.Inspection, error) {
		return h.service.CancelInspection(r.Context(), &req)
	})
}

// RejectInspection handles rejection requests
func (h *HTTPHandler) RejectInspection(w http.ResponseWriter, r *http.Request) {
	var req service.RejectInspectionRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}
	h.respond(w, r, func() (*inspection.Inspection, error) {
		return h.service.RejectInspection(r.Context(), &req)
	})
}

// SetPriority handles priority changes
func (h *HTTPHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	var req service.SetPriorityRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}
	h.respond(w, r, func() (*inspection.Inspection, error) {
		return h.service.SetPriority(r.Context(), &req)
	})
}

// SetEstimatedCompletion handles estimate changes
func (h *HTTPHandler) SetEstimatedCompletion(w http.ResponseWriter, r *http.Request) {
	var req service.SetEstimatedCompletionRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}
	h.respond(w, r, func() (*inspection.Inspection, error) {
		return h.service.SetEstimatedCompletion(r.Context(), &req)
	})
}

// ImportRoster creates inspections for every member of an order
func (h *HTTPHandler) ImportRoster(w http.ResponseWriter, r *http.Request) {
	var req service.ImportRosterRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(ActorHeader)
	}

	res, err := h.service.ImportRoster(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *HTTPHandler) respond(w http.ResponseWriter, r *http.Request, call func() (*inspection.Inspection, error)) {
	insp, err := call()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

func filterFromQuery(r *http.Request) inspection.Filter {
	q := r.URL.Query()
	includeCancelled, _ := strconv.ParseBool(q.Get("include_cancelled"))
	return inspection.Filter{
		Stage:            inspection.Stage(q.Get("stage")),
		Status:           inspection.Status(q.Get("status")),
		Priority:         inspection.Priority(q.Get("priority")),
		InspectorID:      q.Get("inspector_id"),
		IncludeCancelled: includeCancelled,
	}
}

type errorBody struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)

	body := errorBody{Code: code, Message: err.Error()}
	var coded *errors.Error
	if errors.As(err, &coded) {
		body.Message = coded.Message
		body.Field = coded.Field
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		body.Message = "internal error"
	}
	writeJSON(w, status, map[string]any{"error": body})
}

// httpStatus maps an error code to its HTTP status.
func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound, errors.ErrCodeTemplateNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict, errors.ErrCodeAlreadyFinalized:
		return http.StatusConflict
	case errors.ErrCodeStageLocked:
		return http.StatusLocked
	case errors.ErrCodeInvalidTemplate:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
