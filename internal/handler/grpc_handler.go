package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
	"github.com/pesio-ai/be-qc-inspections/internal/service"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "qc.inspections.v1.InspectionsService"

// InspectionsServer is the gRPC surface. Messages are google.protobuf.Struct
// documents carrying the same JSON shapes as the HTTP API.
type InspectionsServer interface {
	CreateInspection(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetInspection(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatusProjection(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListInspections(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitCriterion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReopenCheckpoint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EscalateCheckpoint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignInspector(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelInspection(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectInspection(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAuditTrail(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportRoster(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpc func(InspectionsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// InspectionsServiceDesc registers an InspectionsServer with a grpc.Server.
var InspectionsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectionsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateInspection", InspectionsServer.CreateInspection),
		unary("GetInspection", InspectionsServer.GetInspection),
		unary("GetStatusProjection", InspectionsServer.GetStatusProjection),
		unary("ListInspections", InspectionsServer.ListInspections),
		unary("SubmitCriterion", InspectionsServer.SubmitCriterion),
		unary("ReopenCheckpoint", InspectionsServer.ReopenCheckpoint),
		unary("EscalateCheckpoint", InspectionsServer.EscalateCheckpoint),
		unary("AssignInspector", InspectionsServer.AssignInspector),
		unary("CancelInspection", InspectionsServer.CancelInspection),
		unary("RejectInspection", InspectionsServer.RejectInspection),
		unary("GetAuditTrail", InspectionsServer.GetAuditTrail),
		unary("ImportRoster", InspectionsServer.ImportRoster),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qc/inspections/v1/inspections.proto",
}

func unary(name string, call rpc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InspectionsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(InspectionsServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// GRPCHandler implements InspectionsServer over the inspection service.
type GRPCHandler struct {
	service *service.InspectionService
	log     *logger.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(service *service.InspectionService, log *logger.Logger) *GRPCHandler {
	return &GRPCHandler{
		service: service,
		log:     log.WithComponent("grpc"),
	}
}

// Register attaches the handler to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&InspectionsServiceDesc, h)
}

type idRequest struct {
	ID string `json:"id"`
}

type listRequest struct {
	Stage            inspection.Stage    `json:"stage"`
	Status           inspection.Status   `json:"status"`
	Priority         inspection.Priority `json:"priority"`
	InspectorID      string              `json:"inspector_id"`
	IncludeCancelled bool                `json:"include_cancelled"`
}

// CreateInspection starts an inspection from a roster entry
func (h *GRPCHandler) CreateInspection(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.CreateInspectionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		req.ActorID = actorFromContext(ctx)
	}

	insp, err := h.service.CreateInspection(ctx, &req)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(insp)
}

// GetInspection retrieves an inspection by id
func (h *GRPCHandler) GetInspection(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	insp, err := h.service.GetInspection(ctx, req.ID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(insp)
}

// GetStatusProjection returns the read model of one inspection
func (h *GRPCHandler) GetStatusProjection(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	proj, err := h.service.GetStatusProjection(ctx, req.ID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(proj)
}

// ListInspections lists inspections in priority order
func (h *GRPCHandler) ListInspections(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	list, err := h.service.ListInspections(ctx, inspection.Filter{
		Stage:            req.Stage,
		Status:           req.Status,
		Priority:         req.Priority,
		InspectorID:      req.InspectorID,
		IncludeCancelled: req.IncludeCancelled,
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{
		"inspections": list,
		"total":       len(list),
	})
}

// SubmitCriterion records one criterion result
func (h *GRPCHandler) SubmitCriterion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.SubmitCriterionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		req.ActorID = actorFromContext(ctx)
	}

	insp, err := h.service.SubmitCriterion(ctx, &req)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(insp)
}

// ReopenCheckpoint resets a failed checkpoint for rework
func (h *GRPCHandler) ReopenCheckpoint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.CheckpointActionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		req.ActorID = actorFromContext(ctx)
	}

	insp, err := h.service.ReopenCheckpoint(ctx, &req)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(insp)
}

// EscalateCheckpoint moves a failed checkpoint to requires_attention
func (h *GRPCHandler) EscalateCheckpoint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.CheckpointActionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		req.ActorID = actorFromContext(ctx)
	}

	insp, err := h.service.EscalateCheckpoint(ctx, &req)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(insp)
}

// AssignInspector sets the responsible inspector
func (h *GRPCHandler) AssignInspector(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.AssignInspectorRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		req.ActorID = actorFromContext(ctx)
	}

	insp, err := h.service.AssignInspector(ctx, &req)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(insp)
}

// CancelInspection cancels an inspection
func (h *GRPCHandler) CancelInspection(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.CancelInspectionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		req.ActorID = actorFromContext(ctx)
	}

	insp, err := h.service.CancelInspection(ctx, &req)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(insp)
}

// RejectInspection fails an inspection whose rework was declined
func (h *GRPCHandler) RejectInspection(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.RejectInspectionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		req.ActorID = actorFromContext(ctx)
	}

	insp, err := h.service.RejectInspection(ctx, &req)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(insp)
}

// GetAuditTrail returns the ordered event log of an inspection
func (h *GRPCHandler) GetAuditTrail(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	events, err := h.service.GetAuditTrail(ctx, req.ID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{"events": events})
}

// ImportRoster creates inspections for every member of an order
func (h *GRPCHandler) ImportRoster(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.ImportRosterRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.ActorID == "" {
		req.ActorID = actorFromContext(ctx)
	}

	res, err := h.service.ImportRoster(ctx, &req)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(res)
}

// ── Conversion helpers ───────────────────────────────────────────────────────

func fromStruct(in *structpb.Struct, dst any) error {
	raw, err := in.MarshalJSON()
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// mapErrorToGRPC maps service errors to gRPC status codes
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound, errors.ErrCodeTemplateNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidTemplate:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeConflict:
		return status.Error(codes.Aborted, msg)
	case errors.ErrCodeStageLocked, errors.ErrCodeAlreadyFinalized:
		return status.Error(codes.FailedPrecondition, msg)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
