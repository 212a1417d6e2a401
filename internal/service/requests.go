package service

import (
	stderrors "errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// CreateInspectionRequest starts an inspection from a roster entry.
type CreateInspectionRequest struct {
	SubjectID             string              `json:"subject_id" validate:"required"`
	OrderNumber           string              `json:"order_number" validate:"required"`
	TemplateSetID         string              `json:"template_set_id" validate:"required"`
	Role                  string              `json:"role"`
	PriorityHint          inspection.Priority `json:"priority_hint" validate:"omitempty,oneof=low normal high urgent"`
	EstimatedCompletionAt *time.Time          `json:"estimated_completion_at"`
	ActorID               string              `json:"actor_id"`
}

// SubmitCriterionRequest records one criterion result. RequestID makes the
// call idempotent; ExpectedVersion, when non-zero, must match the stored
// version.
type SubmitCriterionRequest struct {
	InspectionID    string   `json:"inspection_id" validate:"required"`
	CheckpointID    string   `json:"checkpoint_id" validate:"required"`
	CriterionID     string   `json:"criterion_id" validate:"required"`
	Passed          bool     `json:"passed"`
	Notes           string   `json:"notes"`
	Evidence        []string `json:"evidence" validate:"omitempty,dive,required"`
	ActorID         string   `json:"actor_id" validate:"required"`
	RequestID       string   `json:"request_id"`
	ExpectedVersion int64    `json:"expected_version" validate:"gte=0"`
}

// CheckpointActionRequest targets one checkpoint; used by reopen and escalate.
type CheckpointActionRequest struct {
	InspectionID    string `json:"inspection_id" validate:"required"`
	CheckpointID    string `json:"checkpoint_id" validate:"required"`
	ActorID         string `json:"actor_id" validate:"required"`
	Reason          string `json:"reason"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

// AssignInspectorRequest assigns the responsible inspector. CanOverride is
// the caller's capability to replace a different inspector.
type AssignInspectorRequest struct {
	InspectionID    string `json:"inspection_id" validate:"required"`
	InspectorID     string `json:"inspector_id" validate:"required"`
	ActorID         string `json:"actor_id" validate:"required"`
	CanOverride     bool   `json:"can_override"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

// CancelInspectionRequest cancels an inspection.
type CancelInspectionRequest struct {
	InspectionID    string `json:"inspection_id" validate:"required"`
	ActorID         string `json:"actor_id" validate:"required"`
	Reason          string `json:"reason"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

// RejectInspectionRequest declines rework and fails the inspection.
type RejectInspectionRequest struct {
	InspectionID    string `json:"inspection_id" validate:"required"`
	ActorID         string `json:"actor_id" validate:"required"`
	Reason          string `json:"reason" validate:"required"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

// SetPriorityRequest changes the coordination priority.
type SetPriorityRequest struct {
	InspectionID    string              `json:"inspection_id" validate:"required"`
	Priority        inspection.Priority `json:"priority" validate:"required,oneof=low normal high urgent"`
	ActorID         string              `json:"actor_id" validate:"required"`
	ExpectedVersion int64               `json:"expected_version" validate:"gte=0"`
}

// SetEstimatedCompletionRequest sets or, with a nil time, clears the estimate.
type SetEstimatedCompletionRequest struct {
	InspectionID          string     `json:"inspection_id" validate:"required"`
	EstimatedCompletionAt *time.Time `json:"estimated_completion_at"`
	ActorID               string     `json:"actor_id" validate:"required"`
	ExpectedVersion       int64      `json:"expected_version" validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest converts the first validation failure into INVALID_INPUT
// naming the offending json field.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errors.InvalidInput(fe.Field(), "failed "+fe.Tag()+" validation")
	}
	return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request")
}
