package service

import (
	"context"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// RosterSource supplies the members of an order that need inspection.
type RosterSource interface {
	ListRoster(ctx context.Context, orderNumber string) ([]inspection.RosterEntry, error)
}

// WithRosterSource enables ImportRoster.
func WithRosterSource(src RosterSource) Option {
	return func(s *InspectionService) { s.roster = src }
}

// ImportRosterRequest creates inspections for every roster entry of an order.
type ImportRosterRequest struct {
	OrderNumber   string `json:"order_number" validate:"required"`
	TemplateSetID string `json:"template_set_id" validate:"required"`
	ActorID       string `json:"actor_id"`
}

// ImportRosterResult lists the created inspections and the subjects skipped
// because they already have an active inspection for the order.
type ImportRosterResult struct {
	Created []*inspection.Inspection `json:"created"`
	Skipped []string                 `json:"skipped"`
}

// ImportRoster pulls the roster of one order and starts an inspection per
// member. Members with an active (non-cancelled) inspection on the same order
// are skipped, so repeating an import is safe.
func (s *InspectionService) ImportRoster(ctx context.Context, req *ImportRosterRequest) (res *ImportRosterResult, err error) {
	ctx, done := s.begin(ctx, "import_roster", "")
	defer func() { done(err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s.roster == nil {
		return nil, errors.New(errors.ErrCodeInternal, "roster source is not configured")
	}

	set, err := s.templates.Get(ctx, req.TemplateSetID)
	if err != nil {
		return nil, err
	}
	if err := inspection.ValidateTemplateSet(set); err != nil {
		return nil, err
	}

	entries, err := s.roster.ListRoster(ctx, req.OrderNumber)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeInternal {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to fetch roster for order "+req.OrderNumber)
		}
		return nil, err
	}

	existing, err := s.store.List(ctx, inspection.Filter{})
	if err != nil {
		return nil, err
	}
	active := make(map[string]struct{})
	for _, insp := range existing {
		if insp.OrderNumber == req.OrderNumber {
			active[insp.SubjectID] = struct{}{}
		}
	}

	res = &ImportRosterResult{Created: []*inspection.Inspection{}, Skipped: []string{}}
	for _, entry := range entries {
		entry.OrderNumber = req.OrderNumber
		if _, dup := active[entry.SubjectID]; dup {
			res.Skipped = append(res.Skipped, entry.SubjectID)
			continue
		}
		insp, err := s.create(ctx, entry, set, nil, req.ActorID)
		if err != nil {
			return nil, err
		}
		active[entry.SubjectID] = struct{}{}
		res.Created = append(res.Created, insp)
	}

	s.log.Info().
		Str("order_number", req.OrderNumber).
		Str("template_set_id", req.TemplateSetID).
		Int("roster_size", len(entries)).
		Int("created", len(res.Created)).
		Int("skipped", len(res.Skipped)).
		Msg("Roster imported")

	return res, nil
}
