package repository

import (
	"context"
	"maps"
	"sync"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// MemoryStore is an InspectionStore held in process memory. Values are cloned
// on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	inspections map[string]*inspection.Inspection
	events      map[string][]*inspection.Event
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inspections: make(map[string]*inspection.Inspection),
		events:      make(map[string][]*inspection.Event),
	}
}

// Create stores a new inspection and its creation event.
func (s *MemoryStore) Create(_ context.Context, insp *inspection.Inspection, ev *inspection.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.inspections[insp.ID]; exists {
		return errors.Conflict("inspection " + insp.ID + " already exists")
	}
	s.inspections[insp.ID] = insp.Clone()
	if ev != nil {
		s.events[insp.ID] = append(s.events[insp.ID], cloneEvent(ev))
	}
	return nil
}

// Get returns a copy of the stored inspection.
func (s *MemoryStore) Get(_ context.Context, id string) (*inspection.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	insp, ok := s.inspections[id]
	if !ok {
		return nil, errors.NotFound("inspection", id)
	}
	return insp.Clone(), nil
}

// Update replaces the inspection if its stored version is expectedVersion.
func (s *MemoryStore) Update(_ context.Context, insp *inspection.Inspection, expectedVersion int64, ev *inspection.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.inspections[insp.ID]
	if !ok {
		return errors.NotFound("inspection", insp.ID)
	}
	if cur.Version != expectedVersion {
		return versionConflict(insp.ID, expectedVersion, cur.Version)
	}
	s.inspections[insp.ID] = insp.Clone()
	if ev != nil {
		s.events[insp.ID] = append(s.events[insp.ID], cloneEvent(ev))
	}
	return nil
}

// List returns copies of every inspection matching filter, most urgent first.
func (s *MemoryStore) List(_ context.Context, filter inspection.Filter) ([]*inspection.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*inspection.Inspection, 0, len(s.inspections))
	for _, insp := range s.inspections {
		if filter.Matches(insp) {
			out = append(out, insp.Clone())
		}
	}
	inspection.SortByPriority(out)
	return out, nil
}

// AuditTrail returns the events of an inspection oldest first.
func (s *MemoryStore) AuditTrail(_ context.Context, inspectionID string) ([]*inspection.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.inspections[inspectionID]; !ok {
		return nil, errors.NotFound("inspection", inspectionID)
	}
	events := s.events[inspectionID]
	out := make([]*inspection.Event, len(events))
	for i, ev := range events {
		out[i] = cloneEvent(ev)
	}
	return out, nil
}

func cloneEvent(ev *inspection.Event) *inspection.Event {
	out := *ev
	out.Metadata = maps.Clone(ev.Metadata)
	return &out
}

func versionConflict(id string, expected, actual int64) error {
	return errors.Newf(errors.ErrCodeConflict,
		"inspection %s was modified concurrently (expected version %d, found %d)", id, expected, actual)
}
