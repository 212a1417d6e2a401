// Package template loads the read-only checkpoint template sets inspections
// are created from.
package template

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// Library resolves template sets by id.
type Library interface {
	Get(ctx context.Context, id string) (*inspection.TemplateSet, error)
	List(ctx context.Context) ([]inspection.TemplateSet, error)
}

// MemoryLibrary holds template sets in memory. Returned sets are copies.
type MemoryLibrary struct {
	mu   sync.RWMutex
	sets map[string]inspection.TemplateSet
}

// NewMemoryLibrary creates a library from the given sets. Later sets with the
// same id replace earlier ones.
func NewMemoryLibrary(sets ...inspection.TemplateSet) *MemoryLibrary {
	l := &MemoryLibrary{sets: make(map[string]inspection.TemplateSet, len(sets))}
	for _, s := range sets {
		l.sets[s.ID] = cloneSet(s)
	}
	return l
}

// Get returns the template set with the given id.
func (l *MemoryLibrary) Get(_ context.Context, id string) (*inspection.TemplateSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.sets[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeTemplateNotFound, "template set %q not found", id)
	}
	out := cloneSet(s)
	return &out, nil
}

// List returns every template set ordered by id.
func (l *MemoryLibrary) List(_ context.Context) ([]inspection.TemplateSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]inspection.TemplateSet, 0, len(l.sets))
	for _, s := range l.sets {
		out = append(out, cloneSet(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put adds or replaces a template set.
func (l *MemoryLibrary) Put(s inspection.TemplateSet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sets[s.ID] = cloneSet(s)
}

// ── File-backed library ──

type fileFormat struct {
	TemplateSets []inspection.TemplateSet `yaml:"template_sets" validate:"required,min=1,dive"`
}

// FileLibrary is a MemoryLibrary populated from a YAML file.
type FileLibrary struct {
	*MemoryLibrary
	path string
}

// LoadFile reads and validates a template file. Structural problems such as
// missing ids or unknown stages fail the load; a checkpoint without criteria
// is accepted here and rejected when an inspection is created from it.
func LoadFile(path string) (*FileLibrary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read template file")
	}
	sets, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return &FileLibrary{MemoryLibrary: NewMemoryLibrary(sets...), path: path}, nil
}

// Path returns the file the library was loaded from.
func (f *FileLibrary) Path() string {
	return f.path
}

// Parse decodes and validates YAML template data.
func Parse(data []byte) ([]inspection.TemplateSet, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidTemplate, "failed to parse template file")
	}
	if err := validator.New().Struct(doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidTemplate, "template file failed validation")
	}

	seen := make(map[string]struct{}, len(doc.TemplateSets))
	for _, s := range doc.TemplateSets {
		if _, dup := seen[s.ID]; dup {
			return nil, errors.New(errors.ErrCodeInvalidTemplate, fmt.Sprintf("template set %q defined twice", s.ID))
		}
		seen[s.ID] = struct{}{}
	}
	return doc.TemplateSets, nil
}

func cloneSet(s inspection.TemplateSet) inspection.TemplateSet {
	out := s
	out.Checkpoints = make([]inspection.CheckpointTemplate, len(s.Checkpoints))
	for i, cp := range s.Checkpoints {
		cp.Criteria = slices.Clone(cp.Criteria)
		out.Checkpoints[i] = cp
	}
	return out
}
