package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// Key layout:
//
//	inspection/<id>                 JSON inspection
//	audit/<id>/<zero-padded version> JSON event
const (
	inspectionPrefix = "inspection/"
	auditPrefix      = "audit/"
)

// BadgerStore is an embedded InspectionStore. Conditional writes run inside
// a badger read-write transaction, so two writers racing on one inspection
// surface as a CONFLICT either from the version check or from badger's own
// transaction conflict detection.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens a persistent store at path, or an in-memory store when
// path is empty.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already opened database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func inspectionKey(id string) []byte {
	return []byte(inspectionPrefix + id)
}

func auditKey(id string, version int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", auditPrefix, id, version))
}

// Create stores a new inspection and its creation event.
func (s *BadgerStore) Create(_ context.Context, insp *inspection.Inspection, ev *inspection.Event) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(inspectionKey(insp.ID))
		if err == nil {
			return errors.Conflict("inspection " + insp.ID + " already exists")
		}
		if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return writeInspection(txn, insp, ev)
	})
	return translateBadger(err, "failed to create inspection")
}

// Get returns the stored inspection.
func (s *BadgerStore) Get(_ context.Context, id string) (*inspection.Inspection, error) {
	var insp *inspection.Inspection
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		insp, err = readInspection(txn, id)
		return err
	})
	if err != nil {
		return nil, translateBadger(err, "failed to get inspection")
	}
	return insp, nil
}

// Update replaces the inspection if its stored version is expectedVersion.
func (s *BadgerStore) Update(_ context.Context, insp *inspection.Inspection, expectedVersion int64, ev *inspection.Event) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		cur, err := readInspection(txn, insp.ID)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return versionConflict(insp.ID, expectedVersion, cur.Version)
		}
		return writeInspection(txn, insp, ev)
	})
	return translateBadger(err, "failed to update inspection")
}

// List returns every inspection matching filter, most urgent first.
func (s *BadgerStore) List(_ context.Context, filter inspection.Filter) ([]*inspection.Inspection, error) {
	out := []*inspection.Inspection{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(inspectionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			insp := &inspection.Inspection{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, insp)
			}); err != nil {
				return err
			}
			if filter.Matches(insp) {
				out = append(out, insp)
			}
		}
		return nil
	})
	if err != nil {
		return nil, translateBadger(err, "failed to list inspections")
	}
	inspection.SortByPriority(out)
	return out, nil
}

// AuditTrail returns the events of an inspection ordered by version.
func (s *BadgerStore) AuditTrail(_ context.Context, inspectionID string) ([]*inspection.Event, error) {
	events := []*inspection.Event{}
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(inspectionKey(inspectionID)); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return errors.NotFound("inspection", inspectionID)
			}
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(auditPrefix + inspectionID + "/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ev := &inspection.Event{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, ev)
			}); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, translateBadger(err, "failed to get audit log")
	}
	return events, nil
}

func readInspection(txn *badger.Txn, id string) (*inspection.Inspection, error) {
	item, err := txn.Get(inspectionKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.NotFound("inspection", id)
	}
	if err != nil {
		return nil, err
	}
	insp := &inspection.Inspection{}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, insp)
	}); err != nil {
		return nil, err
	}
	return insp, nil
}

func writeInspection(txn *badger.Txn, insp *inspection.Inspection, ev *inspection.Event) error {
	data, err := json.Marshal(insp)
	if err != nil {
		return err
	}
	if err := txn.Set(inspectionKey(insp.ID), data); err != nil {
		return err
	}
	if ev == nil {
		return nil
	}
	evData, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return txn.Set(auditKey(ev.InspectionID, ev.Version), evData)
}

// translateBadger keeps coded errors, maps badger transaction conflicts to
// CONFLICT and wraps everything else as INTERNAL.
func translateBadger(err error, msg string) error {
	if err == nil {
		return nil
	}
	var coded *errors.Error
	if errors.As(err, &coded) {
		return err
	}
	if stderrors.Is(err, badger.ErrConflict) {
		return errors.Wrap(err, errors.ErrCodeConflict, "inspection was modified concurrently")
	}
	return errors.Wrap(err, errors.ErrCodeInternal, msg)
}
