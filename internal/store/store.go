package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/osforge/internal/errors"
	"git.home.luguber.info/inful/osforge/internal/spec"
)

// RecordStore is the contract between the dispatcher, the pipeline
// executor (single writer per record) and the status API (many readers).
type RecordStore interface {
	Create(s *spec.BuildSpecification) (string, error)
	Get(buildID string) (*BuildRecord, error)
	List() []*BuildRecord
	AppendLog(buildID, message string) error
	AddArtifact(buildID string, artifact Artifact) error
	SetStatus(buildID string, status Status) error
	Delete(buildID string) error
}

// entry pairs a record with its own lock so unrelated builds never
// serialize on each other.
type entry struct {
	mu  sync.RWMutex
	rec BuildRecord
}

// InMemoryStore is the default RecordStore. The outer lock only guards the
// map; per-record locks guard record state.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewInMemoryStore creates an empty record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Create assigns a fresh unique identifier and inserts a PENDING record
// atomically.
func (s *InMemoryStore) Create(sp *spec.BuildSpecification) (string, error) {
	if sp == nil {
		return "", errors.ValidationError("specification is required")
	}

	id := uuid.NewString()
	e := &entry{rec: BuildRecord{
		BuildID:   id,
		Spec:      sp,
		Status:    StatusPending,
		Logs:      []LogEntry{},
		Artifacts: []Artifact{},
		CreatedAt: s.now().UTC(),
	}}

	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()

	return id, nil
}

// Get returns a snapshot of the record; callers may read it without
// further synchronization.
func (s *InMemoryStore) Get(buildID string) (*BuildRecord, error) {
	e, err := s.lookup(buildID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rec.snapshot(), nil
}

// List returns snapshots of all records ordered by creation time.
func (s *InMemoryStore) List() []*BuildRecord {
	s.mu.RLock()
	all := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	s.mu.RUnlock()

	out := make([]*BuildRecord, 0, len(all))
	for _, e := range all {
		e.mu.RLock()
		out = append(out, e.rec.snapshot())
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AppendLog appends one log line with the current timestamp.
func (s *InMemoryStore) AppendLog(buildID, message string) error {
	e, err := s.lookup(buildID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.rec.Logs = append(e.rec.Logs, LogEntry{CreatedAt: s.now().UTC(), Message: message})
	e.mu.Unlock()
	return nil
}

// AddArtifact registers a typed output artifact.
func (s *InMemoryStore) AddArtifact(buildID string, artifact Artifact) error {
	e, err := s.lookup(buildID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.rec.Artifacts = append(e.rec.Artifacts, artifact)
	e.mu.Unlock()
	return nil
}

// SetStatus advances the state machine. Illegal transitions (backwards, or
// out of a terminal state) are rejected.
func (s *InMemoryStore) SetStatus(buildID string, status Status) error {
	e, err := s.lookup(buildID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.rec.Status.CanTransitionTo(status) {
		return errors.New(errors.CategoryStorage, errors.SeverityError, "illegal status transition").
			WithContext("build_id", buildID).
			WithContext("from", string(e.rec.Status)).
			WithContext("to", string(status))
	}
	e.rec.Status = status
	if status.IsTerminal() {
		t := s.now().UTC()
		e.rec.CompletedAt = &t
	}
	return nil
}

// Delete removes a record; used only by the retention sweeper.
func (s *InMemoryStore) Delete(buildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[buildID]; !ok {
		return errors.NotFoundError("unknown build").WithContext("build_id", buildID)
	}
	delete(s.entries, buildID)
	return nil
}

func (s *InMemoryStore) lookup(buildID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[buildID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFoundError("unknown build").WithContext("build_id", buildID)
	}
	return e, nil
}
