package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/seetharamtessell/opsexec/errors"
)

// RecordStore holds all execution records for the lifetime of the
// process. Records are in-memory only and lost on restart; log files
// on disk are the only thing that survives.
type RecordStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	rec    Record
	cancel *CancelHandle
}

// NewRecordStore returns an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{entries: make(map[string]*entry)}
}

// Create registers a new Pending record and its cancellation handle.
func (s *RecordStore) Create(id string, req Request, logPath string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return Record{}, errors.Newf("execution %s already exists", id)
	}
	e := &entry{
		rec: Record{
			ID:        id,
			Request:   req,
			Status:    StatusPending,
			LogPath:   logPath,
			CreatedAt: time.Now(),
		},
		cancel: newCancelHandle(),
	}
	s.entries[id] = e
	return e.rec, nil
}

func (s *RecordStore) entryFor(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("no execution with id %s", id)
	}
	return e, nil
}

// Get returns a copy of the record.
func (s *RecordStore) Get(id string) (Record, error) {
	e, err := s.entryFor(id)
	if err != nil {
		return Record{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, nil
}

// Handle returns the cancellation handle for the execution.
func (s *RecordStore) Handle(id string) (*CancelHandle, error) {
	e, err := s.entryFor(id)
	if err != nil {
		return nil, err
	}
	return e.cancel, nil
}

// Transition moves the record to a new status, enforcing the state
// machine. Moving out of a terminal status returns ErrTerminal.
// StartedAt is stamped on entry to Running, CompletedAt on entry to any
// terminal status.
func (s *RecordStore) Transition(id string, to Status) (Record, error) {
	return s.transition(id, to, "", "")
}

// Fail moves the record to Failed and records the error message.
func (s *RecordStore) Fail(id string, msg string) (Record, error) {
	return s.transition(id, StatusFailed, "", msg)
}

// TimedOut moves the record to Timeout and records the error message.
func (s *RecordStore) TimedOut(id string, msg string) (Record, error) {
	return s.transition(id, StatusTimeout, "", msg)
}

// Cancelled moves the record to Cancelled and records why.
func (s *RecordStore) Cancelled(id string, reason CancelReason) (Record, error) {
	return s.transition(id, StatusCancelled, reason, "")
}

func (s *RecordStore) transition(id string, to Status, reason CancelReason, msg string) (Record, error) {
	e, err := s.entryFor(id)
	if err != nil {
		return Record{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.rec.Status
	if from.Terminal() {
		return e.rec, errors.Wrapf(errors.ErrTerminal,
			"execution %s is already %s", id, from)
	}
	if !validTransition(from, to) {
		return e.rec, errors.Newf("invalid transition %s -> %s for execution %s", from, to, id)
	}

	now := time.Now()
	e.rec.Status = to
	switch {
	case to == StatusRunning:
		e.rec.StartedAt = &now
	case to.Terminal():
		e.rec.CompletedAt = &now
	}
	if reason != "" {
		e.rec.CancelReason = reason
	}
	if msg != "" {
		e.rec.Error = msg
	}
	return e.rec, nil
}

// List returns summaries of all records, newest first.
func (s *RecordStore) List() []Summary {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		rec := e.rec
		e.mu.Unlock()
		summaries = append(summaries, Summary{
			ID:         rec.ID,
			Status:     rec.Status,
			Command:    rec.Request.Command.String(),
			Source:     rec.Request.Source,
			CreatedAt:  rec.CreatedAt,
			StartedAt:  rec.StartedAt,
			DurationMS: rec.Duration().Milliseconds(),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

// Running returns the number of records currently in Running.
func (s *RecordStore) Running() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		e.mu.Lock()
		if e.rec.Status == StatusRunning {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Len returns the total number of records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
