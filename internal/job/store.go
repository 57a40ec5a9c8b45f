package job

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrTerminal = errors.New("job already in a terminal state")
)

// Store is the in-memory job registry. Jobs live for the lifetime of the
// process; callers get copies, all mutation goes through Store methods.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

func (s *Store) Create(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *j
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.jobs[cp.ID] = &cp
}

func (s *Store) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(j), nil
}

// ClaimNext marks the oldest pending job as processing and returns a copy
// of it, or nil when nothing is pending.
func (s *Store) ClaimNext() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *Job
	for _, j := range s.jobs {
		if j.Status != StatusPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil
	}

	oldest.Status = StatusProcessing
	oldest.StartedAt = time.Now()
	return copyJob(oldest)
}

// Complete stores the results and moves the job to completed. Terminal
// states are sticky: completing a finished job is an error.
func (s *Store) Complete(id string, results *Results) error {
	return s.finish(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Results = results
	})
}

// Fail moves the job to failed with a user-readable message.
func (s *Store) Fail(id string, message string) error {
	return s.finish(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = message
	})
}

func (s *Store) finish(id string, apply func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.IsDone() {
		return ErrTerminal
	}
	apply(j)
	j.CompletedAt = time.Now()
	return nil
}

// SetReport replaces the stored report. Allowed on completed jobs: report
// regeneration happens after the job itself is terminal.
func (s *Store) SetReport(id string, report string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Report = report
	return nil
}

func copyJob(j *Job) *Job {
	cp := *j
	if j.Results != nil {
		res := *j.Results
		res.Segments = append([]Segment(nil), j.Results.Segments...)
		cp.Results = &res
	}
	return &cp
}
