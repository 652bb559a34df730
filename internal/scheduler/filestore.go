package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore persists jobs as a single JSON array in <dir>/jobs.json. Every
// operation holds the store mutex across its read-decide-write cycle and
// rewrites the file atomically (write to temp, rename). This serializes
// claims within one process; running two processes against the same file is
// not supported and is rejected at configuration time.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, "jobs.json")}, nil
}

// load reads all records. A missing file is an empty store.
func (s *FileStore) load() ([]Job, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return jobs, nil
}

// save rewrites the file atomically.
func (s *FileStore) save(jobs []Job) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding jobs: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

func (s *FileStore) Put(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range jobs {
		if jobs[i].ID == job.ID {
			jobs[i] = *job
			replaced = true
			break
		}
	}
	if !replaced {
		jobs = append(jobs, *job)
	}
	return s.save(jobs)
}

func (s *FileStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].ID == id {
			j := jobs[i]
			return &j, nil
		}
	}
	return nil, ErrNotFound
}

func (s *FileStore) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return nil, err
	}
	var due []Job
	for i := range jobs {
		if jobs[i].Status == StatusPending && !jobs[i].NextRunAt.After(now) {
			due = append(due, jobs[i])
		}
	}
	sort.Slice(due, func(a, b int) bool {
		if due[a].NextRunAt.Equal(due[b].NextRunAt) {
			return due[a].ID < due[b].ID
		}
		return due[a].NextRunAt.Before(due[b].NextRunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, len(due))
	for i := range due {
		ids[i] = due[i].ID
	}
	return ids, nil
}

func (s *FileStore) Claim(ctx context.Context, id, owner string, now time.Time, lease time.Duration) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].ID != id {
			continue
		}
		j := &jobs[i]
		expired := j.Status == StatusRunning && j.LeaseUntil != nil && j.LeaseUntil.Before(now)
		if j.Status != StatusPending && !expired {
			return nil, ErrLostLease
		}
		until := now.Add(lease).UTC()
		j.Status = StatusRunning
		j.LeaseOwner = &owner
		j.LeaseUntil = &until
		j.Attempts++
		j.UpdatedAt = now.UTC()
		claimed := *j
		if err := s.save(jobs); err != nil {
			return nil, err
		}
		return &claimed, nil
	}
	return nil, ErrNotFound
}

func (s *FileStore) Finalize(ctx context.Context, id, owner string, now time.Time, tr Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	for i := range jobs {
		if jobs[i].ID != id {
			continue
		}
		j := &jobs[i]
		if j.Status != StatusRunning || j.LeaseOwner == nil || *j.LeaseOwner != owner {
			return ErrLostLease
		}
		applyTransition(j, now, tr)
		return s.save(jobs)
	}
	return ErrNotFound
}

func (s *FileStore) Cancel(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	for i := range jobs {
		if jobs[i].ID != id {
			continue
		}
		if jobs[i].Status != StatusPending {
			return ErrNotPending
		}
		jobs[i].Status = StatusCancelled
		jobs[i].UpdatedAt = now.UTC()
		return s.save(jobs)
	}
	return ErrNotFound
}

func (s *FileStore) Retry(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	for i := range jobs {
		if jobs[i].ID != id {
			continue
		}
		if jobs[i].Status != StatusFailed {
			return ErrNotFailed
		}
		jobs[i].Status = StatusPending
		jobs[i].NextRunAt = now.UTC()
		jobs[i].Attempts = 0
		jobs[i].LastError = nil
		jobs[i].UpdatedAt = now.UTC()
		return s.save(jobs)
	}
	return ErrNotFound
}

func (s *FileStore) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []Job
	for i := range jobs {
		if filter.Status != "" && jobs[i].Status != filter.Status {
			continue
		}
		if filter.Kind != "" && jobs[i].Kind != filter.Kind {
			continue
		}
		out = append(out, jobs[i])
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	if out == nil {
		out = []Job{}
	}
	return out, nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load()
	return err
}

// applyTransition mutates a running record per the finalize transition.
// The caller has already verified ownership.
func applyTransition(j *Job, now time.Time, tr Transition) {
	j.LeaseOwner = nil
	j.LeaseUntil = nil
	j.UpdatedAt = now.UTC()

	switch tr.Kind {
	case TransitionComplete:
		j.Status = StatusCompleted
	case TransitionFailRetry:
		j.Status = StatusPending
		j.NextRunAt = tr.NextRunAt.UTC()
		msg := tr.LastError
		j.LastError = &msg
	case TransitionFailTerminal:
		j.Status = StatusFailed
		msg := tr.LastError
		j.LastError = &msg
	case TransitionReschedule:
		j.Status = StatusPending
		j.NextRunAt = tr.NextRunAt.UTC()
		j.Attempts = 0
		j.LastError = nil
	}
}
