package job

import (
	"context"
	"sync"
	"time"

	"github.com/solbridge-labs/relay/internal/ids"
)

// MemoryStore is the default, process-lifetime job store. It is safe for
// concurrent use. Records are never evicted; restarting the process loses
// all jobs, including any stuck in the executing state mid-payout.
type MemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	jobs  map[string]Job
	order []string
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:  now,
		jobs: make(map[string]Job),
	}
}

func (s *MemoryStore) Create(_ context.Context, req Request) (Job, error) {
	id, err := ids.NewJobID()
	if err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	j := Job{
		ID:        id,
		Status:    StatusPending,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[id] = j
	s.order = append(s.order, id)
	return j, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, upd Update) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	j = applyUpdate(j, upd, s.now().UTC())
	s.jobs[id] = j
	return j, nil
}

func (s *MemoryStore) ClaimExecuting(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if j.Status != StatusPending {
		return Job{}, &NotPendingError{Status: j.Status}
	}
	j.Status = StatusExecuting
	j.UpdatedAt = s.now().UTC()
	s.jobs[id] = j
	return j, nil
}

// Len reports the number of tracked jobs.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func applyUpdate(j Job, upd Update, now time.Time) Job {
	if upd.Status != nil {
		j.Status = *upd.Status
	}
	if upd.Simulated != nil {
		j.Simulated = *upd.Simulated
	}
	if upd.TxHash != nil {
		j.TxHash = *upd.TxHash
	}
	if upd.ExplorerURL != nil {
		j.ExplorerURL = *upd.ExplorerURL
	}
	if upd.ErrorMessage != nil {
		j.ErrorMessage = *upd.ErrorMessage
	}
	j.UpdatedAt = now
	return j
}
