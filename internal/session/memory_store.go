package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the default registry backend: two mutex-guarded maps with
// lazy expiry on read plus periodic eviction through Sweep.
type MemoryStore struct {
	mu sync.Mutex

	now        func() time.Time
	sessionTTL time.Duration
	proofTTL   time.Duration

	sessions map[string]Session
	proofs   map[string]ProofBundle
}

func NewMemoryStore(sessionTTL, proofTTL time.Duration, now func() time.Time) (*MemoryStore, error) {
	if sessionTTL <= 0 || proofTTL <= 0 {
		return nil, fmt.Errorf("%w: TTLs must be > 0", ErrInvalidConfig)
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:        now,
		sessionTTL: sessionTTL,
		proofTTL:   proofTTL,
		sessions:   make(map[string]Session),
		proofs:     make(map[string]ProofBundle),
	}, nil
}

func (s *MemoryStore) PutSession(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.expired(sess.CreatedAt, s.sessionTTL) {
		delete(s.sessions, id)
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *MemoryStore) PutProof(_ context.Context, p ProofBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proofs[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProof(_ context.Context, id string) (ProofBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proofs[id]
	if !ok {
		return ProofBundle{}, ErrProofNotFound
	}
	if s.expired(p.CreatedAt, s.proofTTL) {
		delete(s.proofs, id)
		return ProofBundle{}, ErrProofNotFound
	}
	return p, nil
}

func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess.CreatedAt, s.sessionTTL) {
			delete(s.sessions, id)
			removed++
		}
	}
	for id, p := range s.proofs {
		if s.expired(p.CreatedAt, s.proofTTL) {
			delete(s.proofs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) expired(createdAt time.Time, ttl time.Duration) bool {
	return !s.now().Before(createdAt.Add(ttl))
}
