package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"race-crew-network/internal/models"
)

// DefaultHeldResultTTL bounds how long an unclaimed run output stays
// retrievable. Zero disables expiry.
const DefaultHeldResultTTL = time.Hour

// HeldResultStore parks one run's output under a random token until the
// operator's preview step claims it. Exactly two operations: insert on
// completion, pop on consumption (read-once).
type HeldResultStore interface {
	Put(result models.HeldImport) string
	Pop(token string) (models.HeldImport, bool)
}

// MemoryHeldResults is the process-local HeldResultStore. Expiry is lazy:
// expired entries are rejected on Pop and swept on Put, so no background
// goroutine is needed.
type MemoryHeldResults struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]models.HeldImport
	now     func() time.Time
}

func NewMemoryHeldResults(ttl time.Duration) *MemoryHeldResults {
	return &MemoryHeldResults{
		ttl:     ttl,
		entries: make(map[string]models.HeldImport),
		now:     time.Now,
	}
}

// Put stores a result and returns its one-time token.
func (s *MemoryHeldResults) Put(result models.HeldImport) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	if result.CreatedAt.IsZero() {
		result.CreatedAt = s.now()
	}
	token := uuid.NewString()
	s.entries[token] = result
	return token
}

// Pop removes and returns the result for a token. A second Pop with the
// same token, or a Pop after expiry, reports not found.
func (s *MemoryHeldResults) Pop(token string) (models.HeldImport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.entries[token]
	if !ok {
		return models.HeldImport{}, false
	}
	delete(s.entries, token)

	if s.expiredLocked(result) {
		return models.HeldImport{}, false
	}
	return result, true
}

// Len reports the number of live entries. Used by tests.
func (s *MemoryHeldResults) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryHeldResults) sweepLocked() {
	for token, result := range s.entries {
		if s.expiredLocked(result) {
			delete(s.entries, token)
		}
	}
}

func (s *MemoryHeldResults) expiredLocked(result models.HeldImport) bool {
	return s.ttl > 0 && s.now().Sub(result.CreatedAt) > s.ttl
}
