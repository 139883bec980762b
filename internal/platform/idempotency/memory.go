package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process memory. It backs tests and local
// development runs where no Firestore emulator is available.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	fingerprint string
	completed   bool
	response    StoredResponse
	expiresAt   time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

// Begin implements Store.
func (s *MemoryStore) Begin(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	entry, ok := s.entries[id]
	if !ok || entry.expired(now) {
		s.entries[id] = &memoryEntry{
			fingerprint: fingerprint,
			expiresAt:   now.Add(ttl),
		}
		return Claim{State: ClaimNew}, nil
	}
	if entry.fingerprint != fingerprint {
		return Claim{}, ErrKeyReused
	}
	if entry.completed {
		return Claim{State: ClaimReplay, Response: entry.response}, nil
	}
	return Claim{State: ClaimInFlight}, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp StoredResponse, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	entry, ok := s.entries[id]
	if ok && entry.fingerprint != fingerprint {
		return ErrKeyReused
	}
	if !ok {
		entry = &memoryEntry{fingerprint: fingerprint}
		s.entries[id] = entry
	}

	entry.completed = true
	entry.response = StoredResponse{
		Status: resp.Status,
		Header: recordableHeader(resp.Header),
		Body:   append([]byte(nil), resp.Body...),
	}
	entry.expiresAt = now.Add(ttl)
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, docID(key))
	return nil
}

// CleanupExpired implements Store.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	removed := 0
	for id, entry := range s.entries {
		if !entry.expired(now) {
			continue
		}
		delete(s.entries, id)
		removed++
		if removed >= limit {
			break
		}
	}
	return removed, nil
}
