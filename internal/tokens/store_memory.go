package tokens

import (
	"context"
	"sort"
	"sync"

	"github.com/videovault/backend/internal/models"
)

// NewInMemoryStore returns a Store backed by an in-memory map.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.VideoToken)}
}

// InMemoryStore implements Store for tests and local development. A single
// mutex serializes Transact calls, which gives the same per-record atomicity
// the Postgres store provides with row locks.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.VideoToken
}

// Insert persists a new token record.
func (s *InMemoryStore) Insert(_ context.Context, record models.VideoToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Token] = cloneRecord(record)
	return nil
}

// Find retrieves a token record by its opaque identifier.
func (s *InMemoryStore) Find(_ context.Context, token string) (models.VideoToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[token]
	if !ok {
		return models.VideoToken{}, ErrTokenNotFound
	}
	return cloneRecord(record), nil
}

// ListByVideo returns every token minted for the video, newest first.
func (s *InMemoryStore) ListByVideo(_ context.Context, videoID string) ([]models.VideoToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []models.VideoToken
	for _, record := range s.records {
		if record.VideoID == videoID {
			records = append(records, cloneRecord(record))
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

// Transact applies mutate to a snapshot of the record and persists the result
// atomically. The mutation is discarded when mutate returns an error.
func (s *InMemoryStore) Transact(_ context.Context, token string, mutate func(*models.VideoToken) error) (models.VideoToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[token]
	if !ok {
		return models.VideoToken{}, ErrTokenNotFound
	}

	next := cloneRecord(record)
	if err := mutate(&next); err != nil {
		return models.VideoToken{}, err
	}

	s.records[token] = cloneRecord(next)
	return next, nil
}

func cloneRecord(record models.VideoToken) models.VideoToken {
	clone := record
	if record.SessionID != nil {
		sid := *record.SessionID
		clone.SessionID = &sid
	}
	if record.RevokedAt != nil {
		at := *record.RevokedAt
		clone.RevokedAt = &at
	}
	return clone
}
