package store

import (
	"context"
	"sync"
	"time"

	"github.com/usagegate/usagegate/internal/errors"
	"github.com/usagegate/usagegate/internal/models"
)

// MemoryStore keeps usage records in a map with the same versioned CAS
// contract as the SQLite backing. Used for tests and single-process setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.UsageRecord
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.UsageRecord),
	}
}

// Get returns a copy of the record so callers cannot mutate stored state
// outside the CAS path.
func (s *MemoryStore) Get(_ context.Context, userID string) (*models.UsageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

// Create persists a new record with version 1.
func (s *MemoryStore) Create(_ context.Context, rec *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.UserID]; exists {
		return errors.ErrVersionConflict
	}
	stored := rec.Clone()
	stored.Version = 1
	s.records[rec.UserID] = stored
	rec.Version = 1
	return nil
}

// Update performs the conditional write.
func (s *MemoryStore) Update(_ context.Context, rec *models.UsageRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.UserID]
	if !ok {
		return &errors.ErrRecordNotFound{UserID: rec.UserID}
	}
	if current.Version != expectedVersion {
		return errors.ErrVersionConflict
	}
	s.records[rec.UserID] = rec.Clone()
	return nil
}

// List returns copies of all records.
func (s *MemoryStore) List(_ context.Context) ([]*models.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.UsageRecord, 0, len(s.records))
	for _, rec := range s.records {
		result = append(result, rec.Clone())
	}
	return result, nil
}

// PruneStale deletes records not written since before.
func (s *MemoryStore) PruneStale(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.records {
		if rec.UpdatedAt.Before(before) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Stats returns storage statistics.
func (s *MemoryStore) Stats(_ context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStats{RecordCount: len(s.records)}, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements the RecordStore interface
var _ RecordStore = (*MemoryStore)(nil)
