package store

import (
	"context"

	"github.com/usagegate/usagegate/internal/models"
)

// RecordStore is durable per-user storage for usage records. Implementations
// must be safe for concurrent use.
//
// The concurrency contract lives in Update: it is a compare-and-swap keyed on
// the record version observed at read time. Every successful write therefore
// observes the immediately preceding committed state for that user, which is
// what makes check-then-increment race-safe without locks.
type RecordStore interface {
	// Get returns the record for a user. The second return is false when the
	// user has no record yet.
	Get(ctx context.Context, userID string) (*models.UsageRecord, bool, error)

	// Create persists a new record with version 1. It fails with
	// ErrVersionConflict if a record already exists, so racing first-access
	// creates resolve to a single winner.
	Create(ctx context.Context, rec *models.UsageRecord) error

	// Update writes rec conditioned on the stored version still being
	// expectedVersion. On success the stored version becomes rec.Version
	// (the caller sets it to expectedVersion+1). Returns ErrVersionConflict
	// when another writer committed first.
	Update(ctx context.Context, rec *models.UsageRecord, expectedVersion int64) error

	// List returns all records, for display and admin tooling.
	List(ctx context.Context) ([]*models.UsageRecord, error)

	// Stats returns storage statistics.
	Stats(ctx context.Context) (StoreStats, error)

	// Close releases underlying resources.
	Close() error
}

// StoreStats holds storage statistics.
type StoreStats struct {
	RecordCount int `json:"record_count"`
}
