// Package storage defines the plan persistence port (interface).
package storage

import (
	"context"
	"time"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

// Stats aggregates storage-level information about persisted plans.
type Stats struct {
	Total     int                `json:"total"`
	ByState   map[plan.State]int `json:"by_state"`
	SizeBytes int64              `json:"size_bytes"`
	Oldest    time.Time          `json:"oldest,omitzero"`
	Newest    time.Time          `json:"newest,omitzero"`
}

// Store is the port interface for plan persistence. Implementations must apply
// updates under a single-writer-per-plan discipline: Update checks the stored
// version against the incoming plan's version and increments it, returning
// domain.ErrConflict on a mismatch.
type Store interface {
	// Save persists a new plan. domain.ErrConflict if the ID already exists.
	Save(ctx context.Context, p *plan.Plan) error

	// Load returns the plan with the given ID, or domain.ErrNotFound.
	Load(ctx context.Context, id string) (*plan.Plan, error)

	// Update persists a modified plan and increments its version.
	Update(ctx context.Context, p *plan.Plan) error

	// Delete removes a plan. domain.ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// Exists reports whether a plan with the given ID is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// ListActive returns plans not yet in a finished state.
	ListActive(ctx context.Context) ([]plan.Plan, error)

	// ListByState returns plans currently in the given state.
	ListByState(ctx context.Context, state plan.State) ([]plan.Plan, error)

	// ListFinished returns finished plans in the given states, newest first,
	// with offset/limit pagination. Empty states means all finished states.
	ListFinished(ctx context.Context, states []plan.State, limit, offset int) ([]plan.Plan, error)

	// SearchByRequest returns plans whose originating request contains the query.
	SearchByRequest(ctx context.Context, query string) ([]plan.Plan, error)

	// FindByTimeRange returns plans created within [from, to].
	FindByTimeRange(ctx context.Context, from, to time.Time) ([]plan.Plan, error)

	// Cleanup removes finished plans in the given states whose completion aged
	// past olderThan, returning the number removed.
	Cleanup(ctx context.Context, olderThan time.Duration, states []plan.State) (int, error)

	// Stats returns aggregate storage statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Backup serializes every stored plan. Restore replaces the store's
	// contents with a previous Backup result; the two round-trip.
	Backup(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, data []byte) error
}
