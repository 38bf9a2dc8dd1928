package storage

import (
	"context"
	"errors"

	"doorslight/internal/graph"
	"doorslight/internal/index"
)

// ErrNotFound is returned when a lookup matches no stored record.
var ErrNotFound = errors.New("not found")

// Store persists loaded dataset snapshots. Computed rollups are never stored.
type Store interface {
	// SaveDataset replaces the stored snapshot with ds.
	SaveDataset(ctx context.Context, ds *index.Dataset) error

	// LoadDataset returns the stored snapshot in its original order.
	LoadDataset(ctx context.Context) (*index.Dataset, error)

	// GetRequirement retrieves a requirement by its external id.
	GetRequirement(ctx context.Context, id string) (graph.Requirement, error)

	Close() error
}
