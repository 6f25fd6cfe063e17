package domain

import (
	"context"
	"time"

	"github.com/vitalstat/vitalstat/internal/frame"
)

// Dataset is the metadata of one uploaded tabular resource. The payload
// itself is immutable after upload; re-uploading creates a new Dataset.
type Dataset struct {
	ID        string       `json:"dataset_id"`
	Name      string       `json:"name"`
	Columns   []frame.Spec `json:"columns"`
	NRows     int          `json:"n_rows"`
	NCols     int          `json:"n_cols"`
	CreatedAt time.Time    `json:"created_at"`
	IsActive  bool         `json:"is_active"`
}

// DatasetStore is the contract for the tabular store plus its activation
// protocol. At most one dataset is active at a time; once anything has been
// uploaded, exactly one is.
type DatasetStore interface {
	// Register persists a new dataset, infers column kinds, and activates
	// it as part of the same call. Fails with KindInvalidInput on empty or
	// inconsistent rows.
	Register(ctx context.Context, name string, rows []map[string]any) (Dataset, error)

	// Activate re-points the active projection at the given dataset.
	// Idempotent; fails with KindNotFound for unknown ids. Once it returns,
	// projection reads reflect the new dataset with no stale reads.
	Activate(ctx context.Context, datasetID string) error

	// ListWithStatus returns all datasets in registration order with their
	// activation state.
	ListWithStatus(ctx context.Context) ([]Dataset, error)

	// ActiveProjection materializes the currently active dataset with
	// numeric columns coerced to numeric storage. Fails with
	// KindDataUnavailable when nothing is active.
	ActiveProjection(ctx context.Context) (*frame.Frame, error)
}

// ProjectionSource is the slice of the store the executor depends on: its
// only data-acquisition path besides inline payloads.
type ProjectionSource interface {
	ActiveProjection(ctx context.Context) (*frame.Frame, error)
}
