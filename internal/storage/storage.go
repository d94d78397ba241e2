package storage

import (
	"context"
	"time"

	"github.com/speedwagon-io/motordiag/internal/model"
)

// Store persists readings in insertion order.
type Store interface {
	// Insert appends r as the most recent reading and sets r.Seq.
	Insert(ctx context.Context, r *model.Reading) error
	// Latest returns the most recently inserted reading, or nil when the
	// store is empty.
	Latest(ctx context.Context) (*model.Reading, error)
	Count(ctx context.Context) (int64, error)
	// Prune drops readings received before now minus maxAge. The most
	// recent reading is always kept.
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
	Close() error
}
