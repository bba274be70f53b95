// Package repository defines the data access interfaces the monitor engine,
// analysis pipeline, and admin HTTP surface depend on, plus their GORM-backed
// implementations.
package repository

import (
	"context"

	"github.com/streammon/monitor/internal/models"
)

// StreamRepository defines persistence operations for monitored streams.
//
// SaveStream follows an optimistic-concurrency "drop, don't retry" policy:
// it updates WHERE id = ? AND version = ?, and returns models.ErrVersionConflict
// if the row was modified since it was read rather than retrying the write.
// Callers that lose a race re-read the current row on their next sweep.
type StreamRepository interface {
	// GetStream retrieves a stream by ID. Returns (nil, nil) if not found.
	GetStream(ctx context.Context, id string) (*models.Stream, error)
	// ListStreams retrieves all stream records.
	ListStreams(ctx context.Context) ([]*models.Stream, error)
	// SaveStream persists stream, enforcing the version check described above.
	SaveStream(ctx context.Context, stream *models.Stream) error
}

// MetricsSampleRepository defines persistence operations for scoring snapshots.
type MetricsSampleRepository interface {
	// SaveMetricsSample appends one scoring snapshot.
	SaveMetricsSample(ctx context.Context, sample *models.MetricsSample) error
}
