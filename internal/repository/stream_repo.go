package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/streammon/monitor/internal/models"
)

// streamRepo implements StreamRepository using GORM.
type streamRepo struct {
	db *gorm.DB
}

// NewStreamRepository creates a new StreamRepository.
func NewStreamRepository(db *gorm.DB) *streamRepo {
	return &streamRepo{db: db}
}

// GetStream retrieves a stream by ID, preloading its error ledger.
func (r *streamRepo) GetStream(ctx context.Context, id string) (*models.Stream, error) {
	streamID, err := models.ParseULID(id)
	if err != nil {
		return nil, nil
	}

	var stream models.Stream
	if err := r.db.WithContext(ctx).Preload("StreamErrors").Where("id = ?", streamID).First(&stream).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream by ID: %w", err)
	}
	return &stream, nil
}

// ListStreams retrieves all stream records, preloading their error ledgers.
func (r *streamRepo) ListStreams(ctx context.Context) ([]*models.Stream, error) {
	var streams []*models.Stream
	if err := r.db.WithContext(ctx).Preload("StreamErrors").Order("name ASC").Find(&streams).Error; err != nil {
		return nil, fmt.Errorf("listing streams: %w", err)
	}
	return streams, nil
}

// SaveStream creates stream if it has no ID yet, or otherwise updates it
// under an atomic version check: the UPDATE only touches the row if its
// version still matches what the caller read, and bumps it by one. A zero
// rows-affected result means another writer updated the row first, and
// SaveStream returns models.ErrVersionConflict rather than retrying; the
// evaluator treats this as "stale read, re-evaluate next sweep" rather than
// something to fix up in place.
func (r *streamRepo) SaveStream(ctx context.Context, stream *models.Stream) error {
	if stream.ID.IsZero() {
		if err := r.db.WithContext(ctx).Create(stream).Error; err != nil {
			return fmt.Errorf("creating stream: %w", err)
		}
		return nil
	}

	expectedVersion := stream.Version
	stream.Version = expectedVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.Stream{}).
		Where("id = ? AND version = ?", stream.ID, expectedVersion).
		Select("*").
		Omit("StreamErrors").
		Updates(stream)

	if result.Error != nil {
		stream.Version = expectedVersion
		return fmt.Errorf("saving stream: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		stream.Version = expectedVersion
		return models.ErrVersionConflict
	}

	if err := r.saveErrorLedger(ctx, stream); err != nil {
		return err
	}

	return nil
}

// saveErrorLedger inserts any StreamErrors entries that don't yet have a
// database ID, then deletes any previously persisted entry no longer present
// in stream.StreamErrors. The caller (evaluator) runs AgeOut on the in-memory
// slice before calling SaveStream, so "no longer present" is exactly the
// age-out decision; this mirrors that decision into the database rather than
// letting the ledger table grow unbounded.
func (r *streamRepo) saveErrorLedger(ctx context.Context, stream *models.Stream) error {
	var pending []*models.StreamError
	kept := make([]string, 0, len(stream.StreamErrors))
	for i := range stream.StreamErrors {
		entry := &stream.StreamErrors[i]
		kept = append(kept, entry.EID)
		if entry.ID == 0 {
			entry.StreamID = stream.ID
			pending = append(pending, entry)
		}
	}

	if len(pending) > 0 {
		if err := r.db.WithContext(ctx).Create(&pending).Error; err != nil {
			return fmt.Errorf("appending stream error ledger: %w", err)
		}
	}

	prune := r.db.WithContext(ctx).Where("stream_id = ?", stream.ID)
	if len(kept) > 0 {
		prune = prune.Where("eid NOT IN ?", kept)
	}
	if err := prune.Delete(&models.StreamError{}).Error; err != nil {
		return fmt.Errorf("pruning aged-out stream errors: %w", err)
	}
	return nil
}

var _ StreamRepository = (*streamRepo)(nil)
