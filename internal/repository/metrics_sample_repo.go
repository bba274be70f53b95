package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/streammon/monitor/internal/models"
)

// metricsSampleRepo implements MetricsSampleRepository using GORM.
type metricsSampleRepo struct {
	db *gorm.DB
}

// NewMetricsSampleRepository creates a new MetricsSampleRepository.
func NewMetricsSampleRepository(db *gorm.DB) *metricsSampleRepo {
	return &metricsSampleRepo{db: db}
}

// SaveMetricsSample appends one scoring snapshot.
func (r *metricsSampleRepo) SaveMetricsSample(ctx context.Context, sample *models.MetricsSample) error {
	if err := r.db.WithContext(ctx).Create(sample).Error; err != nil {
		return fmt.Errorf("saving metrics sample: %w", err)
	}
	return nil
}

// DeleteExpired removes metrics samples older than the retention cutoff.
func (r *metricsSampleRepo) DeleteExpired(ctx context.Context, before models.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&models.MetricsSample{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired metrics samples: %w", result.Error)
	}
	return result.RowsAffected, nil
}

var _ MetricsSampleRepository = (*metricsSampleRepo)(nil)
