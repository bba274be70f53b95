package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/streammon/monitor/internal/models"
)

// Repository is the single persistence facade handed to the evaluator,
// analysis pipeline, scheduler, and admin HTTP surface. It composes
// streamRepo and metricsSampleRepo so callers needing both (the evaluator)
// and callers needing only one (the scheduler's stream listing, the HTTP
// handlers' stream reads) can all depend on the same concrete value.
type Repository struct {
	*streamRepo
	*metricsSampleRepo
}

// New builds a Repository backed by db.
func New(db *gorm.DB) *Repository {
	return &Repository{
		streamRepo:        NewStreamRepository(db),
		metricsSampleRepo: NewMetricsSampleRepository(db),
	}
}

// Ping verifies the underlying connection is reachable, satisfying
// httpapi.Pinger for deployments that wire Repository directly into the
// health handler instead of the *database.DB wrapper.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.streamRepo.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var _ StreamRepository = (*Repository)(nil)
var _ MetricsSampleRepository = (*Repository)(nil)
