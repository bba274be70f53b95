// Package migrations provides database migration management for streammon.
package migrations

import (
	"github.com/streammon/monitor/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create stream, error ledger, and metrics sample tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Stream{},
				&models.StreamError{},
				&models.MetricsSample{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"metrics_samples",
				"stream_errors",
				"streams",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}
