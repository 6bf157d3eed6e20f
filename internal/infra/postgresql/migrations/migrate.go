package migrations

import (
	"github.com/fieldserve/notify-planner/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_planned_notifications",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.PlannedNotificationModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_planned_status_scheduled ON planned_notifications (status, scheduled_at)`,
					`CREATE INDEX IF NOT EXISTS idx_planned_client_id ON planned_notifications (client_id) WHERE client_id IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_planned_device_id ON planned_notifications (device_id) WHERE device_id IS NOT NULL`,
					// One active automatic plan per (device, type). This index is
					// what makes refresh idempotent under concurrency: a second
					// insert loses with a unique violation instead of duplicating.
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_planned_active_per_device_type
					 ON planned_notifications (device_id, notification_type)
					 WHERE status = 'SCHEDULED' AND planned_source IN ('AUTOMATIC_INSPECTION', 'AUTOMATIC_EXPIRATION')`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.PlannedNotificationModel{})
			},
		},
		{
			ID: "000002_add_dispatch_marker_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(
					`CREATE INDEX IF NOT EXISTS idx_planned_due_dispatch
					 ON planned_notifications (scheduled_at)
					 WHERE status = 'SCHEDULED' AND dispatched_at IS NULL`,
				).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_planned_due_dispatch`).Error
			},
		},
		{
			ID: "000003_add_retention_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(
					`CREATE INDEX IF NOT EXISTS idx_planned_terminal_updated
					 ON planned_notifications (updated_at)
					 WHERE status IN ('SENT', 'CANCELLED', 'SKIPPED')`,
				).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_planned_terminal_updated`).Error
			},
		},
	})

	return m.Migrate()
}
