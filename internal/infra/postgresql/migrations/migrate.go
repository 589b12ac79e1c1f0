package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/report-dispatch/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_batch_jobs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.BatchJobModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_batch_jobs_status_created ON batch_jobs (status, created_at)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.BatchJobModel{})
			},
		},
		{
			ID: "000002_create_queue_entries",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.QueueEntryModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_queue_entries_due ON queue_entries (status, priority, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_queue_entries_retry ON queue_entries (next_retry_at) WHERE status = 'FAILED'`,
					`CREATE INDEX IF NOT EXISTS idx_queue_entries_batch_job_id ON queue_entries (batch_job_id) WHERE batch_job_id IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.QueueEntryModel{})
			},
		},
		{
			ID: "000003_create_directory_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DocumentModel{}, &repository.RecipientModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_documents_scope ON documents (cohort_id, period_id)`,
					`CREATE INDEX IF NOT EXISTS idx_sponsor_recipients_subject ON sponsor_recipients (subject_id)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.RecipientModel{}, &repository.DocumentModel{})
			},
		},
	})

	return m.Migrate()
}
