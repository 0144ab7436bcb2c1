package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"gorm.io/gorm"
)

func createDocumentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_documents",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DocumentModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_documents_batch_id ON documents (batch_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_documents_active_handler ON documents (assigned_handler_id) WHERE state IN ('ASSIGNED', 'IN_PROGRESS')`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DocumentModel{})
		},
	}
}
