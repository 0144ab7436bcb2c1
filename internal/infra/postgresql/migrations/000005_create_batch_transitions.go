package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"gorm.io/gorm"
)

func createBatchTransitionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_batch_transitions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TransitionLogModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_batch_transitions_batch_id ON batch_transitions (batch_id, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TransitionLogModel{})
		},
	}
}
