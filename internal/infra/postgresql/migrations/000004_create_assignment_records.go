package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"gorm.io/gorm"
)

func createAssignmentRecordsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_assignment_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.AssignmentRecordModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_assignment_records_item ON assignment_records (item_kind, item_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_assignment_records_to_handler ON assignment_records (to_handler_id, created_at)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.AssignmentRecordModel{})
		},
	}
}
