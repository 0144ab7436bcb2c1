package repository

import (
	"context"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"gorm.io/gorm"
)

// AssignmentRepository reads the append-only assignment log. Records are
// written by the batch and document repositories together with the
// ownership change they describe.
type AssignmentRepository interface {
	ListByItem(ctx context.Context, item domain.ItemRef) ([]domain.AssignmentRecord, error)
	ListByHandler(ctx context.Context, handlerID string, limit int) ([]domain.AssignmentRecord, error)
}

type GormAssignmentRepo struct {
	db *gorm.DB
}

func NewGormAssignmentRepo(db *gorm.DB) *GormAssignmentRepo {
	return &GormAssignmentRepo{db: db}
}

func (r *GormAssignmentRepo) ListByItem(ctx context.Context, item domain.ItemRef) ([]domain.AssignmentRecord, error) {
	var models []AssignmentRecordModel
	err := r.db.WithContext(ctx).
		Where("item_kind = ? AND item_id = ?", item.Kind, item.ID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return assignmentRecordsToDomain(models), nil
}

func (r *GormAssignmentRepo) ListByHandler(ctx context.Context, handlerID string, limit int) ([]domain.AssignmentRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []AssignmentRecordModel
	err := r.db.WithContext(ctx).
		Where("to_handler_id = ? OR from_handler_id = ?", handlerID, handlerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return assignmentRecordsToDomain(models), nil
}

func assignmentRecordsToDomain(models []AssignmentRecordModel) []domain.AssignmentRecord {
	records := make([]domain.AssignmentRecord, 0, len(models))
	for i := range models {
		records = append(records, *assignmentRecordModelToDomain(&models[i]))
	}
	return records
}
