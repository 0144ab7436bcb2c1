package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"gorm.io/gorm"
)

type DocumentRepository interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByBatch(ctx context.Context, batchID string) ([]domain.Document, error)
	// Assign moves a pool document to ASSIGNED for a.HandlerID and appends
	// a.Record in the same transaction.
	Assign(ctx context.Context, a domain.Assignment) error
	UpdateState(ctx context.Context, change domain.DocumentStateChange) (*domain.Document, error)
}

type GormDocumentRepo struct {
	db *gorm.DB
}

func NewGormDocumentRepo(db *gorm.DB) *GormDocumentRepo {
	return &GormDocumentRepo{db: db}
}

func (r *GormDocumentRepo) Create(ctx context.Context, d *domain.Document) error {
	model := documentModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *documentModelToDomain(model)
	}
	return nil
}

func (r *GormDocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return getDocument(r.db.WithContext(ctx), id)
}

func (r *GormDocumentRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.Document, error) {
	var models []DocumentModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	docs := make([]domain.Document, 0, len(models))
	for i := range models {
		docs = append(docs, *documentModelToDomain(&models[i]))
	}
	return docs, nil
}

func (r *GormDocumentRepo) Assign(ctx context.Context, a domain.Assignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&DocumentModel{}).
			Where("id = ? AND state IN ?", a.Item.ID, domain.ReassignableDocumentStates).
			Where("batch_id IN (?)", openBatchIDs(tx))
		query = whereHandler(query, a.ExpectedHandlerID)

		result := query.Updates(map[string]any{
			"state":               domain.DocumentStateAssigned,
			"assigned_handler_id": a.HandlerID,
			"updated_at":          a.Record.CreatedAt,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return documentMiss(tx, a.Item.ID)
		}

		return tx.Create(assignmentRecordModelFromDomain(&a.Record)).Error
	})
}

func (r *GormDocumentRepo) UpdateState(ctx context.Context, change domain.DocumentStateChange) (*domain.Document, error) {
	db := r.db.WithContext(ctx)

	result := db.Model(&DocumentModel{}).
		Where("id = ? AND state = ?", change.DocumentID, change.From).
		Where("batch_id IN (?)", openBatchIDs(db)).
		Updates(map[string]any{"state": change.To, "updated_at": change.At})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, documentMiss(db, change.DocumentID)
	}
	return getDocument(db, change.DocumentID)
}

// openBatchIDs selects batches whose documents may still change.
func openBatchIDs(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).Model(&BatchModel{}).
		Select("id").
		Where("archived = ? AND status NOT IN ?", false, terminalBatchStatuses())
}

func getDocument(db *gorm.DB, id string) (*domain.Document, error) {
	var model DocumentModel
	err := db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return documentModelToDomain(&model), nil
}

func documentMiss(db *gorm.DB, id string) error {
	var count int64
	if err := db.Model(&DocumentModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrStaleState
}
