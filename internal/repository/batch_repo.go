package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"gorm.io/gorm"
)

// SnapshotOptions selects the related data loaded with a batch.
type SnapshotOptions struct {
	IncludeDocuments bool
	IncludePayment   bool
}

type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	Snapshot(ctx context.Context, id string, opts SnapshotOptions) (*domain.BatchSnapshot, error)
	// ApplyStatusChange writes change only if the stored status still equals
	// change.From. A miss on an existing batch returns domain.ErrStaleState.
	ApplyStatusChange(ctx context.Context, change domain.StatusChange) (*domain.Batch, error)
	Assign(ctx context.Context, a domain.Assignment) error
	Archive(ctx context.Context, id string, at time.Time) error
	ListIDsByStatus(ctx context.Context, statuses []domain.BatchStatus, afterID string, limit int) ([]string, error)
	ListTransitions(ctx context.Context, batchID string) ([]domain.TransitionLogEntry, error)
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	return getBatch(r.db.WithContext(ctx), id)
}

func (r *GormBatchRepo) Snapshot(ctx context.Context, id string, opts SnapshotOptions) (*domain.BatchSnapshot, error) {
	db := r.db.WithContext(ctx)

	batch, err := getBatch(db, id)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.BatchSnapshot{Batch: *batch}

	if opts.IncludeDocuments {
		var models []DocumentModel
		if err := db.Where("batch_id = ?", id).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
			return nil, err
		}
		snapshot.Documents = make([]domain.Document, 0, len(models))
		for i := range models {
			snapshot.Documents = append(snapshot.Documents, *documentModelToDomain(&models[i]))
		}
		snapshot.DocumentsLoaded = true
	}

	if opts.IncludePayment {
		var model PaymentOrderModel
		query := db.Model(&PaymentOrderModel{})
		if batch.PaymentOrderRef != nil {
			query = query.Where("reference = ?", *batch.PaymentOrderRef)
		} else {
			query = query.Where("batch_id = ?", id).Order("created_at DESC")
		}
		err := query.First(&model).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return nil, err
		default:
			snapshot.PaymentOrder = paymentOrderModelToDomain(&model)
		}
	}

	return snapshot, nil
}

func (r *GormBatchRepo) ApplyStatusChange(ctx context.Context, change domain.StatusChange) (*domain.Batch, error) {
	var updated *domain.Batch

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":     change.To,
			"updated_at": change.At,
		}
		if change.ScanStartedAt != nil {
			updates["scan_started_at"] = *change.ScanStartedAt
		}
		if change.ScanEndedAt != nil {
			updates["scan_ended_at"] = *change.ScanEndedAt
		}
		if change.ClosedAt != nil {
			updates["closed_at"] = *change.ClosedAt
		}

		result := tx.Model(&BatchModel{}).
			Where("id = ? AND status = ? AND archived = ?", change.BatchID, change.From, false).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return batchMiss(tx, change.BatchID, domain.ErrStaleState)
		}

		entry := &TransitionLogModel{
			ID:        uuid.NewString(),
			BatchID:   change.BatchID,
			FromState: change.From,
			ToState:   change.To,
			ActorID:   change.ActorID,
			ActorRole: change.ActorRole,
			CreatedAt: change.At,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		batch, err := getBatch(tx, change.BatchID)
		if err != nil {
			return err
		}
		updated = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *GormBatchRepo) Assign(ctx context.Context, a domain.Assignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&BatchModel{}).
			Where("id = ? AND archived = ? AND status NOT IN ?", a.Item.ID, false, terminalBatchStatuses())
		query = whereHandler(query, a.ExpectedHandlerID)

		result := query.Updates(map[string]any{
			"assigned_handler_id": a.HandlerID,
			"updated_at":          a.Record.CreatedAt,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return batchMiss(tx, a.Item.ID, domain.ErrStaleState)
		}

		return tx.Create(assignmentRecordModelFromDomain(&a.Record)).Error
	})
}

func (r *GormBatchRepo) Archive(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ? AND archived = ? AND status IN ?", id, false, terminalBatchStatuses()).
		Updates(map[string]any{"archived": true, "updated_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return batchMiss(r.db.WithContext(ctx), id, domain.ErrConflict)
	}
	return nil
}

func (r *GormBatchRepo) ListIDsByStatus(ctx context.Context, statuses []domain.BatchStatus, afterID string, limit int) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("status IN ? AND archived = ?", statuses, false)
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}

	var ids []string
	if err := query.Order("id ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormBatchRepo) ListTransitions(ctx context.Context, batchID string) ([]domain.TransitionLogEntry, error) {
	var models []TransitionLogModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.TransitionLogEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *transitionLogModelToDomain(&models[i]))
	}
	return entries, nil
}

func getBatch(db *gorm.DB, id string) (*domain.Batch, error) {
	var model BatchModel
	err := db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

// batchMiss turns a conditional update that touched no rows into ErrNotFound
// when the batch is gone, or into missErr otherwise.
func batchMiss(db *gorm.DB, id string, missErr error) error {
	var count int64
	if err := db.Model(&BatchModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return missErr
}

func whereHandler(query *gorm.DB, expected *string) *gorm.DB {
	if expected == nil {
		return query.Where("assigned_handler_id IS NULL")
	}
	return query.Where("assigned_handler_id = ?", *expected)
}
