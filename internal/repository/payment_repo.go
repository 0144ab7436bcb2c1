package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"gorm.io/gorm"
)

type PaymentOrderRepository interface {
	// Create stores the order and links it to its batch.
	Create(ctx context.Context, p *domain.PaymentOrder) error
	GetByReference(ctx context.Context, reference string) (*domain.PaymentOrder, error)
	// MarkExecuted flags the order as executed. Marking an executed order
	// again returns it unchanged.
	MarkExecuted(ctx context.Context, reference string, at time.Time) (*domain.PaymentOrder, error)
}

type GormPaymentOrderRepo struct {
	db *gorm.DB
}

func NewGormPaymentOrderRepo(db *gorm.DB) *GormPaymentOrderRepo {
	return &GormPaymentOrderRepo{db: db}
}

func (r *GormPaymentOrderRepo) Create(ctx context.Context, p *domain.PaymentOrder) error {
	if p == nil {
		return domain.ErrValidation
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := paymentOrderModelFromDomain(p)
		if err := tx.Create(model).Error; err != nil {
			return err
		}

		result := tx.Model(&BatchModel{}).
			Where("id = ?", p.BatchID).
			Update("payment_order_ref", p.Reference)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		*p = *paymentOrderModelToDomain(model)
		return nil
	})
}

func (r *GormPaymentOrderRepo) GetByReference(ctx context.Context, reference string) (*domain.PaymentOrder, error) {
	return getPaymentOrder(r.db.WithContext(ctx), reference)
}

func (r *GormPaymentOrderRepo) MarkExecuted(ctx context.Context, reference string, at time.Time) (*domain.PaymentOrder, error) {
	db := r.db.WithContext(ctx)

	result := db.Model(&PaymentOrderModel{}).
		Where("reference = ? AND executed = ?", reference, false).
		Updates(map[string]any{"executed": true, "executed_at": at})
	if result.Error != nil {
		return nil, result.Error
	}
	return getPaymentOrder(db, reference)
}

func getPaymentOrder(db *gorm.DB, reference string) (*domain.PaymentOrder, error) {
	var model PaymentOrderModel
	err := db.First(&model, "reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return paymentOrderModelToDomain(&model), nil
}
