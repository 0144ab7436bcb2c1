package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository interface {
	Upsert(ctx context.Context, h *domain.Handler) error
	GetByID(ctx context.Context, id string) (*domain.Handler, error)
	// ListAssignable returns active users that can receive work, ordered by id.
	ListAssignable(ctx context.Context) ([]domain.Handler, error)
	// CountActiveItems counts documents in ASSIGNED or IN_PROGRESS plus
	// non-terminal, non-archived batches currently held by handlerID.
	CountActiveItems(ctx context.Context, handlerID string) (int, error)
}

type GormUserRepo struct {
	db *gorm.DB
}

func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

func (r *GormUserRepo) Upsert(ctx context.Context, h *domain.Handler) error {
	if h == nil {
		return domain.ErrValidation
	}
	model := &UserModel{
		ID:       h.ID,
		FullName: h.FullName,
		Role:     h.Role,
		Active:   h.Active,
		Capacity: h.Capacity,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "role", "active", "capacity"}),
		}).
		Create(model).Error
}

func (r *GormUserRepo) GetByID(ctx context.Context, id string) (*domain.Handler, error) {
	var model UserModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return userModelToDomain(&model), nil
}

func (r *GormUserRepo) ListAssignable(ctx context.Context) ([]domain.Handler, error) {
	var models []UserModel
	err := r.db.WithContext(ctx).
		Where("active = ? AND role IN ?", true, assignableRoles).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	handlers := make([]domain.Handler, 0, len(models))
	for i := range models {
		handlers = append(handlers, *userModelToDomain(&models[i]))
	}
	return handlers, nil
}

func (r *GormUserRepo) CountActiveItems(ctx context.Context, handlerID string) (int, error) {
	db := r.db.WithContext(ctx)

	var documents int64
	err := db.Model(&DocumentModel{}).
		Where("assigned_handler_id = ? AND state IN ?", handlerID, domain.ActiveDocumentStates).
		Count(&documents).Error
	if err != nil {
		return 0, err
	}

	var batches int64
	err = db.Model(&BatchModel{}).
		Where("assigned_handler_id = ? AND archived = ? AND status NOT IN ?", handlerID, false, terminalBatchStatuses()).
		Count(&batches).Error
	if err != nil {
		return 0, err
	}

	return int(documents + batches), nil
}

var assignableRoles = []domain.Role{domain.RoleCaseHandler, domain.RoleTeamLead}
