package repository

import (
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

// BatchModel is the persistence model for the batches table.
type BatchModel struct {
	ID                   string             `gorm:"type:uuid;primaryKey"`
	ClientReference      string             `gorm:"type:varchar(255);not null"`
	ReceptionDate        *time.Time         `gorm:"type:timestamptz"`
	ContractualDelayDays *int               `gorm:"type:int"`
	Status               domain.BatchStatus `gorm:"type:varchar(32);not null"`
	AssignedHandlerID    *string            `gorm:"type:varchar(64)"`
	ScanStartedAt        *time.Time         `gorm:"type:timestamptz"`
	ScanEndedAt          *time.Time         `gorm:"type:timestamptz"`
	ClosedAt             *time.Time         `gorm:"type:timestamptz"`
	PaymentOrderRef      *string            `gorm:"type:varchar(64)"`
	Archived             bool               `gorm:"not null;default:false"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// DocumentModel is the persistence model for the documents table.
type DocumentModel struct {
	ID                string               `gorm:"type:uuid;primaryKey"`
	BatchID           string               `gorm:"type:uuid;not null"`
	State             domain.DocumentState `gorm:"type:varchar(20);not null"`
	AssignedHandlerID *string              `gorm:"type:varchar(64)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (DocumentModel) TableName() string {
	return "documents"
}

// UserModel is the persistence model for staff users.
type UserModel struct {
	ID       string      `gorm:"type:varchar(64);primaryKey"`
	FullName string      `gorm:"type:varchar(255);not null"`
	Role     domain.Role `gorm:"type:varchar(32);not null"`
	Active   bool        `gorm:"not null;default:true"`
	Capacity *int        `gorm:"type:int"`
}

func (UserModel) TableName() string {
	return "users"
}

// AssignmentRecordModel is the persistence model for the append-only
// assignment_records table.
type AssignmentRecordModel struct {
	ID            string          `gorm:"type:uuid;primaryKey"`
	ItemKind      domain.ItemKind `gorm:"type:varchar(16);not null"`
	ItemID        string          `gorm:"type:uuid;not null"`
	FromHandlerID *string         `gorm:"type:varchar(64)"`
	ToHandlerID   string          `gorm:"type:varchar(64);not null"`
	Reason        *string         `gorm:"type:text"`
	Reassignment  bool            `gorm:"not null;default:false"`
	ActorID       string          `gorm:"type:varchar(64);not null"`
	CreatedAt     time.Time
}

func (AssignmentRecordModel) TableName() string {
	return "assignment_records"
}

// TransitionLogModel is the persistence model for batch_transitions.
type TransitionLogModel struct {
	ID        string             `gorm:"type:uuid;primaryKey"`
	BatchID   string             `gorm:"type:uuid;not null"`
	FromState domain.BatchStatus `gorm:"column:from_status;type:varchar(32);not null"`
	ToState   domain.BatchStatus `gorm:"column:to_status;type:varchar(32);not null"`
	ActorID   string             `gorm:"type:varchar(64);not null"`
	ActorRole domain.Role        `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time
}

func (TransitionLogModel) TableName() string {
	return "batch_transitions"
}

// PaymentOrderModel is the persistence model for payment_orders.
type PaymentOrderModel struct {
	Reference  string     `gorm:"type:varchar(64);primaryKey"`
	BatchID    string     `gorm:"type:uuid;not null"`
	Executed   bool       `gorm:"not null;default:false"`
	ExecutedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time
}

func (PaymentOrderModel) TableName() string {
	return "payment_orders"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:                   b.ID,
		ClientReference:      b.ClientReference,
		ReceptionDate:        b.ReceptionDate,
		ContractualDelayDays: b.ContractualDelayDays,
		Status:               b.Status,
		AssignedHandlerID:    b.AssignedHandlerID,
		ScanStartedAt:        b.ScanStartedAt,
		ScanEndedAt:          b.ScanEndedAt,
		ClosedAt:             b.ClosedAt,
		PaymentOrderRef:      b.PaymentOrderRef,
		Archived:             b.Archived,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:                   m.ID,
		ClientReference:      m.ClientReference,
		ReceptionDate:        m.ReceptionDate,
		ContractualDelayDays: m.ContractualDelayDays,
		Status:               m.Status,
		AssignedHandlerID:    m.AssignedHandlerID,
		ScanStartedAt:        m.ScanStartedAt,
		ScanEndedAt:          m.ScanEndedAt,
		ClosedAt:             m.ClosedAt,
		PaymentOrderRef:      m.PaymentOrderRef,
		Archived:             m.Archived,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func documentModelFromDomain(d *domain.Document) *DocumentModel {
	if d == nil {
		return nil
	}

	return &DocumentModel{
		ID:                d.ID,
		BatchID:           d.BatchID,
		State:             d.State,
		AssignedHandlerID: d.AssignedHandlerID,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func documentModelToDomain(m *DocumentModel) *domain.Document {
	if m == nil {
		return nil
	}

	return &domain.Document{
		ID:                m.ID,
		BatchID:           m.BatchID,
		State:             m.State,
		AssignedHandlerID: m.AssignedHandlerID,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func userModelToDomain(m *UserModel) *domain.Handler {
	if m == nil {
		return nil
	}

	return &domain.Handler{
		ID:       m.ID,
		FullName: m.FullName,
		Role:     m.Role,
		Active:   m.Active,
		Capacity: m.Capacity,
	}
}

func assignmentRecordModelFromDomain(r *domain.AssignmentRecord) *AssignmentRecordModel {
	if r == nil {
		return nil
	}

	return &AssignmentRecordModel{
		ID:            r.ID,
		ItemKind:      r.Item.Kind,
		ItemID:        r.Item.ID,
		FromHandlerID: r.FromHandlerID,
		ToHandlerID:   r.ToHandlerID,
		Reason:        r.Reason,
		Reassignment:  r.Reassignment,
		ActorID:       r.ActorID,
		CreatedAt:     r.CreatedAt,
	}
}

func assignmentRecordModelToDomain(m *AssignmentRecordModel) *domain.AssignmentRecord {
	if m == nil {
		return nil
	}

	return &domain.AssignmentRecord{
		ID:            m.ID,
		Item:          domain.ItemRef{Kind: m.ItemKind, ID: m.ItemID},
		FromHandlerID: m.FromHandlerID,
		ToHandlerID:   m.ToHandlerID,
		Reason:        m.Reason,
		Reassignment:  m.Reassignment,
		ActorID:       m.ActorID,
		CreatedAt:     m.CreatedAt,
	}
}

func transitionLogModelToDomain(m *TransitionLogModel) *domain.TransitionLogEntry {
	if m == nil {
		return nil
	}

	return &domain.TransitionLogEntry{
		ID:        m.ID,
		BatchID:   m.BatchID,
		From:      m.FromState,
		To:        m.ToState,
		ActorID:   m.ActorID,
		ActorRole: m.ActorRole,
		CreatedAt: m.CreatedAt,
	}
}

func paymentOrderModelFromDomain(p *domain.PaymentOrder) *PaymentOrderModel {
	if p == nil {
		return nil
	}

	return &PaymentOrderModel{
		Reference:  p.Reference,
		BatchID:    p.BatchID,
		Executed:   p.Executed,
		ExecutedAt: p.ExecutedAt,
		CreatedAt:  p.CreatedAt,
	}
}

func paymentOrderModelToDomain(m *PaymentOrderModel) *domain.PaymentOrder {
	if m == nil {
		return nil
	}

	return &domain.PaymentOrder{
		Reference:  m.Reference,
		BatchID:    m.BatchID,
		Executed:   m.Executed,
		ExecutedAt: m.ExecutedAt,
		CreatedAt:  m.CreatedAt,
	}
}

func terminalBatchStatuses() []domain.BatchStatus {
	statuses := make([]domain.BatchStatus, 0, 3)
	for _, status := range domain.AllBatchStatuses {
		if status.IsTerminal() {
			statuses = append(statuses, status)
		}
	}
	return statuses
}
