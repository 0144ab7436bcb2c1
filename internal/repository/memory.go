package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/workflow"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for tests and STORE_DRIVER=memory)
// =============================================================================

// MemoryStore keeps every table behind one lock so that conditional writes
// and the audit rows written with them are atomic, like the gorm transactions.
type MemoryStore struct {
	mu          sync.RWMutex
	batches     map[string]domain.Batch
	documents   map[string]domain.Document
	users       map[string]domain.Handler
	payments    map[string]domain.PaymentOrder
	assignments []domain.AssignmentRecord
	transitions []domain.TransitionLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches:   make(map[string]domain.Batch),
		documents: make(map[string]domain.Document),
		users:     make(map[string]domain.Handler),
		payments:  make(map[string]domain.PaymentOrder),
	}
}

func (m *MemoryStore) Batches() *MemoryBatchRepo             { return &MemoryBatchRepo{m} }
func (m *MemoryStore) Documents() *MemoryDocumentRepo         { return &MemoryDocumentRepo{m} }
func (m *MemoryStore) Assignments() *MemoryAssignmentRepo     { return &MemoryAssignmentRepo{m} }
func (m *MemoryStore) Users() *MemoryUserRepo                 { return &MemoryUserRepo{m} }
func (m *MemoryStore) PaymentOrders() *MemoryPaymentOrderRepo { return &MemoryPaymentOrderRepo{m} }

func stampTimes(created *time.Time, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}

// =============================================================================
// BATCHES
// =============================================================================

type MemoryBatchRepo struct{ s *MemoryStore }

func (r *MemoryBatchRepo) Create(_ context.Context, b *domain.Batch) error {
	if b == nil {
		return domain.ErrValidation
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, exists := r.s.batches[b.ID]; exists {
		return domain.ErrConflict
	}
	stampTimes(&b.CreatedAt, &b.UpdatedAt)
	r.s.batches[b.ID] = *b
	return nil
}

func (r *MemoryBatchRepo) GetByID(_ context.Context, id string) (*domain.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (r *MemoryBatchRepo) Snapshot(_ context.Context, id string, opts SnapshotOptions) (*domain.BatchSnapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	snapshot := &domain.BatchSnapshot{Batch: b}
	if opts.IncludeDocuments {
		snapshot.Documents = r.s.documentsOfLocked(id)
		snapshot.DocumentsLoaded = true
	}
	if opts.IncludePayment {
		snapshot.PaymentOrder = r.s.paymentOfLocked(b)
	}
	return snapshot, nil
}

func (r *MemoryBatchRepo) ApplyStatusChange(_ context.Context, change domain.StatusChange) (*domain.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.batches[change.BatchID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if b.Status != change.From || b.Archived {
		return nil, domain.ErrStaleState
	}

	b = workflow.Apply(b, change)
	r.s.batches[b.ID] = b

	r.s.transitions = append(r.s.transitions, domain.TransitionLogEntry{
		ID:        uuid.NewString(),
		BatchID:   change.BatchID,
		From:      change.From,
		To:        change.To,
		ActorID:   change.ActorID,
		ActorRole: change.ActorRole,
		CreatedAt: change.At,
	})
	return &b, nil
}

func (r *MemoryBatchRepo) Assign(_ context.Context, a domain.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.batches[a.Item.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Archived || b.Status.IsTerminal() || !sameHandler(b.AssignedHandlerID, a.ExpectedHandlerID) {
		return domain.ErrStaleState
	}

	handlerID := a.HandlerID
	b.AssignedHandlerID = &handlerID
	b.UpdatedAt = a.Record.CreatedAt
	r.s.batches[b.ID] = b
	r.s.assignments = append(r.s.assignments, a.Record)
	return nil
}

func (r *MemoryBatchRepo) Archive(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Archived || !b.Status.IsTerminal() {
		return domain.ErrConflict
	}
	b.Archived = true
	b.UpdatedAt = at
	r.s.batches[id] = b
	return nil
}

func (r *MemoryBatchRepo) ListIDsByStatus(_ context.Context, statuses []domain.BatchStatus, afterID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	wanted := make(map[domain.BatchStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	r.s.mu.RLock()
	ids := make([]string, 0)
	for id, b := range r.s.batches {
		if wanted[b.Status] && !b.Archived && id > afterID {
			ids = append(ids, id)
		}
	}
	r.s.mu.RUnlock()

	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *MemoryBatchRepo) ListTransitions(_ context.Context, batchID string) ([]domain.TransitionLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := make([]domain.TransitionLogEntry, 0)
	for _, e := range r.s.transitions {
		if e.BatchID == batchID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type MemoryDocumentRepo struct{ s *MemoryStore }

func (r *MemoryDocumentRepo) Create(_ context.Context, d *domain.Document) error {
	if d == nil {
		return domain.ErrValidation
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.batches[d.BatchID]; !ok {
		return domain.ErrNotFound
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if _, exists := r.s.documents[d.ID]; exists {
		return domain.ErrConflict
	}
	stampTimes(&d.CreatedAt, &d.UpdatedAt)
	r.s.documents[d.ID] = *d
	return nil
}

func (r *MemoryDocumentRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (r *MemoryDocumentRepo) ListByBatch(_ context.Context, batchID string) ([]domain.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.documentsOfLocked(batchID), nil
}

func (r *MemoryDocumentRepo) Assign(_ context.Context, a domain.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.documents[a.Item.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if !d.State.IsReassignable() || !sameHandler(d.AssignedHandlerID, a.ExpectedHandlerID) || !r.s.batchOpen(d.BatchID) {
		return domain.ErrStaleState
	}

	handlerID := a.HandlerID
	d.State = domain.DocumentStateAssigned
	d.AssignedHandlerID = &handlerID
	d.UpdatedAt = a.Record.CreatedAt
	r.s.documents[d.ID] = d
	r.s.assignments = append(r.s.assignments, a.Record)
	return nil
}

func (r *MemoryDocumentRepo) UpdateState(_ context.Context, change domain.DocumentStateChange) (*domain.Document, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.documents[change.DocumentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if d.State != change.From || !r.s.batchOpen(d.BatchID) {
		return nil, domain.ErrStaleState
	}
	d.State = change.To
	d.UpdatedAt = change.At
	r.s.documents[d.ID] = d
	return &d, nil
}

func (m *MemoryStore) documentsOfLocked(batchID string) []domain.Document {
	docs := make([]domain.Document, 0)
	for _, d := range m.documents {
		if d.BatchID == batchID {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs
}

// =============================================================================
// ASSIGNMENT LOG
// =============================================================================

type MemoryAssignmentRepo struct{ s *MemoryStore }

func (r *MemoryAssignmentRepo) ListByItem(_ context.Context, item domain.ItemRef) ([]domain.AssignmentRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	records := make([]domain.AssignmentRecord, 0)
	for _, rec := range r.s.assignments {
		if rec.Item == item {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *MemoryAssignmentRepo) ListByHandler(_ context.Context, handlerID string, limit int) ([]domain.AssignmentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	records := make([]domain.AssignmentRecord, 0)
	for i := len(r.s.assignments) - 1; i >= 0 && len(records) < limit; i-- {
		rec := r.s.assignments[i]
		if rec.ToHandlerID == handlerID || (rec.FromHandlerID != nil && *rec.FromHandlerID == handlerID) {
			records = append(records, rec)
		}
	}
	return records, nil
}

// =============================================================================
// USERS
// =============================================================================

type MemoryUserRepo struct{ s *MemoryStore }

func (r *MemoryUserRepo) Upsert(_ context.Context, h *domain.Handler) error {
	if h == nil || h.ID == "" {
		return domain.ErrValidation
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[h.ID] = *h
	return nil
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id string) (*domain.Handler, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	h, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &h, nil
}

func (r *MemoryUserRepo) ListAssignable(_ context.Context) ([]domain.Handler, error) {
	r.s.mu.RLock()
	handlers := make([]domain.Handler, 0)
	for _, h := range r.s.users {
		if h.Active && h.Role.CanReceiveWork() {
			handlers = append(handlers, h)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(handlers, func(i, j int) bool { return handlers[i].ID < handlers[j].ID })
	return handlers, nil
}

func (r *MemoryUserRepo) CountActiveItems(_ context.Context, handlerID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	count := 0
	for _, d := range r.s.documents {
		if d.State.IsActive() && d.AssignedHandlerID != nil && *d.AssignedHandlerID == handlerID {
			count++
		}
	}
	for _, b := range r.s.batches {
		if !b.Status.IsTerminal() && !b.Archived && b.AssignedHandlerID != nil && *b.AssignedHandlerID == handlerID {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// PAYMENT ORDERS
// =============================================================================

type MemoryPaymentOrderRepo struct{ s *MemoryStore }

func (r *MemoryPaymentOrderRepo) Create(_ context.Context, p *domain.PaymentOrder) error {
	if p == nil || p.Reference == "" {
		return domain.ErrValidation
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.batches[p.BatchID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, exists := r.s.payments[p.Reference]; exists {
		return domain.ErrConflict
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.s.payments[p.Reference] = *p

	ref := p.Reference
	b.PaymentOrderRef = &ref
	r.s.batches[b.ID] = b
	return nil
}

func (r *MemoryPaymentOrderRepo) GetByReference(_ context.Context, reference string) (*domain.PaymentOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.payments[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *MemoryPaymentOrderRepo) MarkExecuted(_ context.Context, reference string, at time.Time) (*domain.PaymentOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !p.Executed {
		p.Executed = true
		p.ExecutedAt = &at
		r.s.payments[reference] = p
	}
	return &p, nil
}

func (m *MemoryStore) paymentOfLocked(b domain.Batch) *domain.PaymentOrder {
	if b.PaymentOrderRef != nil {
		if p, ok := m.payments[*b.PaymentOrderRef]; ok {
			return &p
		}
		return nil
	}
	var latest *domain.PaymentOrder
	for _, p := range m.payments {
		if p.BatchID != b.ID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			p := p
			latest = &p
		}
	}
	return latest
}

// batchOpen reports whether documents of the batch may still change. Callers
// hold s.mu.
func (s *MemoryStore) batchOpen(batchID string) bool {
	b, ok := s.batches[batchID]
	return ok && !b.Archived && !b.Status.IsTerminal()
}

func sameHandler(current *string, expected *string) bool {
	if current == nil || *current == "" {
		return expected == nil || *expected == ""
	}
	return expected != nil && *current == *expected
}

var (
	_ BatchRepository        = (*MemoryBatchRepo)(nil)
	_ DocumentRepository     = (*MemoryDocumentRepo)(nil)
	_ AssignmentRepository   = (*MemoryAssignmentRepo)(nil)
	_ UserRepository         = (*MemoryUserRepo)(nil)
	_ PaymentOrderRepository = (*MemoryPaymentOrderRepo)(nil)

	_ BatchRepository        = (*GormBatchRepo)(nil)
	_ DocumentRepository     = (*GormDocumentRepo)(nil)
	_ AssignmentRepository   = (*GormAssignmentRepo)(nil)
	_ UserRepository         = (*GormUserRepo)(nil)
	_ PaymentOrderRepository = (*GormPaymentOrderRepo)(nil)
)
