package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"go.uber.org/zap"
)

func TestDocumentServiceUpdateState(t *testing.T) {
	t.Parallel()

	handler := domain.Actor{UserID: "h1", Role: domain.RoleCaseHandler}
	other := domain.Actor{UserID: "h2", Role: domain.RoleCaseHandler}

	tests := []struct {
		name    string
		state   domain.DocumentState
		target  domain.DocumentState
		actor   domain.Actor
		wantErr error
	}{
		{name: "holder starts work", state: domain.DocumentStateAssigned, target: domain.DocumentStateInProgress, actor: handler},
		{name: "holder treats", state: domain.DocumentStateInProgress, target: domain.DocumentStateTreated, actor: handler},
		{name: "team lead returns", state: domain.DocumentStateInProgress, target: domain.DocumentStateReturned, actor: teamLead},
		{name: "other handler", state: domain.DocumentStateAssigned, target: domain.DocumentStateInProgress, actor: other, wantErr: domain.ErrForbidden},
		{name: "finance officer", state: domain.DocumentStateAssigned, target: domain.DocumentStateInProgress, actor: financeOfficer, wantErr: domain.ErrForbidden},
		{name: "terminal document", state: domain.DocumentStateTreated, target: domain.DocumentStateInProgress, actor: handler, wantErr: domain.ErrConflict},
		{name: "pool document", state: domain.DocumentStateReturned, target: domain.DocumentStateTreated, actor: handler, wantErr: domain.ErrConflict},
		{name: "unknown target", state: domain.DocumentStateAssigned, target: "LOST", actor: handler, wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.seedBatch(t, "b1", domain.BatchStatusInProgress)
			docs := f.seedDocuments(t, "b1", "h1", tt.state, domain.DocumentStateAssigned)
			svc, err := NewDocumentService(f.store.Batches(), f.store.Documents(), f.reconciler, zap.NewNop())
			if err != nil {
				t.Fatalf("NewDocumentService() error = %v", err)
			}

			result, err := svc.UpdateState(context.Background(), docs[0].ID, tt.target, tt.actor)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("UpdateState() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateState() error = %v", err)
			}
			if result.Document.State != tt.target {
				t.Fatalf("state = %s, want %s", result.Document.State, tt.target)
			}
		})
	}
}

func TestDocumentServiceLastTreatedDocumentProcessesBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBatch(t, "b1", domain.BatchStatusInProgress)
	docs := f.seedDocuments(t, "b1", "h1", domain.DocumentStateTreated, domain.DocumentStateInProgress)
	svc, _ := NewDocumentService(f.store.Batches(), f.store.Documents(), f.reconciler, zap.NewNop())

	result, err := svc.UpdateState(context.Background(), docs[1].ID, domain.DocumentStateRejected, domain.Actor{UserID: "h1", Role: domain.RoleCaseHandler})
	if err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if result.Reconcile == nil || !result.Reconcile.Changed || result.Reconcile.Rule != RuleAllDocumentsTreated {
		t.Fatalf("reconcile = %+v, want all_documents_treated change", result.Reconcile)
	}
	if got := f.batchStatus(t, "b1"); got != domain.BatchStatusProcessed {
		t.Fatalf("status = %s, want PROCESSED", got)
	}
}

func TestDocumentServiceReconcileFailureIsReported(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBatch(t, "b1", domain.BatchStatusInProgress)
	docs := f.seedDocuments(t, "b1", "h1", domain.DocumentStateAssigned)
	reconciler := &fakeReconciler{
		reconcileFn: func(ctx context.Context, batchID string) (*ReconcileResult, error) {
			return nil, errors.New("store unavailable")
		},
	}
	svc, _ := NewDocumentService(f.store.Batches(), f.store.Documents(), reconciler, zap.NewNop())

	result, err := svc.UpdateState(context.Background(), docs[0].ID, domain.DocumentStateInProgress, admin)
	if err != nil {
		t.Fatalf("UpdateState() error = %v, want success", err)
	}
	if result.ReconcileErr == nil {
		t.Fatal("reconcile error should be reported in the result")
	}
	doc, _ := f.store.Documents().GetByID(context.Background(), docs[0].ID)
	if doc.State != domain.DocumentStateInProgress {
		t.Fatalf("state = %s, want IN_PROGRESS", doc.State)
	}
}

func TestDocumentServiceRejectsDocumentsOfDeadBatches(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBatch(t, "rejected", domain.BatchStatusRejected)
	rejected := f.seedDocuments(t, "rejected", "h1", domain.DocumentStateAssigned)
	f.seedBatch(t, "archived", domain.BatchStatusClosed)
	archived := f.seedDocuments(t, "archived", "h1", domain.DocumentStateInProgress)
	if err := f.store.Batches().Archive(context.Background(), "archived", time.Now().UTC()); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	svc, _ := NewDocumentService(f.store.Batches(), f.store.Documents(), f.reconciler, zap.NewNop())

	for _, doc := range []domain.Document{rejected[0], archived[0]} {
		_, err := svc.UpdateState(context.Background(), doc.ID, domain.DocumentStateTreated, admin)
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("UpdateState(%s) error = %v, want ErrConflict", doc.ID, err)
		}
		stored, _ := f.store.Documents().GetByID(context.Background(), doc.ID)
		if stored.State != doc.State {
			t.Fatalf("state = %s, want %s unchanged", stored.State, doc.State)
		}
	}
}

func TestMemoryDocumentWritesRequireOpenBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBatch(t, "closed", domain.BatchStatusClosed)
	docs := f.seedDocuments(t, "closed", "", domain.DocumentStateUnassigned)

	err := f.store.Documents().Assign(context.Background(), domain.Assignment{
		Item:      docRef(docs[0].ID),
		HandlerID: "h1",
		Record:    domain.AssignmentRecord{ID: "r1", Item: docRef(docs[0].ID), ToHandlerID: "h1"},
	})
	if !errors.Is(err, domain.ErrStaleState) {
		t.Fatalf("Assign() error = %v, want ErrStaleState", err)
	}
}
