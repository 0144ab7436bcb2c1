package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

func TestBalancerReassignReturnedDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedHandler(t, "h1", domain.RoleCaseHandler, nil)
	f.seedHandler(t, "h2", domain.RoleCaseHandler, nil)
	f.seedBatch(t, "b1", domain.BatchStatusInProgress)
	docs := f.seedDocuments(t, "b1", "h1", domain.DocumentStateReturned)

	result, err := f.balancer.Reassign(context.Background(), ReassignRequest{
		Item:          docRef(docs[0].ID),
		FromHandlerID: "h1",
		ToHandlerID:   "h2",
		Reason:        "h1 on leave",
		Actor:         teamLead,
	})
	if err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}

	rec := result.Record
	if !rec.Reassignment || rec.FromHandlerID == nil || *rec.FromHandlerID != "h1" || rec.ToHandlerID != "h2" {
		t.Fatalf("record = %+v, want reassignment h1 -> h2", rec)
	}
	if rec.Reason == nil || *rec.Reason != "h1 on leave" {
		t.Fatalf("record reason = %v, want h1 on leave", rec.Reason)
	}

	doc, _ := f.store.Documents().GetByID(context.Background(), docs[0].ID)
	if doc.State != domain.DocumentStateAssigned || *doc.AssignedHandlerID != "h2" {
		t.Fatalf("document = %+v, want ASSIGNED to h2", doc)
	}

	sent := f.notifier.notifications()
	kinds := map[string]domain.NotificationKind{}
	for _, n := range sent {
		kinds[n.Recipient] = n.Kind
	}
	if kinds["h2"] != domain.NotificationItemReassigned || kinds["h1"] != domain.NotificationItemReleased {
		t.Fatalf("notifications = %+v, want REASSIGNED to h2 and RELEASED to h1", sent)
	}
}

func TestBalancerReassignBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedHandler(t, "h1", domain.RoleCaseHandler, nil)
	f.seedHandler(t, "h2", domain.RoleTeamLead, nil)
	f.seedBatch(t, "b1", domain.BatchStatusToAssign)

	if _, err := f.balancer.Assign(context.Background(), AssignRequest{Item: batchRef("b1"), HandlerID: "h1", Actor: teamLead}); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if _, err := f.balancer.Reassign(context.Background(), ReassignRequest{
		Item:          batchRef("b1"),
		FromHandlerID: "h1",
		ToHandlerID:   "h2",
		Reason:        "escalation",
		Actor:         admin,
	}); err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}

	records, _ := f.store.Assignments().ListByItem(context.Background(), batchRef("b1"))
	if len(records) != 2 || !records[1].Reassignment {
		t.Fatalf("assignment log = %+v, want assignment then reassignment", records)
	}
}

func TestBalancerReassignRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedHandler(t, "h1", domain.RoleCaseHandler, nil)
	f.seedHandler(t, "h2", domain.RoleCaseHandler, nil)
	f.seedBatch(t, "b1", domain.BatchStatusInProgress)
	docs := f.seedDocuments(t, "b1", "h1",
		domain.DocumentStateAssigned,
		domain.DocumentStateReturned,
		domain.DocumentStateTreated,
	)

	base := ReassignRequest{FromHandlerID: "h1", ToHandlerID: "h2", Reason: "rebalance", Actor: teamLead}
	with := func(mutate func(r *ReassignRequest)) ReassignRequest {
		r := base
		mutate(&r)
		return r
	}

	tests := []struct {
		name    string
		req     ReassignRequest
		wantErr error
	}{
		{name: "held document", req: with(func(r *ReassignRequest) { r.Item = docRef(docs[0].ID) }), wantErr: domain.ErrNotReassignable},
		{name: "treated document", req: with(func(r *ReassignRequest) { r.Item = docRef(docs[2].ID) }), wantErr: domain.ErrNotReassignable},
		{name: "wrong source handler", req: with(func(r *ReassignRequest) { r.Item = docRef(docs[1].ID); r.FromHandlerID = "h3" }), wantErr: domain.ErrConflict},
		{name: "missing reason", req: with(func(r *ReassignRequest) { r.Item = docRef(docs[1].ID); r.Reason = "  " }), wantErr: domain.ErrValidation},
		{name: "missing source", req: with(func(r *ReassignRequest) { r.Item = docRef(docs[1].ID); r.FromHandlerID = "" }), wantErr: domain.ErrValidation},
		{name: "same handler", req: with(func(r *ReassignRequest) { r.Item = docRef(docs[1].ID); r.ToHandlerID = "h1" }), wantErr: domain.ErrValidation},
		{name: "actor not allowed", req: with(func(r *ReassignRequest) { r.Item = docRef(docs[1].ID); r.Actor = financeOfficer }), wantErr: domain.ErrForbidden},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.balancer.Reassign(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Reassign() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	var notReassignable *domain.NotReassignableError
	_, err := f.balancer.Reassign(context.Background(), with(func(r *ReassignRequest) { r.Item = docRef(docs[0].ID) }))
	if !errors.As(err, &notReassignable) || notReassignable.State != domain.DocumentStateAssigned {
		t.Fatalf("Reassign() error = %v, want NotReassignableError in ASSIGNED", err)
	}
}
