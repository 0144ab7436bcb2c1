package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/service"
	"github.com/kursadbilgin/bordereau-flow/internal/sla"
)

type BatchService interface {
	Create(ctx context.Context, in service.CreateBatchInput, actor domain.Actor) (*domain.Batch, error)
	AddDocuments(ctx context.Context, batchID string, count int, actor domain.Actor) ([]domain.Document, error)
	Get(ctx context.Context, batchID string) (*service.BatchView, error)
	SLA(ctx context.Context, batchID string) (sla.Result, error)
	History(ctx context.Context, batchID string) (*service.BatchHistory, error)
	Archive(ctx context.Context, batchID string, actor domain.Actor) error
	RegisterPaymentOrder(ctx context.Context, batchID string, reference string, actor domain.Actor) (*domain.PaymentOrder, error)
	MarkPaymentExecuted(ctx context.Context, reference string, actor domain.Actor) (*service.PaymentExecutedResult, error)
}

type TransitionService interface {
	Transition(ctx context.Context, req service.TransitionRequest) (*domain.Batch, error)
	BulkTransition(ctx context.Context, reqs []service.TransitionRequest) ([]service.ItemOutcome, error)
}

type AssignmentService interface {
	Assign(ctx context.Context, req service.AssignRequest) (*service.AssignResult, error)
	BulkAssign(ctx context.Context, items []domain.ItemRef, handlerID string, actor domain.Actor) ([]service.ItemOutcome, error)
	AutoAssign(ctx context.Context, item domain.ItemRef, actor domain.Actor) (*service.AssignResult, error)
	Reassign(ctx context.Context, req service.ReassignRequest) (*service.AssignResult, error)
	Workload(ctx context.Context, handlerID string) (domain.Workload, error)
	WorkloadOverview(ctx context.Context, actor domain.Actor) (*service.WorkloadOverview, error)
}

type DocumentService interface {
	UpdateState(ctx context.Context, documentID string, target domain.DocumentState, actor domain.Actor) (*service.DocumentUpdateResult, error)
}

type StaffService interface {
	Upsert(ctx context.Context, in service.UpsertHandlerInput, actor domain.Actor) (*domain.Handler, error)
}

type SLAService interface {
	Breaches(ctx context.Context, actor domain.Actor) ([]service.SLABreach, error)
}

// Services groups the application services exposed over HTTP.
type Services struct {
	Batches     BatchService
	Transitions TransitionService
	Reconciler  service.BatchReconciler
	Assignments AssignmentService
	Documents   DocumentService
	Staff       StaffService
	SLA         SLAService
}

func (s Services) validate() error {
	switch {
	case s.Batches == nil:
		return fmt.Errorf("batch service is required")
	case s.Transitions == nil:
		return fmt.Errorf("transition service is required")
	case s.Reconciler == nil:
		return fmt.Errorf("reconciler is required")
	case s.Assignments == nil:
		return fmt.Errorf("assignment service is required")
	case s.Documents == nil:
		return fmt.Errorf("document service is required")
	case s.Staff == nil:
		return fmt.Errorf("staff service is required")
	case s.SLA == nil:
		return fmt.Errorf("sla service is required")
	}
	return nil
}

// RegisterRoutes mounts the /v1 API. Every route requires an actor.
func RegisterRoutes(router fiber.Router, services Services, users ActorLookup) error {
	if err := services.validate(); err != nil {
		return err
	}
	if users == nil {
		return fmt.Errorf("actor lookup is required")
	}

	batches := &BatchHandler{batches: services.Batches, transitions: services.Transitions, reconciler: services.Reconciler}
	assignments := &AssignmentHandler{assignments: services.Assignments}
	documents := &DocumentHandler{documents: services.Documents}
	staff := &StaffHandler{staff: services.Staff}
	monitoring := &MonitoringHandler{assignments: services.Assignments, sla: services.SLA}

	v1 := router.Group("/v1", CorrelationMiddleware(), ActorMiddleware(users))

	v1.Post("/batches", batches.Create)
	v1.Post("/batches/transitions/bulk", batches.BulkTransition)
	v1.Get("/batches/:id", batches.Get)
	v1.Post("/batches/:id/documents", batches.AddDocuments)
	v1.Post("/batches/:id/transitions", batches.Transition)
	v1.Get("/batches/:id/sla", batches.SLA)
	v1.Post("/batches/:id/reconcile", batches.Reconcile)
	v1.Get("/batches/:id/history", batches.History)
	v1.Post("/batches/:id/archive", batches.Archive)
	v1.Post("/batches/:id/payment-orders", batches.RegisterPaymentOrder)

	v1.Post("/assignments", assignments.Assign)
	v1.Post("/assignments/bulk", assignments.BulkAssign)
	v1.Post("/assignments/auto", assignments.AutoAssign)
	v1.Post("/reassignments", assignments.Reassign)
	v1.Put("/handlers/:id", staff.Upsert)
	v1.Get("/handlers/:id/workload", assignments.Workload)
	v1.Get("/workload/overview", monitoring.WorkloadOverview)
	v1.Get("/sla/breaches", monitoring.Breaches)

	v1.Post("/documents/:id/state", documents.UpdateState)
	v1.Post("/payment-orders/:reference/executed", batches.PaymentExecuted)

	return nil
}
