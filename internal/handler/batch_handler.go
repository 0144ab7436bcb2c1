package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/service"
)

const receptionDateLayout = "2006-01-02"

type BatchHandler struct {
	batches     BatchService
	transitions TransitionService
	reconciler  service.BatchReconciler
}

type createBatchRequest struct {
	ClientReference      string `json:"clientReference"`
	ReceptionDate        string `json:"receptionDate"`
	ContractualDelayDays *int   `json:"contractualDelayDays"`
}

type addDocumentsRequest struct {
	Count int `json:"count"`
}

type transitionRequest struct {
	BatchID        string `json:"batchId,omitempty"`
	Target         string `json:"target"`
	ExpectedStatus string `json:"expectedStatus,omitempty"`
}

type bulkTransitionRequest struct {
	Items []transitionRequest `json:"items"`
}

type paymentOrderRequest struct {
	Reference string `json:"reference"`
}

type paymentExecutedResponse struct {
	PaymentOrder   *paymentOrderResponse `json:"paymentOrder"`
	Reconcile      *reconcileResponse    `json:"reconcile,omitempty"`
	ReconcileError string                `json:"reconcileError,omitempty"`
}

func (h *BatchHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	reception, err := parseReceptionDate(req.ReceptionDate)
	if err != nil {
		return toHTTPError(err)
	}

	batch, err := h.batches.Create(c.UserContext(), service.CreateBatchInput{
		ClientReference:      req.ClientReference,
		ReceptionDate:        reception,
		ContractualDelayDays: req.ContractualDelayDays,
	}, actor)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) AddDocuments(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req addDocumentsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	docs, err := h.batches.AddDocuments(c.UserContext(), batchIDParam(c), req.Count, actor)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"documents": toDocumentResponses(docs)})
}

func (h *BatchHandler) Get(c *fiber.Ctx) error {
	view, err := h.batches.Get(c.UserContext(), batchIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchViewResponse(view))
}

func (h *BatchHandler) Transition(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req transitionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.BatchID = batchIDParam(c)

	tr, err := toTransitionRequest(req, actor)
	if err != nil {
		return toHTTPError(err)
	}

	batch, err := h.transitions.Transition(c.UserContext(), tr)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) BulkTransition(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req bulkTransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	// Items are not parsed here so a bad status surfaces as that item's
	// outcome instead of failing the request.
	reqs := make([]service.TransitionRequest, 0, len(req.Items))
	for _, item := range req.Items {
		reqs = append(reqs, toBulkTransitionRequest(item, actor))
	}

	outcomes, err := h.transitions.BulkTransition(c.UserContext(), reqs)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"results": toOutcomeResponses(outcomes)})
}

func (h *BatchHandler) SLA(c *fiber.Ctx) error {
	result, err := h.batches.SLA(c.UserContext(), batchIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toSLAResponse(result))
}

func (h *BatchHandler) Reconcile(c *fiber.Ctx) error {
	result, err := h.reconciler.Reconcile(c.UserContext(), batchIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toReconcileResponse(result))
}

func (h *BatchHandler) History(c *fiber.Ctx) error {
	history, err := h.batches.History(c.UserContext(), batchIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toHistoryResponse(history))
}

func (h *BatchHandler) Archive(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	id := batchIDParam(c)
	if err := h.batches.Archive(c.UserContext(), id, actor); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"batchId": id, "archived": true})
}

func (h *BatchHandler) RegisterPaymentOrder(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req paymentOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.batches.RegisterPaymentOrder(c.UserContext(), batchIDParam(c), req.Reference, actor)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toPaymentOrderResponse(order))
}

// PaymentExecuted records the execution fact reported by the payment system.
func (h *BatchHandler) PaymentExecuted(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	result, err := h.batches.MarkPaymentExecuted(c.UserContext(), strings.TrimSpace(c.Params("reference")), actor)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(paymentExecutedResponse{
		PaymentOrder:   toPaymentOrderResponse(result.PaymentOrder),
		Reconcile:      toReconcileResponse(result.Reconcile),
		ReconcileError: errorMessage(result.ReconcileErr),
	})
}

func toTransitionRequest(req transitionRequest, actor domain.Actor) (service.TransitionRequest, error) {
	target, err := domain.ParseBatchStatusFromString(req.Target)
	if err != nil {
		return service.TransitionRequest{}, err
	}

	tr := service.TransitionRequest{
		BatchID: strings.TrimSpace(req.BatchID),
		Target:  target,
		Actor:   actor,
	}
	if strings.TrimSpace(req.ExpectedStatus) != "" {
		expected, err := domain.ParseBatchStatusFromString(req.ExpectedStatus)
		if err != nil {
			return service.TransitionRequest{}, err
		}
		tr.ExpectedStatus = &expected
	}
	return tr, nil
}

func toBulkTransitionRequest(req transitionRequest, actor domain.Actor) service.TransitionRequest {
	tr := service.TransitionRequest{
		BatchID: strings.TrimSpace(req.BatchID),
		Target:  domain.BatchStatus(strings.ToUpper(strings.TrimSpace(req.Target))),
		Actor:   actor,
	}
	if expected := strings.ToUpper(strings.TrimSpace(req.ExpectedStatus)); expected != "" {
		status := domain.BatchStatus(expected)
		tr.ExpectedStatus = &status
	}
	return tr
}

// parseReceptionDate accepts a calendar date or an RFC3339 timestamp.
func parseReceptionDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	for _, layout := range []string{receptionDateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("%w: receptionDate must be YYYY-MM-DD or RFC3339", domain.ErrValidation)
}

func batchIDParam(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("id"))
}
