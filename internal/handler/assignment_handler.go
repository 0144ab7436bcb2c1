package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/service"
)

type AssignmentHandler struct {
	assignments AssignmentService
}

type itemRequest struct {
	ItemKind string `json:"itemKind"`
	ItemID   string `json:"itemId"`
}

type assignRequest struct {
	itemRequest
	HandlerID string `json:"handlerId"`
}

type bulkAssignRequest struct {
	Items     []itemRequest `json:"items"`
	HandlerID string        `json:"handlerId"`
}

type reassignRequest struct {
	itemRequest
	FromHandlerID string `json:"fromHandlerId"`
	ToHandlerID   string `json:"toHandlerId"`
	Reason        string `json:"reason"`
}

func (h *AssignmentHandler) Assign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req assignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	item, err := req.itemRef()
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.assignments.Assign(c.UserContext(), service.AssignRequest{
		Item:      item,
		HandlerID: strings.TrimSpace(req.HandlerID),
		Actor:     actor,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toAssignResponse(result))
}

func (h *AssignmentHandler) BulkAssign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req bulkAssignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	items := make([]domain.ItemRef, 0, len(req.Items))
	for _, raw := range req.Items {
		items = append(items, raw.rawItemRef())
	}

	outcomes, err := h.assignments.BulkAssign(c.UserContext(), items, strings.TrimSpace(req.HandlerID), actor)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"results": toOutcomeResponses(outcomes)})
}

func (h *AssignmentHandler) AutoAssign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req itemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	item, err := req.itemRef()
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.assignments.AutoAssign(c.UserContext(), item, actor)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toAssignResponse(result))
}

func (h *AssignmentHandler) Reassign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req reassignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	item, err := req.itemRef()
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.assignments.Reassign(c.UserContext(), service.ReassignRequest{
		Item:          item,
		FromHandlerID: req.FromHandlerID,
		ToHandlerID:   req.ToHandlerID,
		Reason:        req.Reason,
		Actor:         actor,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toAssignResponse(result))
}

func (h *AssignmentHandler) Workload(c *fiber.Ctx) error {
	w, err := h.assignments.Workload(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toWorkloadResponse(w))
}

func (r itemRequest) itemRef() (domain.ItemRef, error) {
	kind, err := domain.ParseItemKindFromString(r.ItemKind)
	if err != nil {
		return domain.ItemRef{}, err
	}
	ref := domain.ItemRef{Kind: kind, ID: strings.TrimSpace(r.ItemID)}
	if err := ref.Validate(); err != nil {
		return domain.ItemRef{}, err
	}
	return ref, nil
}

// rawItemRef normalises without validating; the balancer reports invalid
// items per outcome.
func (r itemRequest) rawItemRef() domain.ItemRef {
	return domain.ItemRef{
		Kind: domain.ItemKind(strings.ToUpper(strings.TrimSpace(r.ItemKind))),
		ID:   strings.TrimSpace(r.ItemID),
	}
}
