package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

type DocumentHandler struct {
	documents DocumentService
}

type documentStateRequest struct {
	State string `json:"state"`
}

type documentUpdateResponse struct {
	Document       documentResponse   `json:"document"`
	Reconcile      *reconcileResponse `json:"reconcile,omitempty"`
	ReconcileError string             `json:"reconcileError,omitempty"`
}

func (h *DocumentHandler) UpdateState(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req documentStateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	target, err := domain.ParseDocumentStateFromString(req.State)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.documents.UpdateState(c.UserContext(), strings.TrimSpace(c.Params("id")), target, actor)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(documentUpdateResponse{
		Document:       toDocumentResponse(result.Document),
		Reconcile:      toReconcileResponse(result.Reconcile),
		ReconcileError: errorMessage(result.ReconcileErr),
	})
}
