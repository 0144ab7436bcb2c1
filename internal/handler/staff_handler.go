package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/service"
)

type StaffHandler struct {
	staff StaffService
}

type upsertHandlerRequest struct {
	FullName string `json:"fullName"`
	Role     string `json:"role"`
	Active   *bool  `json:"active"`
	Capacity *int   `json:"capacity"`
}

type staffResponse struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
	Capacity *int   `json:"capacity,omitempty"`
}

func (h *StaffHandler) Upsert(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	var req upsertHandlerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	role, err := domain.ParseRoleFromString(req.Role)
	if err != nil {
		return toHTTPError(err)
	}

	saved, err := h.staff.Upsert(c.UserContext(), service.UpsertHandlerInput{
		ID:       strings.TrimSpace(c.Params("id")),
		FullName: req.FullName,
		Role:     role,
		Active:   req.Active,
		Capacity: req.Capacity,
	}, actor)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(staffResponse{
		ID:       saved.ID,
		FullName: saved.FullName,
		Role:     saved.Role.String(),
		Active:   saved.Active,
		Capacity: saved.Capacity,
	})
}
