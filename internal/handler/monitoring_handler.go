package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/bordereau-flow/internal/service"
)

// MonitoringHandler serves the team workload and SLA breach views.
type MonitoringHandler struct {
	assignments AssignmentService
	sla         SLAService
}

type workloadAlertResponse struct {
	HandlerID       string  `json:"handlerId"`
	Kind            string  `json:"kind"`
	UtilizationRate float64 `json:"utilizationRate"`
}

type workloadOverviewResponse struct {
	Handlers           []workloadResponse      `json:"handlers"`
	TotalActive        int                     `json:"totalActive"`
	TotalCapacity      int                     `json:"totalCapacity"`
	AverageUtilization float64                 `json:"averageUtilization"`
	Alerts             []workloadAlertResponse `json:"alerts"`
	CriticalCount      int                     `json:"criticalCount"`
}

type slaBreachResponse struct {
	BatchID           string      `json:"batchId"`
	ClientReference   string      `json:"clientReference"`
	Status            string      `json:"status"`
	AssignedHandlerID *string     `json:"assignedHandlerId,omitempty"`
	SLA               slaResponse `json:"sla"`
	Severity          string      `json:"severity"`
}

func (h *MonitoringHandler) WorkloadOverview(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	overview, err := h.assignments.WorkloadOverview(c.UserContext(), actor)
	if err != nil {
		return toHTTPError(err)
	}

	resp := workloadOverviewResponse{
		Handlers:           make([]workloadResponse, 0, len(overview.Handlers)),
		TotalActive:        overview.TotalActive,
		TotalCapacity:      overview.TotalCapacity,
		AverageUtilization: overview.AverageUtilization,
		Alerts:             make([]workloadAlertResponse, 0, len(overview.Alerts)),
		CriticalCount:      overview.CriticalCount,
	}
	for _, w := range overview.Handlers {
		resp.Handlers = append(resp.Handlers, toWorkloadResponse(w))
	}
	for _, a := range overview.Alerts {
		resp.Alerts = append(resp.Alerts, workloadAlertResponse{HandlerID: a.HandlerID, Kind: string(a.Kind), UtilizationRate: a.UtilizationRate})
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *MonitoringHandler) Breaches(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	breaches, err := h.sla.Breaches(c.UserContext(), actor)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"breaches": toSLABreachResponses(breaches)})
}

func toSLABreachResponses(breaches []service.SLABreach) []slaBreachResponse {
	out := make([]slaBreachResponse, 0, len(breaches))
	for _, b := range breaches {
		out = append(out, slaBreachResponse{
			BatchID:           b.BatchID,
			ClientReference:   b.ClientReference,
			Status:            b.Status.String(),
			AssignedHandlerID: b.AssignedHandlerID,
			SLA:               toSLAResponse(b.SLA),
			Severity:          string(b.Severity),
		})
	}
	return out
}
