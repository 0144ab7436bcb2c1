package service

import (
	"context"
	"fmt"
	"math"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

const (
	// UnderutilizedBelow is the utilisation rate under which a handler is idle enough to take work.
	UnderutilizedBelow = 50.0
	// CriticalAbove is the utilisation rate over which an overload is critical.
	CriticalAbove = 150.0
)

// WorkloadAlertKind classifies a workload alert.
type WorkloadAlertKind string

const (
	WorkloadAlertOverloaded    WorkloadAlertKind = "OVERLOADED"
	WorkloadAlertCritical      WorkloadAlertKind = "CRITICAL_OVERLOAD"
	WorkloadAlertUnderutilized WorkloadAlertKind = "UNDERUTILIZED"
)

// WorkloadAlert flags a handler whose utilisation is off balance.
type WorkloadAlert struct {
	HandlerID       string
	Kind            WorkloadAlertKind
	UtilizationRate float64
}

// WorkloadOverview is the team-wide workload picture.
type WorkloadOverview struct {
	Handlers           []domain.Workload
	TotalActive        int
	TotalCapacity      int
	AverageUtilization float64
	Alerts             []WorkloadAlert
	CriticalCount      int
}

// WorkloadOverview recomputes every assignable handler's workload and the
// alerts derived from it. Handlers are ordered by id.
func (b *Balancer) WorkloadOverview(ctx context.Context, actor domain.Actor) (*WorkloadOverview, error) {
	if !actor.Role.CanAssign() {
		return nil, fmt.Errorf("%w: role %s cannot view team workload", domain.ErrForbidden, actor.Role)
	}

	handlers, err := b.users.ListAssignable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list handlers: %w", err)
	}

	overview := &WorkloadOverview{
		Handlers: make([]domain.Workload, 0, len(handlers)),
		Alerts:   make([]WorkloadAlert, 0),
	}
	var rateSum float64
	for i := range handlers {
		w, err := b.workloadOf(ctx, &handlers[i])
		if err != nil {
			return nil, err
		}
		overview.Handlers = append(overview.Handlers, w)
		overview.TotalActive += w.Active
		overview.TotalCapacity += w.Capacity

		rate := w.UtilizationRate()
		rateSum += rate
		if alert, ok := alertFor(w, rate); ok {
			if alert.Kind == WorkloadAlertCritical {
				overview.CriticalCount++
			}
			overview.Alerts = append(overview.Alerts, alert)
		}
	}
	if len(handlers) > 0 {
		overview.AverageUtilization = math.Round(rateSum/float64(len(handlers))*100) / 100
	}
	return overview, nil
}

func alertFor(w domain.Workload, rate float64) (WorkloadAlert, bool) {
	alert := WorkloadAlert{HandlerID: w.HandlerID, UtilizationRate: rate}
	switch {
	case rate > CriticalAbove:
		alert.Kind = WorkloadAlertCritical
	case w.Overloaded:
		alert.Kind = WorkloadAlertOverloaded
	case rate < UnderutilizedBelow:
		alert.Kind = WorkloadAlertUnderutilized
	default:
		return WorkloadAlert{}, false
	}
	return alert, true
}
