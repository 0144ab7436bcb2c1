package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
	"github.com/kursadbilgin/bordereau-flow/internal/repository"
	"github.com/kursadbilgin/bordereau-flow/internal/sla"
	"go.uber.org/zap"
)

// BreachSeverity grades an SLA breach.
type BreachSeverity string

const (
	BreachWarning  BreachSeverity = "WARNING"
	BreachCritical BreachSeverity = "CRITICAL"
)

// SLABreach is an open batch that is at risk or past its contractual delay.
type SLABreach struct {
	BatchID           string
	ClientReference   string
	Status            domain.BatchStatus
	AssignedHandlerID *string
	SLA               sla.Result
	Severity          BreachSeverity
}

// SLAMonitor lists SLA breaches and escalates the overdue ones.
type SLAMonitor struct {
	batches  repository.BatchRepository
	users    repository.UserRepository
	notifier Notifier
	limit    int
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	mu sync.Mutex
	// escalated maps a batch to the elapsed day it was last escalated on.
	escalated map[string]int
}

func NewSLAMonitor(
	batches repository.BatchRepository,
	users repository.UserRepository,
	notifier Notifier,
	limit int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*SLAMonitor, error) {
	if batches == nil || users == nil {
		return nil, fmt.Errorf("batch and user repositories are required")
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SLAMonitor{
		batches:   batches,
		users:     users,
		notifier:  notifier,
		limit:     limit,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		escalated: make(map[string]int),
	}, nil
}

func openBatchStatuses() []domain.BatchStatus {
	statuses := make([]domain.BatchStatus, 0, len(domain.AllBatchStatuses))
	for _, status := range domain.AllBatchStatuses {
		if !status.IsTerminal() {
			statuses = append(statuses, status)
		}
	}
	return statuses
}

// Breaches lists open batches that are at risk or overdue, most urgent first.
func (m *SLAMonitor) Breaches(ctx context.Context, actor domain.Actor) ([]SLABreach, error) {
	if !actor.Role.CanAssign() {
		return nil, fmt.Errorf("%w: role %s cannot list SLA breaches", domain.ErrForbidden, actor.Role)
	}
	return m.scan(ctx)
}

func (m *SLAMonitor) scan(ctx context.Context) ([]SLABreach, error) {
	now := m.now()
	statuses := openBatchStatuses()
	breaches := make([]SLABreach, 0)

	afterID := ""
	for {
		ids, err := m.batches.ListIDsByStatus(ctx, statuses, afterID, m.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list open batches: %w", err)
		}

		for _, id := range ids {
			batch, err := m.batches.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			result := sla.Compute(batch.ReceptionDate, batch.ContractualDelayDays, now)

			var severity BreachSeverity
			switch result.Band {
			case sla.BandOverdue:
				severity = BreachCritical
			case sla.BandAtRisk:
				severity = BreachWarning
			default:
				continue
			}
			breaches = append(breaches, SLABreach{
				BatchID:           batch.ID,
				ClientReference:   batch.ClientReference,
				Status:            batch.Status,
				AssignedHandlerID: batch.AssignedHandlerID,
				SLA:               result,
				Severity:          severity,
			})
		}

		if len(ids) < m.limit {
			break
		}
		afterID = ids[len(ids)-1]
	}

	sort.SliceStable(breaches, func(i, j int) bool {
		if breaches[i].SLA.RemainingDays != breaches[j].SLA.RemainingDays {
			return breaches[i].SLA.RemainingDays < breaches[j].SLA.RemainingDays
		}
		return breaches[i].BatchID < breaches[j].BatchID
	})
	return breaches, nil
}

// Escalate notifies the holder and every active team lead of each critical
// breach. A batch is escalated at most once per elapsed day.
func (m *SLAMonitor) Escalate(ctx context.Context) (int, error) {
	breaches, err := m.scan(ctx)
	if err != nil {
		return 0, err
	}

	leads, err := m.teamLeads(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(breaches))
	escalated := 0
	for _, breach := range breaches {
		if breach.Severity != BreachCritical {
			continue
		}
		seen[breach.BatchID] = struct{}{}
		if day, ok := m.escalated[breach.BatchID]; ok && day == breach.SLA.ElapsedDays {
			continue
		}

		message := fmt.Sprintf("batch %s (%s) is %d day(s) past its contractual delay",
			breach.BatchID, breach.ClientReference, -breach.SLA.RemainingDays)
		for _, recipient := range escalationRecipients(breach, leads) {
			m.notify(ctx, recipient, breach.BatchID, message)
		}
		m.escalated[breach.BatchID] = breach.SLA.ElapsedDays
		m.metrics.IncSLAEscalation()
		escalated++
	}

	for id := range m.escalated {
		if _, ok := seen[id]; !ok {
			delete(m.escalated, id)
		}
	}

	if escalated > 0 {
		observability.WithContextLogger(m.logger, ctx).Info("escalated SLA breaches",
			zap.Int("escalated", escalated),
			zap.Int("teamLeads", len(leads)),
		)
	}
	return escalated, nil
}

func (m *SLAMonitor) teamLeads(ctx context.Context) ([]string, error) {
	handlers, err := m.users.ListAssignable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list team leads: %w", err)
	}
	leads := make([]string, 0, len(handlers))
	for _, h := range handlers {
		if h.Role == domain.RoleTeamLead {
			leads = append(leads, h.ID)
		}
	}
	return leads, nil
}

func escalationRecipients(breach SLABreach, leads []string) []string {
	recipients := make([]string, 0, len(leads)+1)
	if breach.AssignedHandlerID != nil && *breach.AssignedHandlerID != "" {
		recipients = append(recipients, *breach.AssignedHandlerID)
	}
	for _, lead := range leads {
		if len(recipients) > 0 && recipients[0] == lead {
			continue
		}
		recipients = append(recipients, lead)
	}
	return recipients
}

func (m *SLAMonitor) notify(ctx context.Context, recipient string, batchID string, message string) {
	if m.notifier == nil {
		return
	}

	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	notification := domain.Notification{
		ID:            m.newID(),
		Recipient:     recipient,
		Kind:          domain.NotificationSLABreach,
		Item:          domain.ItemRef{Kind: domain.ItemKindBatch, ID: batchID},
		Message:       message,
		CorrelationID: correlationID,
		CreatedAt:     m.now().UTC(),
	}
	if err := m.notifier.Notify(ctx, notification); err != nil {
		m.metrics.IncNotificationFailed(domain.NotificationSLABreach.String())
		observability.WithContextLogger(m.logger, ctx).Warn("failed to dispatch notification",
			zap.String("recipient", recipient),
			zap.String("kind", domain.NotificationSLABreach.String()),
			zap.String("batchId", batchID),
			zap.Error(err),
		)
	}
}
