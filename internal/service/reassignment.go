package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/bordereau-flow/internal/domain"
)

// ReassignRequest moves an item from its current holder to another handler.
type ReassignRequest struct {
	Item          domain.ItemRef
	FromHandlerID string
	ToHandlerID   string
	Reason        string
	Actor         domain.Actor
}

// Reassign records an audited ownership change. Documents must be back in the
// pool (UNASSIGNED or RETURNED); batches must be non-terminal. In both cases
// the current holder must equal FromHandlerID. Both handlers are notified on a
// best-effort basis.
func (b *Balancer) Reassign(ctx context.Context, req ReassignRequest) (*AssignResult, error) {
	if !req.Actor.Role.CanAssign() {
		return nil, fmt.Errorf("%w: role %s cannot reassign work", domain.ErrForbidden, req.Actor.Role)
	}
	if err := req.Item.Validate(); err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reassignment reason is required", domain.ErrValidation)
	}
	from := strings.TrimSpace(req.FromHandlerID)
	if from == "" {
		return nil, fmt.Errorf("%w: source handler is required", domain.ErrValidation)
	}
	if from == strings.TrimSpace(req.ToHandlerID) {
		return nil, fmt.Errorf("%w: source and target handler are the same", domain.ErrValidation)
	}

	target, err := b.resolveTarget(ctx, req.ToHandlerID)
	if err != nil {
		return nil, err
	}

	result, err := b.transfer(ctx, transferRequest{
		item:       req.Item,
		to:         target,
		from:       &from,
		reason:     &reason,
		reassign:   true,
		actor:      req.Actor,
		notifyKind: domain.NotificationItemReassigned,
	})
	if err != nil {
		return nil, err
	}

	b.notify(ctx, from, domain.NotificationItemReleased, req.Item,
		fmt.Sprintf("%s %s was reassigned to %s: %s", strings.ToLower(req.Item.Kind.String()), req.Item.ID, target.ID, reason))

	return result, nil
}
