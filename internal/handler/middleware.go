package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/bordereau-flow/internal/domain"
	"github.com/kursadbilgin/bordereau-flow/internal/observability"
)

const (
	HeaderUserID        = "X-User-ID"
	HeaderCorrelationID = "X-Correlation-ID"

	actorLocalsKey = "actor"
)

// ActorLookup resolves the authenticated user to a role.
type ActorLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Handler, error)
}

// CorrelationMiddleware assigns every request a correlation id, taken from
// X-Correlation-ID or X-Request-ID when the caller sent one, echoes it on the
// response and stores it on the user context.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(HeaderCorrelationID))
		if id == "" {
			id = strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		return c.Next()
	}
}

// ActorMiddleware resolves X-User-ID through lookup. Unknown or missing users
// are rejected with 401, deactivated users with 403.
func ActorMiddleware(lookup ActorLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(HeaderUserID))
		if userID == "" {
			return toHTTPError(fmt.Errorf("%w: %s header is required", domain.ErrUnauthorized, HeaderUserID))
		}

		user, err := lookup.GetByID(c.UserContext(), userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return toHTTPError(fmt.Errorf("%w: unknown user %s", domain.ErrUnauthorized, userID))
			}
			return err
		}
		if !user.Active {
			return toHTTPError(fmt.Errorf("%w: user %s is inactive", domain.ErrForbidden, userID))
		}

		c.Locals(actorLocalsKey, domain.Actor{UserID: user.ID, Role: user.Role})
		c.SetUserContext(observability.WithActorID(c.UserContext(), user.ID))
		return c.Next()
	}
}

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := c.Locals(actorLocalsKey).(domain.Actor)
	if !ok {
		return domain.Actor{}, toHTTPError(fmt.Errorf("%w: no authenticated actor", domain.ErrUnauthorized))
	}
	return actor, nil
}
