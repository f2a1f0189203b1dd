package metrics

import (
	"context"
	"errors"

	"github.com/wagate/gateway/internal/models"
)

func handshakeOutcome(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, models.ErrHandshakeTimeout):
		return "timeout"
	case errors.Is(err, models.ErrAlreadyAuthenticated):
		return "authenticated"
	case errors.Is(err, models.ErrHandshakeSuperseded):
		return "superseded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
