package billing

import (
	"log/slog"

	"github.com/dmitrymomot/billingkit/pkg/reconcile"
)

// Option configures optional Service dependencies.
type Option func(*Service)

// WithLogger sets the logger for webhook rejections and handler failures.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCoordinator wires the redirect coordinator and enables the
// GET /subscription/confirm route. Use the same coordinator the engine
// wraps success URLs with.
func WithCoordinator(coordinator *reconcile.Coordinator) Option {
	return func(s *Service) {
		if coordinator != nil {
			s.coordinator = coordinator
		}
	}
}
