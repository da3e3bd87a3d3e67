package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// HealthCheckHandler returns a handler usable for both liveness and
// readiness probes.
//
//   - Liveness: with no dependency funcs the handler answers 200 "ALIVE".
//   - Readiness: with dependency funcs (pg.Healthcheck, redis.Healthcheck)
//     each one runs in turn; all passing answers 200 "READY", any failure
//     answers 500 "NOT_READY".
func HealthCheckHandler(ctx context.Context, log *slog.Logger, funcs ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(funcs) == 0 {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ALIVE"))
			return
		}

		for _, f := range funcs {
			if err := f(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	}
}
