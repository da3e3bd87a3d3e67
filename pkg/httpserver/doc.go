// Package httpserver wraps net/http with graceful shutdown, configurable
// timeouts, health-check handlers, and structured logging via slog. It is
// the hosting layer billingkit services mount the billing router on.
//
// Run blocks until the context is cancelled or an interrupt/TERM signal
// arrives, then drains in-flight requests through http.Server.Shutdown with
// a configurable deadline. Construction goes through New or NewFromConfig
// with Option helpers (WithAddr, WithReadTimeout, WithLogger, ...);
// WithStartHook and WithStopHook run side effects around the lifecycle.
// Errors are wrapped with the ErrStart and ErrShutdown sentinels for
// errors.Is checks.
//
// # Usage
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billingModule.Handle())
//	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log,
//		pg.Healthcheck(pool),
//		redis.Healthcheck(client),
//	))
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// # Configuration
//
// Config fields are populated from HTTP_* environment variables; see the
// field tags for names and defaults.
package httpserver
