// Package logger is a context-aware wrapper around log/slog: a single
// factory (New) configured with functional options, helper attribute
// constructors with stable key names, and transparent injection of values
// stored in context.Context.
//
// # Architecture
//
// New picks slog.NewTextHandler or slog.NewJSONHandler based on the
// configured Format, applies static attributes, and wraps the result in
// LogHandlerDecorator. The decorator runs every registered ContextExtractor
// each time a record is handled, so request-scoped values such as request
// ids land on every line without plumbing them through call sites.
//
// Helper constructors in attr.go (Error, ReferenceID, EventType, ...) keep
// attribute keys consistent across the codebase.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "billing"),
//	    logger.WithContextValue("request_id", ctxKeyRequestID),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "webhook applied",
//	    logger.EventType("customer.subscription.updated"),
//	    logger.ReferenceID("user_42"),
//	)
//
// # Error Handling
//
// Error and Errors produce attributes only for non-nil errors, so
//
//	log.Info("done", logger.Error(err))
//
// needs no nil check at the call site.
package logger
