// Package logging wraps zap with context-aware methods for embedpipe.
//
// Every level method takes a context.Context and prepends its correlation
// fields: the OTEL trace and span IDs, the embedding session ID set by
// WithSessionID, and the HTTP request ID set by WithRequestID.
//
//	logger, err := logging.NewFromSettings(settings.Logging, false, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, session.ID)
//	logger.Info(ctx, "batch embedded", zap.Int("texts", n))
//
// TraceLevel sits below Debug and is encoded as "trace". Sampling is applied
// per level; Error and above are never sampled. With an OTEL LoggerProvider
// entries are also emitted through the otelzap bridge.
//
// Packages that take a *zap.Logger (embeddings, http) receive Underlying()
// and call ContextFields themselves.
//
// Tests use NewTestLogger, which records every entry for assertions.
package logging
