// Package logger wraps zap behind a small, opinionated API.
//
// Usage:
//
//	logger.Init(logger.Config{Env: "prod", Level: "info", ServiceName: "toolbridge"})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Component("broker"))
//	log.Info("connection established", logger.ToolID("github"))
//
// Middlewares inject a request-scoped logger into the context; From(ctx)
// falls back to the process singleton when none is present, so call sites
// never need to care which one they got.
package logger
