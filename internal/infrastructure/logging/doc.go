// Package logging builds the zap loggers used across guesthost.
//
// Production mode writes JSON, development mode writes colored console
// lines. Both write to stderr by default because stdout carries script
// results.
//
// Subsystems take a *zap.Logger and fall back to zap.NewNop() when given
// nil, so the usual wiring is:
//
//	logger := logging.NewDefault()
//	client := ext.NewFetchClient(cfg, logger.Component("fetch"))
//	logger.Info("Admin server listening", zap.String("addr", addr))
package logging
