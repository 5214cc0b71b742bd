// Package logging wires up the process-wide zap logger. It is deliberately
// small: the core's own history (cluster/session log rings) lives in
// internal/logring, this package only configures where zap's structured
// output goes.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger. In debug mode it uses the human-friendly
// development encoder; otherwise JSON, suitable for ingestion by a log
// pipeline sitting in front of the edge process.
func New(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		// zap.Config.Build only fails on a malformed config; ours is a
		// literal constant, so this is unreachable in practice.
		logger = zap.NewNop()
	}
	return logger
}
