// Package loginit wires the zap-backed default logger SPEC_FULL.md's
// ambient stack calls for, grounded on the reference stack's
// pkg/logger/logger.go. A binary embedding this module calls
// InitDevelopment/InitProduction once at startup; library code never
// imports this package, it only accepts a logger.Logger at construction.
package loginit

import (
	"github.com/go-logr/zapr"
	"github.com/livekit/protocol/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func InitProduction(logLevel string) {
	initLogger(zap.NewProductionConfig(), logLevel)
}

func InitDevelopment(logLevel string) {
	initLogger(zap.NewDevelopmentConfig(), logLevel)
}

// valid levels: debug, info, warn, error, fatal, panic
func initLogger(config zap.Config, level string) {
	if level != "" {
		lvl := zapcore.Level(0)
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	l, _ := config.Build()
	zapLogger := zapr.NewLogger(l)
	logger.SetLogger(logger.LogRLogger(zapLogger), "simulcast")
}
