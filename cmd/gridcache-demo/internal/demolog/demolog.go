// Package demolog holds the gridcache-demo CLI's global logger, set up the
// way package logger does for the QNTX CLI: a safe no-op at package load
// time, replaced by Initialize once cobra knows which output mode the user
// asked for.
package demolog

import (
	"go.uber.org/zap"
)

// Logger is the CLI's global structured logger. Never nil.
var Logger *zap.SugaredLogger

func init() {
	Logger = zap.NewNop().Sugar()
}

// Initialize replaces Logger with a real one: JSON for machine consumption,
// or a human-readable console encoder otherwise.
func Initialize(jsonOutput bool) error {
	var zapLogger *zap.Logger
	var err error
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = cfg.Build()
	} else {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = cfg.Build()
	}
	if err != nil {
		return err
	}
	Logger = zapLogger.Sugar()
	return nil
}
