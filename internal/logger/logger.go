package logger

import (
	"fmt"

	"github.com/blendle/zapdriver"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger. On GCP entries are Cloud Logging JSON;
// elsewhere they are coloured console lines at debug level and up.
func New(onGCP bool) (*zap.SugaredLogger, error) {
	cfg := zapdriver.NewProductionConfig()
	if !onGCP {
		cfg.Encoding = "console"
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l.Sugar().Named("digicop"), nil
}

// Nop is used by tests and by components constructed without a logger.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
