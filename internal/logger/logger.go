// internal/logger/logger.go
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SinaHo/community-gate-bot/internal/config"
)

// NewLogger builds a JSON production logger, or a console development one
// when format is "console".
func NewLogger(levelStr, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build(zap.AddCaller())
}

// FromConfig builds the logger described by the logging section.
func FromConfig(c config.LoggingConfig) (*zap.Logger, error) {
	return NewLogger(c.Level, c.Format)
}
