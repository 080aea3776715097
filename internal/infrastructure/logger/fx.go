package logger

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
)

// Module provides logger for fx DI
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger creates a new logger from config
func NewLogger(cfg *config.LoggingConfig, serviceCfg *config.ServiceConfig) zerolog.Logger {
	return New(cfg.Level).With().Str("service", serviceCfg.Name).Logger()
}
