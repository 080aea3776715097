package infrastructure

import (
	"go.uber.org/fx"

	httpfx "github.com/Benedict-CS/line-backup-bot/internal/infrastructure/http"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/kafka"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/line"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/logger"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/metrics"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/storage"
)

// Module aggregates all infrastructure modules.
// PostgreSQL is opened by the dedup module only when DEDUP_BACKEND=postgres.
var Module = fx.Module("infrastructure",
	logger.Module,
	metrics.Module,
	storage.Module,
	line.Module,
	kafka.Module,
	httpfx.Module,
)
