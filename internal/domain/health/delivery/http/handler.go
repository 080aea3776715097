package http

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	sourceentities "github.com/Benedict-CS/line-backup-bot/internal/domain/source/entities"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/metrics"
	"github.com/Benedict-CS/line-backup-bot/pkg/httputil"
)

const probeTimeout = 10 * time.Second

const (
	StatusOK    = "ok"
	StatusError = "error"

	StorageOK          = "ok"
	StorageUnreachable = "unreachable"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Status             string     `json:"status"`
	Timestamp          time.Time  `json:"timestamp"`
	LineConfigured     bool       `json:"line_configured"`
	RepliesEnabled     bool       `json:"replies_enabled"`
	StorageBackend     string     `json:"storage_backend"`
	StorageTarget      string     `json:"storage_target"`
	StorageReachable   bool       `json:"storage_reachable"`
	LastBackupAt       *time.Time `json:"last_backup_at"`
	BackupsToday       int        `json:"backups_today"`
	MissingRequired    []string   `json:"missing_required"`
	MissingRecommended []string   `json:"missing_recommended"`
	MappingEntries     int        `json:"mapping_entries"`
}

// MappingReader returns the current source mapping
type MappingReader interface {
	Mapping() sourceentities.Mapping
}

// HealthHandler serves liveness and status endpoints
type HealthHandler struct {
	storage    deps.Storage
	stats      deps.StatsRecorder
	mapping    MappingReader
	lineCfg    *config.LineConfig
	storageCfg *config.StorageConfig
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	missingConfig func() ([]string, []string)
}

// HealthHandlerParams defines parameters for HealthHandler
type HealthHandlerParams struct {
	fx.In

	Storage    deps.Storage
	Stats      deps.StatsRecorder
	Mapping    MappingReader
	LineCfg    *config.LineConfig
	StorageCfg *config.StorageConfig
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(params HealthHandlerParams) *HealthHandler {
	return &HealthHandler{
		storage:       params.Storage,
		stats:         params.Stats,
		mapping:       params.Mapping,
		lineCfg:       params.LineCfg,
		storageCfg:    params.StorageCfg,
		metrics:       params.Metrics,
		logger:        params.Logger,
		missingConfig: config.MissingConfig,
	}
}

// Health probes the remote store
func (h *HealthHandler) Health(ctx *fasthttp.RequestCtx) {
	if h.probe() {
		httputil.WriteJSON(ctx, HealthResponse{Status: StatusOK, Storage: StorageOK}, fasthttp.StatusOK)
		return
	}

	h.logger.Warn().Msg("Health check failed, storage unreachable")
	httputil.WriteJSON(ctx, HealthResponse{Status: StatusError, Storage: StorageUnreachable}, fasthttp.StatusServiceUnavailable)
}

// Status reports configuration and backup progress
func (h *HealthHandler) Status(ctx *fasthttp.RequestCtx) {
	reachable := h.probe()
	snapshot := h.stats.Snapshot()
	required, recommended := h.missingConfig()

	status := StatusOK
	if !reachable || len(required) > 0 {
		status = StatusError
	}

	response := StatusResponse{
		Status:             status,
		Timestamp:          time.Now().UTC(),
		LineConfigured:     h.lineCfg.ChannelSecret != "" && h.lineCfg.ChannelAccessToken != "",
		RepliesEnabled:     h.lineCfg.EnableReplies,
		StorageBackend:     h.storageCfg.Backend,
		StorageTarget:      h.storageTarget(),
		StorageReachable:   reachable,
		LastBackupAt:       snapshot.LastAt,
		BackupsToday:       snapshot.Count,
		MissingRequired:    nonNil(required),
		MissingRecommended: nonNil(recommended),
		MappingEntries:     len(h.mapping.Mapping()),
	}

	h.logger.Debug().
		Str("status", status).
		Bool("storage_reachable", reachable).
		Int("backups_today", snapshot.Count).
		Msg("Status check completed")

	httputil.WriteJSON(ctx, response, fasthttp.StatusOK)
}

func (h *HealthHandler) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	ok := h.storage.Probe(ctx)
	h.metrics.SetStorageReachable(ok)
	return ok
}

// storageTarget is the backup root as the probe sees it, without credentials
func (h *HealthHandler) storageTarget() string {
	if h.storageCfg.Backend == config.StorageBackendS3 {
		return "s3://" + path.Join(h.storageCfg.S3.Bucket, h.storageCfg.BasePath)
	}
	root := path.Join(strings.Trim(h.storageCfg.WebDAV.RootPath, "/"), h.storageCfg.BasePath)
	return strings.TrimRight(h.storageCfg.WebDAV.URL, "/") + "/" + root
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
