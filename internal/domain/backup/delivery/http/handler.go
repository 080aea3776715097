package http

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/line"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/metrics"
	pkgerrors "github.com/Benedict-CS/line-backup-bot/pkg/errors"
	"github.com/Benedict-CS/line-backup-bot/pkg/httputil"
)

// EventSubmitter accepts verified events for background processing
type EventSubmitter interface {
	Submit(events []entities.InboundEvent) error
}

// WebhookHandler handles LINE webhook deliveries
type WebhookHandler struct {
	decoder   deps.WebhookDecoder
	submitter EventSubmitter
	mapper    *pkgerrors.Mapper
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	decoder deps.WebhookDecoder,
	submitter EventSubmitter,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *WebhookHandler {
	return &WebhookHandler{
		decoder:   decoder,
		submitter: submitter,
		mapper:    pkgerrors.NewMapper(logger),
		logger:    logger,
		metrics:   m,
	}
}

// Callback verifies the signature, schedules the events and acknowledges at once
func (h *WebhookHandler) Callback(ctx *fasthttp.RequestCtx) {
	signature := string(ctx.Request.Header.Peek(line.SignatureHeader))
	body := ctx.PostBody()

	if signature == "" {
		h.reject(ctx, "missing_signature", pkgerrors.NewValidationError("missing signature"))
		return
	}
	if !h.decoder.Verify(body, signature) {
		h.logger.Warn().Str("remote_ip", ctx.RemoteIP().String()).Msg("Webhook signature mismatch")
		h.reject(ctx, "invalid_signature", pkgerrors.NewValidationError("invalid signature"))
		return
	}

	events, err := h.decoder.Decode(body, time.Now())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to decode webhook body")
		h.reject(ctx, "bad_request", pkgerrors.NewValidationError("invalid webhook body"))
		return
	}

	if err := h.submitter.Submit(events); err != nil {
		h.logger.Warn().Err(err).Int("events", len(events)).Msg("Webhook rejected")
		h.reject(ctx, "unavailable", pkgerrors.NewServiceUnavailableError(err.Error()))
		return
	}

	h.logger.Debug().Int("events", len(events)).Msg("Webhook accepted")
	h.metrics.RecordWebhook("ok")
	httputil.WriteText(ctx, "OK", fasthttp.StatusOK)
}

func (h *WebhookHandler) reject(ctx *fasthttp.RequestCtx, label string, err error) {
	h.metrics.RecordWebhook(label)
	h.mapper.Write(ctx, err, httputil.WriteText)
}
