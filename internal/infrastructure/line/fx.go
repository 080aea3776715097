package line

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
)

// Module provides the LINE platform adapter for fx DI
var Module = fx.Module("line",
	fx.Provide(
		newClient,
		newWebhook,
		func(c *Client) deps.ContentSource { return c },
		func(c *Client) deps.Notifier { return c },
	),
)

func newClient(cfg *config.LineConfig, logger zerolog.Logger) *Client {
	return NewClient(cfg, logger.With().Str("component", "line-client").Logger())
}

func newWebhook(cfg *config.LineConfig) deps.WebhookDecoder {
	return NewWebhook(cfg.ChannelSecret)
}
