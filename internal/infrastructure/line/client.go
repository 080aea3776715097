package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Benedict-CS/line-backup-bot/config"
	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
)

// maxTextRunes is the platform limit for a text message
const maxTextRunes = 5000

// Client calls the LINE Messaging API
type Client struct {
	apiBaseURL  string
	dataBaseURL string
	token       string
	httpClient  *http.Client
	// contentClient has a longer timeout for attachment downloads
	contentClient *http.Client
	limiter       *rate.Limiter
	logger        zerolog.Logger
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// NewClient creates a new Messaging API client
func NewClient(cfg *config.LineConfig, logger zerolog.Logger) *Client {
	perSecond := cfg.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = 10
	}

	client := &Client{
		apiBaseURL:    cfg.APIBaseURL,
		dataBaseURL:   cfg.DataBaseURL,
		token:         cfg.ChannelAccessToken,
		httpClient:    &http.Client{Timeout: cfg.RequestTimeout},
		contentClient: &http.Client{Timeout: cfg.ContentTimeout},
		limiter:       rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:        logger,
	}

	logger.Info().
		Str("api_base_url", cfg.APIBaseURL).
		Str("data_base_url", cfg.DataBaseURL).
		Float64("messages_per_second", perSecond).
		Msg("LINE client initialized")

	return client
}

// GetContent opens the attachment stream of a message. The caller closes the body.
func (c *Client) GetContent(ctx context.Context, messageID string) (io.ReadCloser, int64, error) {
	url := fmt.Sprintf("%s/v2/bot/message/%s/content", c.dataBaseURL, messageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.contentClient.Do(req)
	if err != nil {
		return nil, 0, backuperrors.NewNetworkError("GET content", messageID, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		size := resp.ContentLength
		if size < 0 {
			size = 0
		}
		return resp.Body, size, nil
	case http.StatusAccepted:
		// Video and audio may still be transcoding
		drain(resp.Body)
		return nil, 0, &backuperrors.TransferError{
			Op: "GET content", Path: messageID, Status: resp.StatusCode, Retryable: true,
		}
	default:
		detail := readSnippet(resp.Body)
		return nil, 0, backuperrors.NewStatusError("GET content", messageID, resp.StatusCode, detail)
	}
}

// Reply answers an event through its reply token
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return fmt.Errorf("reply token is empty")
	}
	return c.post(ctx, "/v2/bot/message/reply", replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: truncate(text)}},
	})
}

// Push sends a message to a user, group or room
func (c *Client) Push(ctx context.Context, to, text string) error {
	if to == "" {
		return fmt.Errorf("push target is empty")
	}
	return c.post(ctx, "/v2/bot/message/push", pushRequest{
		To:       to,
		Messages: []textMessage{{Type: "text", Text: truncate(text)}},
	})
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return backuperrors.NewNetworkError("POST", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return backuperrors.NewStatusError("POST", path, resp.StatusCode, readSnippet(resp.Body))
	}

	drain(resp.Body)
	return nil
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= maxTextRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxTextRunes])
}

func readSnippet(body io.ReadCloser) string {
	defer body.Close()
	data, _ := io.ReadAll(io.LimitReader(body, 512))
	return string(bytes.TrimSpace(data))
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	body.Close()
}
