package line

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
)

type webhookRequest struct {
	Destination string         `json:"destination"`
	Events      []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type            string          `json:"type"`
	WebhookEventID  string          `json:"webhookEventId"`
	Timestamp       int64           `json:"timestamp"`
	ReplyToken      string          `json:"replyToken"`
	Source          eventSource     `json:"source"`
	DeliveryContext deliveryContext `json:"deliveryContext"`
	Message         *eventMessage   `json:"message"`
}

type eventSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

type deliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

type eventMessage struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// conversationID prefers the group, then the room, then the user
func (s eventSource) conversationID() string {
	switch {
	case s.GroupID != "":
		return s.GroupID
	case s.RoomID != "":
		return s.RoomID
	default:
		return s.UserID
	}
}

// Webhook verifies and decodes webhook bodies for one channel
type Webhook struct {
	secret string
}

// NewWebhook creates a decoder bound to the channel secret
func NewWebhook(secret string) *Webhook {
	return &Webhook{secret: secret}
}

// Verify checks the body signature
func (w *Webhook) Verify(body []byte, signature string) bool {
	return VerifySignature(w.secret, body, signature)
}

// Decode converts message events into inbound events. Other event types are dropped.
func (w *Webhook) Decode(body []byte, receivedAt time.Time) ([]entities.InboundEvent, error) {
	return ParseEvents(body, receivedAt)
}

// ParseEvents decodes the webhook envelope
func ParseEvents(body []byte, receivedAt time.Time) ([]entities.InboundEvent, error) {
	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}

	events := make([]entities.InboundEvent, 0, len(req.Events))
	for _, ev := range req.Events {
		if ev.Type != "message" || ev.Message == nil {
			continue
		}

		id := ev.Message.ID
		if id == "" {
			id = ev.WebhookEventID
		}

		events = append(events, entities.InboundEvent{
			ID:             id,
			ConversationID: ev.Source.conversationID(),
			UserID:         ev.Source.UserID,
			Kind:           entities.PayloadKind(ev.Message.Type),
			MessageID:      ev.Message.ID,
			Text:           ev.Message.Text,
			FileName:       ev.Message.FileName,
			DeclaredSize:   ev.Message.FileSize,
			ReplyToken:     ev.ReplyToken,
			Redelivery:     ev.DeliveryContext.IsRedelivery,
			SentAt:         time.UnixMilli(ev.Timestamp),
			ReceivedAt:     receivedAt,
		})
	}

	return events, nil
}
