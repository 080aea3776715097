package line

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
)

const sampleBody = `{
  "destination": "Uxxx",
  "events": [
    {
      "type": "message",
      "webhookEventId": "01HEV1",
      "timestamp": 1740378652123,
      "replyToken": "rt-1",
      "source": {"type": "group", "groupId": "Cgroup", "userId": "Uuser"},
      "deliveryContext": {"isRedelivery": true},
      "message": {"id": "468789577898262530", "type": "file", "fileName": "Report_Q1.pptx", "fileSize": 2048}
    },
    {
      "type": "message",
      "webhookEventId": "01HEV2",
      "timestamp": 1740378652200,
      "replyToken": "rt-2",
      "source": {"type": "user", "userId": "Uuser"},
      "message": {"id": "468789577898262531", "type": "text", "text": "1"}
    },
    {
      "type": "follow",
      "webhookEventId": "01HEV3",
      "timestamp": 1740378652300,
      "source": {"type": "user", "userId": "Uuser"}
    }
  ]
}`

func TestParseEvents(t *testing.T) {
	received := time.Date(2025, 2, 24, 6, 30, 52, 0, time.UTC)

	events, err := ParseEvents([]byte(sampleBody), received)
	require.NoError(t, err)
	require.Len(t, events, 2)

	file := events[0]
	require.Equal(t, "468789577898262530", file.ID)
	require.Equal(t, "Cgroup", file.ConversationID)
	require.Equal(t, "Uuser", file.UserID)
	require.Equal(t, entities.KindFile, file.Kind)
	require.Equal(t, "Report_Q1.pptx", file.FileName)
	require.Equal(t, int64(2048), file.DeclaredSize)
	require.True(t, file.Redelivery)
	require.Equal(t, received, file.ReceivedAt)

	text := events[1]
	require.Equal(t, "Uuser", text.ConversationID)
	require.Equal(t, entities.KindText, text.Kind)
	require.Equal(t, "1", text.Text)
	require.Equal(t, "rt-2", text.ReplyToken)
}

func TestParseEvents_FallsBackToWebhookEventID(t *testing.T) {
	body := `{"events":[{"type":"message","webhookEventId":"01HEVX","source":{"roomId":"Rroom","userId":"U1"},"message":{"type":"text","text":"hi"}}]}`

	events, err := ParseEvents([]byte(body), time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "01HEVX", events[0].ID)
	require.Equal(t, "Rroom", events[0].ConversationID)
}

func TestParseEvents_InvalidJSON(t *testing.T) {
	_, err := ParseEvents([]byte("{"), time.Now())
	require.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(sampleBody)
	sig := Sign("channel-secret", body)

	require.True(t, VerifySignature("channel-secret", body, sig))
	require.False(t, VerifySignature("other-secret", body, sig))
	require.False(t, VerifySignature("channel-secret", append(body, ' '), sig))
	require.False(t, VerifySignature("channel-secret", body, "not base64!"))
	require.False(t, VerifySignature("channel-secret", body, ""))

	w := NewWebhook("channel-secret")
	require.True(t, w.Verify(body, sig))
}
