package deps

import (
	"context"
	"io"
	"time"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
)

// DedupStore tracks processed event identifiers.
// TryBegin is the check-then-insert critical section: it returns false when the id
// is already committed or another delivery of it is in flight.
type DedupStore interface {
	Has(ctx context.Context, id string) (bool, error)
	TryBegin(ctx context.Context, id string) (bool, error)
	Commit(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

// SourceRouter resolves the destination folder of a conversation
type SourceRouter interface {
	Resolve(conversationID string) string
	OnSelectorText(conversationID, text string) bool
}

// ContentSource downloads attachment bytes from the platform
type ContentSource interface {
	GetContent(ctx context.Context, messageID string) (io.ReadCloser, int64, error)
}

// Storage is the remote store
type Storage interface {
	EnsureFolder(ctx context.Context, dir string) error
	Put(ctx context.Context, remotePath string, body io.Reader, size int64) error
	Exists(ctx context.Context, remotePath string) (bool, error)
	// ReadFile returns found=false without error when the file does not exist
	ReadFile(ctx context.Context, remotePath string, limit int64) (data []byte, found bool, err error)
	Probe(ctx context.Context) bool
}

// WebhookDecoder verifies and decodes a webhook body
type WebhookDecoder interface {
	Verify(body []byte, signature string) bool
	Decode(body []byte, receivedAt time.Time) ([]entities.InboundEvent, error)
}

// Notifier sends acknowledgements back to a conversation
type Notifier interface {
	Reply(ctx context.Context, replyToken, text string) error
	Push(ctx context.Context, to, text string) error
}

// EventPublisher publishes terminal upload outcomes
type EventPublisher interface {
	PublishBackup(ctx context.Context, event *entities.BackupEvent) error
}

// HashStore remembers content hashes of uploaded attachments
type HashStore interface {
	Contains(hash string) bool
	Add(hash string) error
}

// StatsRecorder counts successful backups
type StatsRecorder interface {
	Record(at time.Time)
	Snapshot() entities.BackupStats
}
