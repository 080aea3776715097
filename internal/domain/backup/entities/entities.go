package entities

import (
	"os"
	"path"
	"time"

	"github.com/google/uuid"
)

// PayloadKind is the message type declared by the platform
type PayloadKind string

const (
	KindImage PayloadKind = "image"
	KindVideo PayloadKind = "video"
	KindAudio PayloadKind = "audio"
	KindFile  PayloadKind = "file"
	KindText  PayloadKind = "text"
	// KindLink is synthesized from a text message that carries a URL
	KindLink PayloadKind = "link"
)

// IsMedia reports whether the kind references downloadable content
func (k PayloadKind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindFile:
		return true
	}
	return false
}

// TypeBucket is the folder segment under the date folder
type TypeBucket string

const (
	BucketImage TypeBucket = "image"
	BucketVideo TypeBucket = "video"
	BucketLink  TypeBucket = "link"
	BucketFiles TypeBucket = "files"
)

// BucketFor maps a payload kind to its type bucket. Audio shares "files" with generic files.
func BucketFor(kind PayloadKind) TypeBucket {
	switch kind {
	case KindImage:
		return BucketImage
	case KindVideo:
		return BucketVideo
	case KindLink:
		return BucketLink
	default:
		return BucketFiles
	}
}

// InboundEvent is one platform event as received by the webhook
type InboundEvent struct {
	ID             string
	ConversationID string
	// UserID is the sender, which differs from ConversationID in groups and rooms
	UserID       string
	Kind         PayloadKind
	MessageID    string
	Text         string
	FileName     string
	DeclaredSize int64
	ReplyToken   string
	Redelivery   bool
	SentAt       time.Time
	ReceivedAt   time.Time
}

// StagedContent is attachment content written to a local staging file
type StagedContent struct {
	Path   string
	Size   int64
	SHA256 string
}

// UploadJob is a single remote write derived from an InboundEvent
type UploadJob struct {
	ID           uuid.UUID
	EventID      string
	Conversation string
	Folder       string
	Kind         PayloadKind
	RemoteDir    string
	FileName     string
	// Exactly one of StagingPath and Content is set
	StagingPath string
	Content     []byte
	Size        int64
	ContentHash string
	Attempts    int
}

// RemotePath returns the full destination path
func (j *UploadJob) RemotePath() string {
	return path.Join(j.RemoteDir, j.FileName)
}

// Cleanup removes the staging file if there is one. Safe to call more than once.
func (j *UploadJob) Cleanup() error {
	if j.StagingPath == "" {
		return nil
	}
	err := os.Remove(j.StagingPath)
	j.StagingPath = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// UploadResult describes a successful upload
type UploadResult struct {
	RemotePath string
	Attempts   int
	Bytes      int64
	Duration   time.Duration
}

// Outcome is the terminal state of one processed event
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeSelector         Outcome = "selector"
	OutcomeUploaded         Outcome = "uploaded"
	OutcomeDuplicateContent Outcome = "duplicate_content"
	OutcomeNoted            Outcome = "noted"
	OutcomeFailed           Outcome = "failed"
	// OutcomeAbandoned is an event cut off by shutdown before it finished
	OutcomeAbandoned Outcome = "abandoned"
)

// BackupStats is the persisted backup counter
type BackupStats struct {
	LastAt *time.Time `json:"last_at"`
	Date   string     `json:"date"`
	Count  int        `json:"count"`
}

// BackupEvent is published for every terminal upload outcome
type BackupEvent struct {
	JobID        string    `json:"job_id"`
	EventID      string    `json:"event_id"`
	Conversation string    `json:"conversation"`
	Folder       string    `json:"folder"`
	Kind         string    `json:"kind"`
	Outcome      string    `json:"outcome"`
	RemotePath   string    `json:"remote_path,omitempty"`
	Bytes        int64     `json:"bytes,omitempty"`
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
