package business

import (
	"context"
	"fmt"
	"hash/fnv"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
)

const (
	maxNotesBytes = 5 << 20
	noteLockCount = 32
)

// NotesWriter appends plain text to the daily notes file of a folder
type NotesWriter struct {
	storage  deps.Storage
	pipeline *Pipeline
	paths    *PathBuilder
	locks    [noteLockCount]sync.Mutex
}

// NewNotesWriter creates a notes writer
func NewNotesWriter(storage deps.Storage, pipeline *Pipeline, paths *PathBuilder) *NotesWriter {
	return &NotesWriter{
		storage:  storage,
		pipeline: pipeline,
		paths:    paths,
	}
}

// Append adds a time-stamped block for text to the daily notes file.
// Appends to the same file are serialized.
func (n *NotesWriter) Append(ctx context.Context, ev *entities.InboundEvent, folder string) (*entities.UploadResult, error) {
	remotePath := n.paths.NotesPath(folder, ev.ReceivedAt)

	lock := n.lockFor(remotePath)
	lock.Lock()
	defer lock.Unlock()

	existing, _, err := n.storage.ReadFile(ctx, remotePath, maxNotesBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", remotePath, err)
	}

	block := fmt.Sprintf("\n---\n%s\n%s\n", n.paths.NoteTime(ev.ReceivedAt), strings.TrimSpace(ev.Text))
	content := []byte(strings.TrimSpace(string(existing) + block))

	job := &entities.UploadJob{
		ID:           uuid.New(),
		EventID:      ev.ID,
		Conversation: ev.ConversationID,
		Folder:       folder,
		Kind:         entities.KindText,
		RemoteDir:    path.Dir(remotePath),
		FileName:     path.Base(remotePath),
		Content:      content,
		Size:         int64(len(content)),
	}
	return n.pipeline.Run(ctx, job)
}

func (n *NotesWriter) lockFor(remotePath string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(remotePath))
	return &n.locks[h.Sum32()%noteLockCount]
}
