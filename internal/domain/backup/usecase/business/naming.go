package business

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
	sourceentities "github.com/Benedict-CS/line-backup-bot/internal/domain/source/entities"
)

const (
	notesFileName = "notes.txt"
	maxNameProbes = 100
)

var (
	kindPrefix = map[entities.PayloadKind]string{
		entities.KindImage: "img",
		entities.KindVideo: "vid",
		entities.KindAudio: "aud",
		entities.KindLink:  "link",
	}
	kindExtension = map[entities.PayloadKind]string{
		entities.KindImage: ".jpg",
		entities.KindVideo: ".mp4",
		entities.KindAudio: ".m4a",
		entities.KindLink:  ".txt",
	}
	fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_")
)

// PathBuilder lays out remote paths as {base}/{folder}/{YYYY-MM-DD}/{bucket}/{name}
type PathBuilder struct {
	base string
	loc  *time.Location
}

// NewPathBuilder creates a path builder. Dates are taken in loc.
func NewPathBuilder(base string, loc *time.Location) *PathBuilder {
	if loc == nil {
		loc = time.Local
	}
	return &PathBuilder{
		base: strings.Trim(base, "/"),
		loc:  loc,
	}
}

// DateDir returns the folder holding one day of backups for folder
func (b *PathBuilder) DateDir(folder string, at time.Time) string {
	return path.Join(b.base, sourceentities.SafeFolderName(folder), at.In(b.loc).Format("2006-01-02"))
}

// Dir returns the remote directory for a payload kind
func (b *PathBuilder) Dir(folder string, kind entities.PayloadKind, at time.Time) string {
	return path.Join(b.DateDir(folder, at), string(entities.BucketFor(kind)))
}

// NotesPath returns the daily notes file of folder
func (b *PathBuilder) NotesPath(folder string, at time.Time) string {
	return path.Join(b.DateDir(folder, at), notesFileName)
}

// NoteTime formats the time heading of a notes block
func (b *PathBuilder) NoteTime(at time.Time) string {
	return at.In(b.loc).Format("15:04")
}

// FileName returns the base file name for an event.
// Generic files keep the platform name, everything else is timestamped.
func (b *PathBuilder) FileName(ev *entities.InboundEvent, kind entities.PayloadKind) string {
	if kind == entities.KindFile {
		return fileName(ev)
	}

	prefix, ok := kindPrefix[kind]
	if !ok {
		prefix = "file"
	}
	local := ev.ReceivedAt.In(b.loc)
	return fmt.Sprintf("%s_%s_%03d%s",
		prefix,
		local.Format("20060102_150405"),
		local.Nanosecond()/int(time.Millisecond),
		kindExtension[kind],
	)
}

func fileName(ev *entities.InboundEvent) string {
	name := strings.TrimSpace(fileNameReplacer.Replace(ev.FileName))
	if name == "" || name == "." || name == ".." {
		return fmt.Sprintf("%s_%s", ev.Kind, ev.MessageID)
	}
	return name
}

// uniqueName returns name, or name with a numbered suffix when a file with that name
// already exists in dir. A failed existence check keeps the candidate.
func uniqueName(ctx context.Context, storage deps.Storage, dir, name string, logger zerolog.Logger) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; i <= maxNameProbes; i++ {
		exists, err := storage.Exists(ctx, path.Join(dir, candidate))
		if err != nil {
			logger.Warn().Err(err).
				Str("remote_path", path.Join(dir, candidate)).
				Msg("Existence check failed, keeping file name")
			return candidate
		}
		if !exists {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	return candidate
}
