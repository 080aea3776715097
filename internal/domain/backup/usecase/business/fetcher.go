package business

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/metrics"
)

const (
	stagingPattern = "line_backup_*.tmp"
	copyBufferSize = 64 * 1024
)

// Fetcher streams attachment content into local staging files
type Fetcher struct {
	source   deps.ContentSource
	dir      string
	maxBytes int64
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewFetcher creates a fetcher. maxBytes <= 0 disables the size ceiling.
// An empty dir stages into the system temp directory.
func NewFetcher(source deps.ContentSource, dir string, maxBytes int64, logger zerolog.Logger, m *metrics.Metrics) *Fetcher {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Fetcher{
		source:   source,
		dir:      dir,
		maxBytes: maxBytes,
		logger:   logger,
		metrics:  m,
	}
}

// Fetch downloads the content of messageID into a new staging file.
// On error no staging file is left behind.
func (f *Fetcher) Fetch(ctx context.Context, messageID string, declaredSize int64) (staged *entities.StagedContent, err error) {
	if f.exceeds(declaredSize) {
		return nil, fmt.Errorf("message %s declares %d bytes: %w", messageID, declaredSize, backuperrors.ErrSizeExceeded)
	}

	body, size, err := f.source.GetContent(ctx, messageID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if f.exceeds(size) {
		return nil, fmt.Errorf("message %s has %d bytes: %w", messageID, size, backuperrors.ErrSizeExceeded)
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
				f.logger.Warn().Err(rmErr).Str("file", tmp.Name()).Msg("Failed to remove partial staging file")
			}
		}
	}()

	var reader io.Reader = body
	if f.maxBytes > 0 {
		reader = io.LimitReader(body, f.maxBytes+1)
	}

	hasher := sha256.New()
	buf := make([]byte, copyBufferSize)
	written, err := io.CopyBuffer(io.MultiWriter(tmp, hasher), reader, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to stage content of message %s: %w", messageID, err)
	}
	if f.exceeds(written) {
		return nil, fmt.Errorf("message %s exceeds %d bytes: %w", messageID, f.maxBytes, backuperrors.ErrSizeExceeded)
	}
	if written == 0 {
		return nil, fmt.Errorf("message %s: %w", messageID, backuperrors.ErrEmptyContent)
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close staging file: %w", err)
	}

	f.metrics.RecordFetch(written)
	f.logger.Debug().
		Str("message_id", messageID).
		Int64("bytes", written).
		Str("file", tmp.Name()).
		Msg("Content staged")

	return &entities.StagedContent{
		Path:   tmp.Name(),
		Size:   written,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func (f *Fetcher) exceeds(n int64) bool {
	return f.maxBytes > 0 && n > f.maxBytes
}

// CleanupStale removes staging files older than maxAge left over by a previous run
func (f *Fetcher) CleanupStale(maxAge time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, stagingPattern))
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, name := range matches {
		info, err := os.Stat(name)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(name); err != nil {
			f.logger.Warn().Err(err).Str("file", name).Msg("Failed to remove stale staging file")
			continue
		}
		removed++
	}

	if removed > 0 {
		f.metrics.StagingCleanups.Add(float64(removed))
		f.logger.Info().Int("count", removed).Msg("Removed stale staging files")
	}
	return removed, nil
}
