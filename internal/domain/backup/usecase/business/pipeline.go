package business

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/metrics"
)

const notesBucket = "notes"

// Pipeline moves staged content to the remote store with bounded retries
type Pipeline struct {
	storage     deps.Storage
	fetcher     *Fetcher
	maxAttempts int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewPipeline creates an upload pipeline. The n-th retry waits retryDelay*n.
func NewPipeline(
	storage deps.Storage,
	fetcher *Fetcher,
	maxAttempts int,
	retryDelay time.Duration,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Pipeline {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pipeline{
		storage:     storage,
		fetcher:     fetcher,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		sleep:       sleepContext,
		logger:      logger,
		metrics:     m,
	}
}

// Prepare stages the attachment of ev, retrying transient download failures
func (p *Pipeline) Prepare(ctx context.Context, ev *entities.InboundEvent) (*entities.StagedContent, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		staged, err := p.fetcher.Fetch(ctx, ev.MessageID, ev.DeclaredSize)
		if err == nil {
			return staged, nil
		}
		lastErr = err

		if !backuperrors.IsRetryable(err) || attempt == p.maxAttempts {
			break
		}
		p.logger.Warn().Err(err).
			Str("event_id", ev.ID).
			Int("attempt", attempt).
			Msg("Content download failed, retrying")
		if err := p.sleep(ctx, p.retryDelay*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Run uploads job. The staging file is removed on every outcome.
func (p *Pipeline) Run(ctx context.Context, job *entities.UploadJob) (*entities.UploadResult, error) {
	defer func() {
		if err := job.Cleanup(); err != nil {
			p.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Failed to remove staging file")
		}
	}()

	start := time.Now()
	remotePath := job.RemotePath()
	bucket := bucketLabel(job.Kind)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		job.Attempts = attempt

		err := p.attempt(ctx, job, remotePath)
		if err == nil {
			duration := time.Since(start)
			p.metrics.RecordAttempt("ok")
			p.metrics.RecordUpload(bucket, "ok", job.Size, duration.Seconds())
			p.logger.Info().
				Str("event_id", job.EventID).
				Str("remote_path", remotePath).
				Int("attempt", attempt).
				Int64("bytes", job.Size).
				Dur("duration", duration).
				Msg("Upload completed")
			return &entities.UploadResult{
				RemotePath: remotePath,
				Attempts:   attempt,
				Bytes:      job.Size,
				Duration:   duration,
			}, nil
		}

		lastErr = err
		p.metrics.RecordAttempt(backuperrors.Reason(err))

		if !backuperrors.IsRetryable(err) || attempt == p.maxAttempts {
			break
		}
		p.logger.Warn().Err(err).
			Str("event_id", job.EventID).
			Str("remote_path", remotePath).
			Int("attempt", attempt).
			Msg("Upload attempt failed, retrying")
		if err := p.sleep(ctx, p.retryDelay*time.Duration(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	p.metrics.RecordUpload(bucket, backuperrors.Reason(lastErr), 0, time.Since(start).Seconds())
	return nil, fmt.Errorf("upload %s failed after %d attempt(s): %w", remotePath, job.Attempts, lastErr)
}

func (p *Pipeline) attempt(ctx context.Context, job *entities.UploadJob, remotePath string) error {
	if err := p.storage.EnsureFolder(ctx, job.RemoteDir); err != nil {
		return err
	}

	body, closeBody, err := openBody(job)
	if err != nil {
		return err
	}
	defer closeBody()

	return p.storage.Put(ctx, remotePath, body, job.Size)
}

// openBody returns a fresh reader over the job content for each attempt
func openBody(job *entities.UploadJob) (io.Reader, func(), error) {
	switch {
	case job.StagingPath != "":
		f, err := os.Open(job.StagingPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open staging file: %w", err)
		}
		return f, func() { f.Close() }, nil
	case len(job.Content) > 0:
		return bytes.NewReader(job.Content), func() {}, nil
	default:
		return nil, nil, backuperrors.ErrNoContent
	}
}

func bucketLabel(kind entities.PayloadKind) string {
	if kind == entities.KindText {
		return notesBucket
	}
	return string(entities.BucketFor(kind))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
