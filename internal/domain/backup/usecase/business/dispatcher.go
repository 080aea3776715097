package business

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/internal/domain"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/deps"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/metrics"
)

const (
	// sideEffectTimeout bounds dedup bookkeeping, publishing and notifications,
	// which still run while the processing context is being cancelled
	sideEffectTimeout = 5 * time.Second
	// abandonGrace is how long Stop waits for cancelled events to release their ids
	abandonGrace = 2 * time.Second

	msgFileReceived      = "File received, backing up..."
	msgFileBackedUp      = "✅ File backed up to Nextcloud"
	msgLinkBackedUp      = "✅ Link backed up to Nextcloud"
	msgNoteSaved         = "✅ Saved to today's notes"
	msgAlreadyBackedUp   = "Already backed up, skipped"
	msgNoContent         = "Could not get the file content."
	msgTooLarge          = "File is larger than the size limit, skipped"
	msgBackupFailedFmt   = "❌ Backup failed: %s"
	msgFolderSelectedFmt = "Folder set to: %s"
	maxFailureDetail     = 500
)

var linkPattern = regexp.MustCompile(`(?i)https?://[^\s<>"']+`)

// Options tunes dispatcher behavior
type Options struct {
	EnableReplies    bool
	EnableTextBackup bool
	// CommitOnFailure commits the event id even when the backup failed,
	// so a redelivery is not retried
	CommitOnFailure bool
	MaxConcurrency  int
	// MaxPending caps accepted events that have not finished, queued ones included
	MaxPending int
}

// DispatcherParams defines dependencies of the Dispatcher
type DispatcherParams struct {
	fx.In

	Dedup     deps.DedupStore
	Router    deps.SourceRouter
	Storage   deps.Storage
	Pipeline  *Pipeline
	Notes     *NotesWriter
	Paths     *PathBuilder
	Hashes    deps.HashStore
	Stats     deps.StatsRecorder
	Notifier  deps.Notifier
	Publisher deps.EventPublisher
	Options   Options
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Dispatcher runs every webhook event through dedup, classification and upload
type Dispatcher struct {
	dedup     deps.DedupStore
	router    deps.SourceRouter
	storage   deps.Storage
	pipeline  *Pipeline
	notes     *NotesWriter
	paths     *PathBuilder
	hashes    deps.HashStore
	stats     deps.StatsRecorder
	notifier  deps.Notifier
	publisher deps.EventPublisher
	opts      Options
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	sem        chan struct{}
	pending    atomic.Int64
	maxPending int64
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewDispatcher creates a dispatcher
func NewDispatcher(p DispatcherParams) *Dispatcher {
	concurrency := p.Options.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	maxPending := p.Options.MaxPending
	if maxPending < concurrency {
		maxPending = concurrency
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		dedup:      p.Dedup,
		router:     p.Router,
		storage:    p.Storage,
		pipeline:   p.Pipeline,
		notes:      p.Notes,
		paths:      p.Paths,
		hashes:     p.Hashes,
		stats:      p.Stats,
		notifier:   p.Notifier,
		publisher:  p.Publisher,
		opts:       p.Options,
		logger:     p.Logger,
		metrics:    p.Metrics,
		now:        time.Now,
		sem:        make(chan struct{}, concurrency),
		maxPending: int64(maxPending),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit schedules events for background processing.
// It returns ErrShuttingDown once Stop has been called and ErrOverloaded
// when the batch would exceed the pending limit.
func (d *Dispatcher) Submit(events []entities.InboundEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return domain.ErrShuttingDown
	}

	n := int64(len(events))
	if d.pending.Add(n) > d.maxPending {
		d.pending.Add(-n)
		return domain.ErrOverloaded
	}

	for i := range events {
		ev := events[i]
		d.wg.Add(1)
		go d.run(&ev)
	}
	return nil
}

func (d *Dispatcher) run(ev *entities.InboundEvent) {
	defer d.wg.Done()
	defer d.pending.Add(-1)

	select {
	case d.sem <- struct{}{}:
	case <-d.ctx.Done():
		d.logger.Warn().Str("event_id", ev.ID).Msg("Dropping event, dispatcher stopped")
		return
	}
	defer func() { <-d.sem }()

	d.metrics.EventsInFlight.Inc()
	defer d.metrics.EventsInFlight.Dec()

	d.Process(d.ctx, ev)
}

// Stop rejects new events and waits for in-flight ones.
// When ctx expires first, in-flight work is cancelled and its ids are released.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping webhook dispatcher")

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	defer d.cancel()

	select {
	case <-done:
		d.logger.Info().Msg("Webhook dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn().Msg("Shutdown deadline reached, abandoning in-flight events")
	}

	d.cancel()
	select {
	case <-done:
	case <-time.After(abandonGrace):
		d.logger.Warn().Msg("Abandoned events did not release their ids in time")
	}
	return ctx.Err()
}

// Process handles one event synchronously and returns its outcome
func (d *Dispatcher) Process(ctx context.Context, ev *entities.InboundEvent) entities.Outcome {
	logger := d.logger.With().
		Str("event_id", ev.ID).
		Str("conversation", ev.ConversationID).
		Str("kind", string(ev.Kind)).
		Logger()

	if ev.ID != "" {
		started, err := d.dedup.TryBegin(ctx, ev.ID)
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("Dedup store unavailable, processing event anyway")
		case !started:
			logger.Info().Bool("redelivery", ev.Redelivery).Msg("Skipping duplicate event")
			d.metrics.RecordEvent(string(ev.Kind), string(entities.OutcomeDuplicate))
			return entities.OutcomeDuplicate
		}
	}

	outcome, err := d.handle(ctx, ev, logger)
	switch {
	case err != nil && ctx.Err() != nil:
		logger.Warn().Err(err).Msg("Event abandoned by shutdown, leaving it for redelivery")
		outcome = entities.OutcomeAbandoned
	case err != nil:
		logger.Error().Err(err).Str("reason", backuperrors.Reason(err)).Msg("Event backup failed")
	}

	d.settle(ev, outcome, logger)
	d.metrics.RecordEvent(string(ev.Kind), string(outcome))

	return outcome
}

// settle records the event id so redeliveries are skipped
func (d *Dispatcher) settle(ev *entities.InboundEvent, outcome entities.Outcome, logger zerolog.Logger) {
	if ev.ID == "" {
		return
	}

	ctx, cancel := d.sideEffectContext()
	defer cancel()

	if outcome == entities.OutcomeAbandoned || (outcome == entities.OutcomeFailed && !d.opts.CommitOnFailure) {
		if err := d.dedup.Release(ctx, ev.ID); err != nil {
			logger.Warn().Err(err).Msg("Failed to release event id")
		}
		return
	}

	if err := d.dedup.Commit(ctx, ev.ID); err != nil {
		logger.Warn().Err(err).Msg("Failed to commit event id")
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev *entities.InboundEvent, logger zerolog.Logger) (entities.Outcome, error) {
	switch {
	case ev.Kind == entities.KindText:
		return d.handleText(ctx, ev, logger)
	case ev.Kind.IsMedia():
		return d.backupMedia(ctx, ev, logger)
	default:
		logger.Debug().Msg("Ignoring unsupported message type")
		return entities.OutcomeIgnored, nil
	}
}

func (d *Dispatcher) handleText(ctx context.Context, ev *entities.InboundEvent, logger zerolog.Logger) (entities.Outcome, error) {
	text := strings.TrimSpace(ev.Text)

	if d.router.OnSelectorText(ev.ConversationID, text) {
		folder := d.router.Resolve(ev.ConversationID)
		logger.Info().Str("folder", folder).Msg("Destination folder selected")
		d.reply(ev, fmt.Sprintf(msgFolderSelectedFmt, folder))
		return entities.OutcomeSelector, nil
	}

	if linkPattern.MatchString(text) {
		return d.backupLink(ctx, ev, text, logger)
	}

	if d.opts.EnableTextBackup && text != "" {
		return d.backupNote(ctx, ev, logger)
	}

	return entities.OutcomeIgnored, nil
}

func (d *Dispatcher) backupMedia(ctx context.Context, ev *entities.InboundEvent, logger zerolog.Logger) (entities.Outcome, error) {
	folder := d.router.Resolve(ev.ConversationID)
	d.reply(ev, msgFileReceived)

	job := &entities.UploadJob{
		ID:           uuid.New(),
		EventID:      ev.ID,
		Conversation: ev.ConversationID,
		Folder:       folder,
		Kind:         ev.Kind,
	}

	staged, err := d.pipeline.Prepare(ctx, ev)
	if err != nil {
		d.fail(ctx, ev, job, err)
		return entities.OutcomeFailed, err
	}

	if d.hashes.Contains(staged.SHA256) {
		if rmErr := os.Remove(staged.Path); rmErr != nil {
			logger.Warn().Err(rmErr).Str("file", staged.Path).Msg("Failed to remove staging file")
		}
		logger.Info().Str("sha256", staged.SHA256[:16]).Msg("Skipping already uploaded content")
		d.publish(ev, job, entities.OutcomeDuplicateContent, nil)
		d.push(ev, msgAlreadyBackedUp)
		return entities.OutcomeDuplicateContent, nil
	}

	job.RemoteDir = d.paths.Dir(folder, ev.Kind, ev.ReceivedAt)
	job.FileName = d.paths.FileName(ev, ev.Kind)
	job.StagingPath = staged.Path
	job.Size = staged.Size
	job.ContentHash = staged.SHA256

	if ev.Kind == entities.KindFile {
		job.FileName = uniqueName(ctx, d.storage, job.RemoteDir, job.FileName, logger)
	}

	result, err := d.pipeline.Run(ctx, job)
	if err != nil {
		d.fail(ctx, ev, job, err)
		return entities.OutcomeFailed, err
	}

	if job.ContentHash != "" {
		if err := d.hashes.Add(job.ContentHash); err != nil {
			logger.Warn().Err(err).Msg("Failed to record content hash")
		}
	}

	d.succeed(ev, job, result, entities.OutcomeUploaded)
	d.push(ev, msgFileBackedUp)
	return entities.OutcomeUploaded, nil
}

func (d *Dispatcher) backupLink(ctx context.Context, ev *entities.InboundEvent, text string, logger zerolog.Logger) (entities.Outcome, error) {
	folder := d.router.Resolve(ev.ConversationID)
	content := []byte(text)

	job := &entities.UploadJob{
		ID:           uuid.New(),
		EventID:      ev.ID,
		Conversation: ev.ConversationID,
		Folder:       folder,
		Kind:         entities.KindLink,
		RemoteDir:    d.paths.Dir(folder, entities.KindLink, ev.ReceivedAt),
		FileName:     d.paths.FileName(ev, entities.KindLink),
		Content:      content,
		Size:         int64(len(content)),
	}

	result, err := d.pipeline.Run(ctx, job)
	if err != nil {
		d.fail(ctx, ev, job, err)
		return entities.OutcomeFailed, err
	}

	logger.Debug().Str("remote_path", result.RemotePath).Msg("Link captured")
	d.succeed(ev, job, result, entities.OutcomeUploaded)
	d.push(ev, msgLinkBackedUp)
	return entities.OutcomeUploaded, nil
}

func (d *Dispatcher) backupNote(ctx context.Context, ev *entities.InboundEvent, logger zerolog.Logger) (entities.Outcome, error) {
	folder := d.router.Resolve(ev.ConversationID)

	job := &entities.UploadJob{
		ID:           uuid.New(),
		EventID:      ev.ID,
		Conversation: ev.ConversationID,
		Folder:       folder,
		Kind:         entities.KindText,
	}

	result, err := d.notes.Append(ctx, ev, folder)
	if err != nil {
		d.fail(ctx, ev, job, err)
		return entities.OutcomeFailed, err
	}

	logger.Debug().Str("remote_path", result.RemotePath).Msg("Note appended")
	d.succeed(ev, job, result, entities.OutcomeNoted)
	d.reply(ev, msgNoteSaved)
	return entities.OutcomeNoted, nil
}

func (d *Dispatcher) succeed(ev *entities.InboundEvent, job *entities.UploadJob, result *entities.UploadResult, outcome entities.Outcome) {
	d.stats.Record(d.now())

	snapshot := d.stats.Snapshot()
	d.metrics.BackupsToday.Set(float64(snapshot.Count))
	if snapshot.LastAt != nil {
		d.metrics.LastBackupTime.Set(float64(snapshot.LastAt.Unix()))
	}

	job.Attempts = result.Attempts
	event := d.newEvent(ev, job, outcome, nil)
	event.RemotePath = result.RemotePath
	event.Bytes = result.Bytes
	d.send(event)
}

// fail reports a terminal failure. Work cut off by cancellation is not terminal.
func (d *Dispatcher) fail(ctx context.Context, ev *entities.InboundEvent, job *entities.UploadJob, err error) {
	if ctx.Err() != nil {
		return
	}

	d.publish(ev, job, entities.OutcomeFailed, err)

	switch {
	case errors.Is(err, backuperrors.ErrSizeExceeded):
		d.push(ev, msgTooLarge)
	case errors.Is(err, backuperrors.ErrEmptyContent):
		d.push(ev, msgNoContent)
	default:
		d.push(ev, fmt.Sprintf(msgBackupFailedFmt, truncateRunes(err.Error(), maxFailureDetail)))
	}
}

func (d *Dispatcher) publish(ev *entities.InboundEvent, job *entities.UploadJob, outcome entities.Outcome, err error) {
	d.send(d.newEvent(ev, job, outcome, err))
}

func (d *Dispatcher) newEvent(ev *entities.InboundEvent, job *entities.UploadJob, outcome entities.Outcome, err error) *entities.BackupEvent {
	event := &entities.BackupEvent{
		JobID:        job.ID.String(),
		EventID:      ev.ID,
		Conversation: ev.ConversationID,
		Folder:       job.Folder,
		Kind:         string(job.Kind),
		Outcome:      string(outcome),
		Attempts:     job.Attempts,
		OccurredAt:   d.now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

func (d *Dispatcher) send(event *entities.BackupEvent) {
	ctx, cancel := d.sideEffectContext()
	defer cancel()

	err := d.publisher.PublishBackup(ctx, event)
	d.metrics.RecordPublish(err)
	if err != nil {
		d.logger.Warn().Err(err).Str("event_id", event.EventID).Msg("Failed to publish backup event")
	}
}

func (d *Dispatcher) reply(ev *entities.InboundEvent, text string) {
	if !d.opts.EnableReplies || ev.ReplyToken == "" {
		return
	}

	ctx, cancel := d.sideEffectContext()
	defer cancel()

	err := d.notifier.Reply(ctx, ev.ReplyToken, text)
	d.metrics.RecordNotification("reply", err)
	if err != nil {
		d.logger.Debug().Err(err).Str("event_id", ev.ID).Msg("Reply failed")
	}
}

func (d *Dispatcher) push(ev *entities.InboundEvent, text string) {
	if !d.opts.EnableReplies {
		return
	}
	to := ev.UserID
	if to == "" {
		to = ev.ConversationID
	}
	if to == "" {
		return
	}

	ctx, cancel := d.sideEffectContext()
	defer cancel()

	err := d.notifier.Push(ctx, to, text)
	d.metrics.RecordNotification("push", err)
	if err != nil {
		d.logger.Debug().Err(err).Str("event_id", ev.ID).Msg("Push failed")
	}
}

func (d *Dispatcher) sideEffectContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(d.ctx), sideEffectTimeout)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
