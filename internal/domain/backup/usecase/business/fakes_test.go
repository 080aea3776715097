package business

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/repository/file"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/dedup/repository/memory"
	sourcebusiness "github.com/Benedict-CS/line-backup-bot/internal/domain/source/usecase/business"
	"github.com/Benedict-CS/line-backup-bot/internal/infrastructure/metrics"
)

var receivedAt = time.Date(2025, 2, 24, 14, 30, 52, 123_000_000, time.UTC)

type fakeStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	dirs      []string
	putErrs   []error
	puts      int
	existsErr error

	// hangPuts makes Put block until its context is cancelled
	hangPuts   bool
	putStarted chan struct{}
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (s *fakeStorage) EnsureFolder(_ context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs = append(s.dirs, dir)
	return nil
}

func (s *fakeStorage) Put(ctx context.Context, remotePath string, body io.Reader, size int64) error {
	if s.hang(ctx) {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts++
	if len(s.putErrs) > 0 {
		err := s.putErrs[0]
		s.putErrs = s.putErrs[1:]
		_, _ = io.Copy(io.Discard, body)
		return err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("declared %d bytes, got %d", size, len(data))
	}
	s.files[remotePath] = data
	return nil
}

func (s *fakeStorage) hang(ctx context.Context) bool {
	s.mu.Lock()
	hang, started := s.hangPuts, s.putStarted
	if hang {
		s.puts++
	}
	s.mu.Unlock()

	if !hang {
		return false
	}
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	<-ctx.Done()
	return true
}

func (s *fakeStorage) Exists(_ context.Context, remotePath string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.files[remotePath]
	return ok, nil
}

func (s *fakeStorage) ReadFile(_ context.Context, remotePath string, limit int64) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[remotePath]
	if !ok {
		return nil, false, nil
	}
	if int64(len(data)) > limit {
		return nil, true, backuperrors.ErrSizeExceeded
	}
	return append([]byte(nil), data...), true, nil
}

func (s *fakeStorage) Probe(context.Context) bool { return true }

func (s *fakeStorage) file(remotePath string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[remotePath]
	return string(data), ok
}

func (s *fakeStorage) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

type fakeSource struct {
	mu       sync.Mutex
	contents map[string][]byte
	errs     []error
	calls    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{contents: make(map[string][]byte)}
}

func (f *fakeSource) GetContent(_ context.Context, messageID string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, 0, err
	}
	data, ok := f.contents[messageID]
	if !ok {
		return nil, 0, backuperrors.NewStatusError("GET", messageID, 404, "not found")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	replies []string
	pushes  []string
}

func (n *fakeNotifier) Reply(_ context.Context, _, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies = append(n.replies, text)
	return nil
}

func (n *fakeNotifier) Push(_ context.Context, _, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, text)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []entities.BackupEvent
}

func (p *fakePublisher) PublishBackup(_ context.Context, event *entities.BackupEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (n *fakeNotifier) pushed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.pushes...)
}

func (p *fakePublisher) outcomes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Outcome)
	}
	return out
}

type testEnv struct {
	storage    *fakeStorage
	source     *fakeSource
	notifier   *fakeNotifier
	publisher  *fakePublisher
	dedup      *memory.Store
	router     *sourcebusiness.Router
	stagingDir string
	delays     []time.Duration
	dispatcher *Dispatcher
}

type envOption func(*envConfig)

type envConfig struct {
	opts       Options
	maxBytes   int64
	hashesFile string
}

func withOptions(o Options) envOption {
	return func(c *envConfig) { c.opts = o }
}

func withMaxBytes(n int64) envOption {
	return func(c *envConfig) { c.maxBytes = n }
}

func withHashes(path string) envOption {
	return func(c *envConfig) { c.hashesFile = path }
}

func newTestEnv(t *testing.T, options ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{opts: Options{CommitOnFailure: true, MaxConcurrency: 4}}
	for _, o := range options {
		o(&cfg)
	}

	logger := zerolog.Nop()
	m := metrics.GetDefaultMetrics()

	env := &testEnv{
		storage:    newFakeStorage(),
		source:     newFakeSource(),
		notifier:   &fakeNotifier{},
		publisher:  &fakePublisher{},
		dedup:      memory.NewStore("", 0, logger),
		router:     sourcebusiness.NewRouter("", "1:Amigo,2:Ben", "", logger),
		stagingDir: t.TempDir(),
	}

	paths := NewPathBuilder("LINE_Backup", time.UTC)
	fetcher := NewFetcher(env.source, env.stagingDir, cfg.maxBytes, logger, m)
	pipeline := NewPipeline(env.storage, fetcher, 3, time.Second, logger, m)
	pipeline.sleep = func(_ context.Context, d time.Duration) error {
		env.delays = append(env.delays, d)
		return nil
	}

	env.dispatcher = NewDispatcher(DispatcherParams{
		Dedup:     env.dedup,
		Router:    env.router,
		Storage:   env.storage,
		Pipeline:  pipeline,
		Notes:     NewNotesWriter(env.storage, pipeline, paths),
		Paths:     paths,
		Hashes:    file.NewHashStore(cfg.hashesFile, logger),
		Stats:     file.NewStatsRecorder("", time.UTC, logger),
		Notifier:  env.notifier,
		Publisher: env.publisher,
		Options:   cfg.opts,
		Logger:    logger,
		Metrics:   m,
	})

	return env
}

func (e *testEnv) stagingFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(e.stagingDir, "*"))
	require.NoError(t, err)
	return matches
}

func writeOldFile(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func mediaEvent(id string, kind entities.PayloadKind) *entities.InboundEvent {
	return &entities.InboundEvent{
		ID:             id,
		ConversationID: "U1",
		UserID:         "U1",
		Kind:           kind,
		MessageID:      id,
		ReplyToken:     "reply-" + id,
		ReceivedAt:     receivedAt,
	}
}

func textEvent(id, text string) *entities.InboundEvent {
	return &entities.InboundEvent{
		ID:             id,
		ConversationID: "U1",
		UserID:         "U1",
		Kind:           entities.KindText,
		MessageID:      id,
		Text:           text,
		ReplyToken:     "reply-" + id,
		ReceivedAt:     receivedAt,
	}
}
