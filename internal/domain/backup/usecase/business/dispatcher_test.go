package business

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Benedict-CS/line-backup-bot/internal/domain"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/backup/entities"
	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
)

func TestDispatcher_FileKeepsPlatformName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.Equal(t, entities.OutcomeSelector, env.dispatcher.Process(ctx, textEvent("t1", "1")))

	ev := mediaEvent("m1", entities.KindFile)
	ev.FileName = "Report_Q1.pptx"
	env.source.contents["m1"] = []byte("slides")

	require.Equal(t, entities.OutcomeUploaded, env.dispatcher.Process(ctx, ev))

	content, ok := env.storage.file("LINE_Backup/Amigo/2025-02-24/files/Report_Q1.pptx")
	require.True(t, ok)
	require.Equal(t, "slides", content)
	require.Empty(t, env.stagingFiles(t), "staging file must be removed after upload")
	require.Equal(t, []string{"uploaded"}, env.publisher.outcomes())
}

func TestDispatcher_ImageTimestampName(t *testing.T) {
	env := newTestEnv(t)
	env.source.contents["m1"] = []byte{0xff, 0xd8, 0xff}

	outcome := env.dispatcher.Process(context.Background(), mediaEvent("m1", entities.KindImage))
	require.Equal(t, entities.OutcomeUploaded, outcome)

	_, ok := env.storage.file("LINE_Backup/other/2025-02-24/image/img_20250224_143052_123.jpg")
	require.True(t, ok)
	require.Contains(t, env.storage.dirs, "LINE_Backup/other/2025-02-24/image")
}

func TestDispatcher_AudioSharesFilesBucket(t *testing.T) {
	env := newTestEnv(t)
	env.source.contents["m1"] = []byte("voice")

	require.Equal(t, entities.OutcomeUploaded, env.dispatcher.Process(context.Background(), mediaEvent("m1", entities.KindAudio)))

	_, ok := env.storage.file("LINE_Backup/other/2025-02-24/files/aud_20250224_143052_123.m4a")
	require.True(t, ok)
}

func TestDispatcher_DuplicateEventWrittenOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.contents["m1"] = []byte("video")

	ev := mediaEvent("m1", entities.KindVideo)
	require.Equal(t, entities.OutcomeUploaded, env.dispatcher.Process(ctx, ev))

	redelivered := *ev
	redelivered.Redelivery = true
	require.Equal(t, entities.OutcomeDuplicate, env.dispatcher.Process(ctx, &redelivered))

	require.Equal(t, 1, env.storage.putCount())
	require.Equal(t, 1, env.source.calls)
}

func TestDispatcher_Selectors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.Equal(t, entities.OutcomeSelector, env.dispatcher.Process(ctx, textEvent("t1", "1")))
	require.Equal(t, "Amigo", env.router.Resolve("U1"))

	require.Equal(t, entities.OutcomeIgnored, env.dispatcher.Process(ctx, textEvent("t2", "hello")))
	require.Equal(t, "Amigo", env.router.Resolve("U1"))

	require.Equal(t, entities.OutcomeSelector, env.dispatcher.Process(ctx, textEvent("t3", "0")))
	require.Equal(t, "other", env.router.Resolve("U1"))

	require.Equal(t, entities.OutcomeSelector, env.dispatcher.Process(ctx, textEvent("t4", "7")))
	require.Equal(t, "other", env.router.Resolve("U1"), "unmapped digit selects other")

	require.Zero(t, env.storage.putCount())
}

func TestDispatcher_SelectorReply(t *testing.T) {
	env := newTestEnv(t, withOptions(Options{EnableReplies: true, CommitOnFailure: true}))

	env.dispatcher.Process(context.Background(), textEvent("t1", "2"))

	require.Equal(t, []string{"Folder set to: Ben"}, env.notifier.replies)
}

func TestDispatcher_LinkCaptured(t *testing.T) {
	env := newTestEnv(t)

	outcome := env.dispatcher.Process(context.Background(), textEvent("t1", "  read https://example.com/a?b=1 later  "))
	require.Equal(t, entities.OutcomeUploaded, outcome)

	content, ok := env.storage.file("LINE_Backup/other/2025-02-24/link/link_20250224_143052_123.txt")
	require.True(t, ok)
	require.Equal(t, "read https://example.com/a?b=1 later", content)
}

func TestDispatcher_NotesAppend(t *testing.T) {
	env := newTestEnv(t, withOptions(Options{EnableTextBackup: true, CommitOnFailure: true}))
	ctx := context.Background()

	first := textEvent("t1", "first")
	second := textEvent("t2", " second ")
	second.ReceivedAt = receivedAt.Add(time.Minute)

	require.Equal(t, entities.OutcomeNoted, env.dispatcher.Process(ctx, first))
	require.Equal(t, entities.OutcomeNoted, env.dispatcher.Process(ctx, second))

	content, ok := env.storage.file("LINE_Backup/other/2025-02-24/notes.txt")
	require.True(t, ok)
	require.Equal(t, "---\n14:30\nfirst\n---\n14:31\nsecond", content)
}

func TestDispatcher_TextIgnoredWithoutTextBackup(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, entities.OutcomeIgnored, env.dispatcher.Process(context.Background(), textEvent("t1", "just chatting")))
	require.Zero(t, env.storage.putCount())
}

func TestDispatcher_SizeExceeded(t *testing.T) {
	env := newTestEnv(t,
		withMaxBytes(4),
		withOptions(Options{EnableReplies: true, CommitOnFailure: true}),
	)
	ctx := context.Background()
	env.source.contents["m1"] = []byte("0123456789")

	ev := mediaEvent("m1", entities.KindVideo)
	require.Equal(t, entities.OutcomeFailed, env.dispatcher.Process(ctx, ev))

	require.Empty(t, env.stagingFiles(t), "partial staging file must be deleted")
	require.Zero(t, env.storage.putCount())
	require.Contains(t, env.notifier.pushes, msgTooLarge)
	require.Equal(t, 1, env.source.calls, "size errors are not retried")

	require.Equal(t, entities.OutcomeDuplicate, env.dispatcher.Process(ctx, ev), "failed event stays committed")
}

func TestDispatcher_ReleaseOnFailure(t *testing.T) {
	env := newTestEnv(t, withOptions(Options{CommitOnFailure: false}))
	ctx := context.Background()
	env.source.contents["m1"] = []byte("img")
	env.storage.putErrs = []error{backuperrors.NewStatusError("PUT", "x", 403, "forbidden")}

	ev := mediaEvent("m1", entities.KindImage)
	require.Equal(t, entities.OutcomeFailed, env.dispatcher.Process(ctx, ev))

	has, err := env.dedup.Has(ctx, "m1")
	require.NoError(t, err)
	require.False(t, has)

	require.Equal(t, entities.OutcomeUploaded, env.dispatcher.Process(ctx, ev), "released event can be redelivered")
}

func TestDispatcher_DuplicateContentSkipped(t *testing.T) {
	env := newTestEnv(t, withHashes(t.TempDir()+"/hashes.json"))
	ctx := context.Background()
	env.source.contents["m1"] = []byte("same bytes")
	env.source.contents["m2"] = []byte("same bytes")

	require.Equal(t, entities.OutcomeUploaded, env.dispatcher.Process(ctx, mediaEvent("m1", entities.KindImage)))
	require.Equal(t, entities.OutcomeDuplicateContent, env.dispatcher.Process(ctx, mediaEvent("m2", entities.KindImage)))

	require.Equal(t, 1, env.storage.putCount())
	require.Empty(t, env.stagingFiles(t))
	require.Equal(t, []string{"uploaded", "duplicate_content"}, env.publisher.outcomes())
}

func TestDispatcher_FileNameCollision(t *testing.T) {
	env := newTestEnv(t)
	env.storage.files["LINE_Backup/other/2025-02-24/files/Report_Q1.pptx"] = []byte("old")
	env.source.contents["m1"] = []byte("new")

	ev := mediaEvent("m1", entities.KindFile)
	ev.FileName = "Report_Q1.pptx"
	require.Equal(t, entities.OutcomeUploaded, env.dispatcher.Process(context.Background(), ev))

	old, _ := env.storage.file("LINE_Backup/other/2025-02-24/files/Report_Q1.pptx")
	require.Equal(t, "old", old)
	renamed, ok := env.storage.file("LINE_Backup/other/2025-02-24/files/Report_Q1_1.pptx")
	require.True(t, ok)
	require.Equal(t, "new", renamed)
}

func TestDispatcher_FailurePushesReason(t *testing.T) {
	env := newTestEnv(t, withOptions(Options{EnableReplies: true, CommitOnFailure: true}))
	env.source.contents["m1"] = []byte("img")
	env.storage.putErrs = []error{backuperrors.NewStatusError("PUT", "x", 401, "unauthorized")}

	require.Equal(t, entities.OutcomeFailed, env.dispatcher.Process(context.Background(), mediaEvent("m1", entities.KindImage)))

	require.Equal(t, []string{msgFileReceived}, env.notifier.replies)
	require.Len(t, env.notifier.pushes, 1)
	require.True(t, strings.HasPrefix(env.notifier.pushes[0], "❌ Backup failed:"))
	require.Equal(t, []string{"failed"}, env.publisher.outcomes())
}

func TestDispatcher_SubmitAndStop(t *testing.T) {
	env := newTestEnv(t)
	events := make([]entities.InboundEvent, 0, 3)
	for _, id := range []string{"m1", "m2", "m3"} {
		env.source.contents[id] = []byte("content " + id)
		events = append(events, *mediaEvent(id, entities.KindVideo))
	}

	require.NoError(t, env.dispatcher.Submit(events))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.dispatcher.Stop(ctx))

	require.Equal(t, 3, env.storage.putCount())

	err := env.dispatcher.Submit(events[:1])
	require.True(t, errors.Is(err, domain.ErrShuttingDown))
}

func TestDispatcher_StopReleasesAbandonedUpload(t *testing.T) {
	env := newTestEnv(t, withOptions(Options{EnableReplies: true, CommitOnFailure: true, MaxConcurrency: 4}))
	env.storage.hangPuts = true
	env.storage.putStarted = make(chan struct{}, 1)
	env.source.contents["m1"] = []byte("video bytes")

	require.NoError(t, env.dispatcher.Submit([]entities.InboundEvent{*mediaEvent("m1", entities.KindVideo)}))

	select {
	case <-env.storage.putStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, env.dispatcher.Stop(ctx), context.DeadlineExceeded)

	has, err := env.dedup.Has(context.Background(), "m1")
	require.NoError(t, err)
	require.False(t, has, "cut-off event must stay open for redelivery")

	started, err := env.dedup.TryBegin(context.Background(), "m1")
	require.NoError(t, err)
	require.True(t, started, "reservation is released")

	require.Empty(t, env.publisher.outcomes())
	require.Empty(t, env.notifier.pushed())
	require.Empty(t, env.stagingFiles(t))
}

func TestDispatcher_SubmitRejectsWhenPendingFull(t *testing.T) {
	env := newTestEnv(t, withOptions(Options{CommitOnFailure: true, MaxConcurrency: 1, MaxPending: 2}))
	env.storage.hangPuts = true

	events := make([]entities.InboundEvent, 0, 2)
	for _, id := range []string{"m1", "m2"} {
		env.source.contents[id] = []byte("content " + id)
		events = append(events, *mediaEvent(id, entities.KindImage))
	}
	require.NoError(t, env.dispatcher.Submit(events))

	err := env.dispatcher.Submit([]entities.InboundEvent{*mediaEvent("m3", entities.KindImage)})
	require.True(t, errors.Is(err, domain.ErrOverloaded))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = env.dispatcher.Stop(ctx)

	require.Equal(t, int64(0), env.dispatcher.pending.Load())
}
