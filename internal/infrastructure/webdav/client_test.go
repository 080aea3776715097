package webdav

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
)

// fakeDAV is a minimal in-memory WebDAV server
type fakeDAV struct {
	mu       sync.Mutex
	dirs     map[string]bool
	files    map[string][]byte
	methods  []string
	putFails int
	status   int
}

func newFakeDAV() *fakeDAV {
	return &fakeDAV{dirs: map[string]bool{"/remote.php/webdav/": true}, files: map[string][]byte{}}
}

func (f *fakeDAV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.methods = append(f.methods, r.Method+" "+r.URL.Path)

	if user, pass, ok := r.BasicAuth(); !ok || user != "bot" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}

	switch r.Method {
	case "MKCOL":
		if f.dirs[r.URL.Path] {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		f.dirs[r.URL.Path] = true
		w.WriteHeader(http.StatusCreated)
	case http.MethodPut:
		if f.putFails > 0 {
			f.putFails--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.files[r.URL.Path] = data
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		data, ok := f.files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	case "PROPFIND":
		if r.Header.Get("Depth") != "0" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, ok := f.files[r.URL.Path]; ok || f.dirs[r.URL.Path] || f.dirs[r.URL.Path+"/"] {
			w.WriteHeader(http.StatusMultiStatus)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, dav *fakeDAV, password string) *Client {
	t.Helper()
	srv := httptest.NewServer(dav)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		URL:           srv.URL + "/",
		RootPath:      "/remote.php/webdav",
		User:          "bot",
		Password:      password,
		BasePath:      "LINE_Backup",
		Timeout:       2 * time.Second,
		UploadTimeout: 2 * time.Second,
	}, zerolog.Nop())
}

func TestClient_URLEscapesSegments(t *testing.T) {
	c := NewClient(Config{URL: "https://cloud.example.com", RootPath: "remote.php/webdav"}, zerolog.Nop())

	require.Equal(t,
		"https://cloud.example.com/remote.php/webdav/LINE_Backup/Amigo/2025-02-24/files/Q1%20report%23final.pptx",
		c.URL("/LINE_Backup/Amigo/2025-02-24/files/Q1 report#final.pptx"),
	)
	require.Equal(t, "https://cloud.example.com/remote.php/webdav/", c.URL(""))
}

func TestClient_EnsureFolderIsIdempotent(t *testing.T) {
	dav := newFakeDAV()
	c := newTestClient(t, dav, "secret")
	ctx := context.Background()

	require.NoError(t, c.EnsureFolder(ctx, "LINE_Backup/Amigo/2025-02-24/files"))
	require.NoError(t, c.EnsureFolder(ctx, "LINE_Backup/Amigo/2025-02-24/files"))

	require.True(t, dav.dirs["/remote.php/webdav/LINE_Backup/"])
	require.True(t, dav.dirs["/remote.php/webdav/LINE_Backup/Amigo/2025-02-24/files/"])
}

func TestClient_PutAndRead(t *testing.T) {
	dav := newFakeDAV()
	c := newTestClient(t, dav, "secret")
	ctx := context.Background()

	body := "https://example.com/page"
	require.NoError(t, c.Put(ctx, "LINE_Backup/other/link.txt", strings.NewReader(body), int64(len(body))))

	data, found, err := c.ReadFile(ctx, "LINE_Backup/other/link.txt", 1024)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, body, string(data))

	_, found, err = c.ReadFile(ctx, "LINE_Backup/other/missing.txt", 1024)
	require.NoError(t, err)
	require.False(t, found)

	_, _, err = c.ReadFile(ctx, "LINE_Backup/other/link.txt", 4)
	require.True(t, errors.Is(err, backuperrors.ErrSizeExceeded))

	exists, err := c.Exists(ctx, "LINE_Backup/other/link.txt")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = c.Exists(ctx, "LINE_Backup/other/nope.txt")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestClient_PutClassifiesFailures(t *testing.T) {
	dav := newFakeDAV()
	dav.putFails = 1
	c := newTestClient(t, dav, "secret")

	err := c.Put(context.Background(), "a.txt", strings.NewReader("x"), 1)
	require.Error(t, err)
	require.True(t, backuperrors.IsRetryable(err), "502 is transient")

	bad := newTestClient(t, newFakeDAV(), "wrong")
	err = bad.Put(context.Background(), "a.txt", strings.NewReader("x"), 1)
	require.Error(t, err)
	require.False(t, backuperrors.IsRetryable(err), "401 is permanent")
}

func TestClient_Probe(t *testing.T) {
	dav := newFakeDAV()
	require.True(t, newTestClient(t, dav, "secret").Probe(context.Background()), "missing base path still means reachable")
	require.False(t, newTestClient(t, newFakeDAV(), "wrong").Probe(context.Background()))

	down := newFakeDAV()
	down.status = http.StatusServiceUnavailable
	require.False(t, newTestClient(t, down, "secret").Probe(context.Background()))
}
