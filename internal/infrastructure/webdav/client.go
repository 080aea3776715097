package webdav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
)

const (
	methodMkcol    = "MKCOL"
	methodPropfind = "PROPFIND"
)

// Config holds WebDAV client settings
type Config struct {
	URL           string
	RootPath      string
	User          string
	Password      string
	BasePath      string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

// Client talks to a WebDAV server with HTTP Basic auth
type Client struct {
	root         string
	basePath     string
	user         string
	password     string
	httpClient   *http.Client
	uploadClient *http.Client
	logger       zerolog.Logger
}

// NewClient creates a new WebDAV client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	root := strings.TrimRight(cfg.URL, "/") + "/" + strings.Trim(cfg.RootPath, "/")

	client := &Client{
		root:         strings.TrimRight(root, "/"),
		basePath:     strings.Trim(cfg.BasePath, "/"),
		user:         cfg.User,
		password:     cfg.Password,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		uploadClient: &http.Client{Timeout: cfg.UploadTimeout},
		logger:       logger,
	}

	logger.Info().
		Str("root", client.root).
		Str("base_path", client.basePath).
		Msg("WebDAV client initialized")

	return client
}

// URL returns the absolute URL of a remote path with each segment escaped
func (c *Client) URL(remotePath string) string {
	segments := strings.Split(strings.Trim(remotePath, "/"), "/")
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			escaped = append(escaped, url.PathEscape(s))
		}
	}
	if len(escaped) == 0 {
		return c.root + "/"
	}
	return c.root + "/" + strings.Join(escaped, "/")
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.SetBasicAuth(c.user, c.password)
	return req, nil
}

// EnsureFolder creates every segment of dir. 201, 204 and 405 count as success.
func (c *Client) EnsureFolder(ctx context.Context, dir string) error {
	segments := strings.Split(strings.Trim(dir, "/"), "/")
	current := ""
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		current = strings.TrimPrefix(current+"/"+segment, "/")
		if err := c.mkcol(ctx, current); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) mkcol(ctx context.Context, dir string) error {
	req, err := c.newRequest(ctx, methodMkcol, c.URL(dir)+"/", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return backuperrors.NewNetworkError(methodMkcol, dir, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent, http.StatusMethodNotAllowed:
		drain(resp.Body)
		return nil
	default:
		return backuperrors.NewStatusError(methodMkcol, dir, resp.StatusCode, snippet(resp.Body))
	}
}

// Put streams body to remotePath. size must be the exact body length.
func (c *Client) Put(ctx context.Context, remotePath string, body io.Reader, size int64) error {
	if body == nil || size == 0 {
		body = http.NoBody
	}
	req, err := c.newRequest(ctx, http.MethodPut, c.URL(remotePath), body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return backuperrors.NewNetworkError(http.MethodPut, remotePath, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		drain(resp.Body)
		return nil
	default:
		return backuperrors.NewStatusError(http.MethodPut, remotePath, resp.StatusCode, snippet(resp.Body))
	}
}

// Exists checks remotePath with a depth 0 PROPFIND
func (c *Client) Exists(ctx context.Context, remotePath string) (bool, error) {
	status, err := c.propfind(ctx, remotePath)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK, http.StatusMultiStatus:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, backuperrors.NewStatusError(methodPropfind, remotePath, status, "")
	}
}

// ReadFile downloads remotePath. Files larger than limit are rejected.
func (c *Client) ReadFile(ctx context.Context, remotePath string, limit int64) ([]byte, bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.URL(remotePath), nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, backuperrors.NewNetworkError(http.MethodGet, remotePath, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		drain(resp.Body)
		return nil, false, nil
	default:
		return nil, false, backuperrors.NewStatusError(http.MethodGet, remotePath, resp.StatusCode, snippet(resp.Body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, false, backuperrors.NewNetworkError(http.MethodGet, remotePath, err)
	}
	if int64(len(data)) > limit {
		return nil, true, fmt.Errorf("read %s: %w", remotePath, backuperrors.ErrSizeExceeded)
	}
	return data, true, nil
}

// Probe reports whether the server answers a PROPFIND on the base path with valid credentials
func (c *Client) Probe(ctx context.Context) bool {
	status, err := c.propfind(ctx, c.basePath)
	if err != nil {
		c.logger.Debug().Err(err).Msg("WebDAV probe failed")
		return false
	}
	switch status {
	case http.StatusOK, http.StatusMultiStatus, http.StatusNotFound:
		return true
	default:
		c.logger.Debug().Int("status", status).Msg("WebDAV probe rejected")
		return false
	}
}

func (c *Client) propfind(ctx context.Context, remotePath string) (int, error) {
	req, err := c.newRequest(ctx, methodPropfind, c.URL(remotePath), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Depth", "0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, backuperrors.NewNetworkError(methodPropfind, remotePath, err)
	}
	drain(resp.Body)
	return resp.StatusCode, nil
}

func snippet(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 200))
	return string(bytes.TrimSpace(data))
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
}
