package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
)

// Config holds S3/MinIO configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Client stores backups as objects. Keys are the same paths the WebDAV backend uses.
type Client struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewClient creates a new S3/MinIO client
func NewClient(cfg *Config, logger zerolog.Logger) (*Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	c.logger.Info().Str("bucket", c.bucket).Msg("created S3 bucket")

	return nil
}

// EnsureFolder is a no-op, object stores have no directories
func (c *Client) EnsureFolder(_ context.Context, _ string) error {
	return nil
}

// Put streams body into the object at remotePath
func (c *Client) Put(ctx context.Context, remotePath string, body io.Reader, size int64) error {
	key := objectKey(remotePath)

	info, err := c.client.PutObject(ctx, c.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return classify(http.MethodPut, key, err)
	}

	c.logger.Debug().
		Str("object_key", key).
		Int64("size", info.Size).
		Msg("uploaded object to S3")

	return nil
}

// Exists reports whether an object exists at remotePath
func (c *Client) Exists(ctx context.Context, remotePath string) (bool, error) {
	key := objectKey(remotePath)

	_, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, classify("STAT", key, err)
}

// ReadFile downloads at most limit bytes of the object at remotePath
func (c *Client) ReadFile(ctx context.Context, remotePath string, limit int64) ([]byte, bool, error) {
	key := objectKey(remotePath)

	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, classify(http.MethodGet, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, limit+1))
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, classify(http.MethodGet, key, err)
	}
	if int64(len(data)) > limit {
		return nil, true, fmt.Errorf("read %s: %w", key, backuperrors.ErrSizeExceeded)
	}
	return data, true, nil
}

// Probe reports whether the bucket is reachable
func (c *Client) Probe(ctx context.Context) bool {
	ok, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		c.logger.Debug().Err(err).Msg("S3 probe failed")
		return false
	}
	return ok
}

func objectKey(remotePath string) string {
	return strings.TrimPrefix(path.Clean("/"+remotePath), "/")
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

// classify converts a minio error into the transfer taxonomy
func classify(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backuperrors.NewNetworkError(op, key, err)
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		return backuperrors.NewStatusError(op, key, resp.StatusCode, resp.Code)
	}
	return backuperrors.NewNetworkError(op, key, err)
}
