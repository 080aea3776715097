package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/valyala/fasthttp"
)

var (
	// ErrSizeExceeded is returned when content is larger than the configured ceiling
	ErrSizeExceeded = errors.New("content exceeds size limit")

	// ErrEmptyContent is returned when the platform returns no bytes
	ErrEmptyContent = errors.New("content is empty")

	// ErrNoContent is returned for a job that has neither staging file nor inline content
	ErrNoContent = errors.New("upload job has no content")
)

// TransferError is a failed call to the content source or the remote store
type TransferError struct {
	Op        string
	Path      string
	Status    int
	Retryable bool
	Err       error
}

func (e *TransferError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.Path, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s %s: status %d", e.Op, e.Path, e.Status)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewStatusError classifies an unexpected HTTP status
func NewStatusError(op, path string, status int, detail string) *TransferError {
	var err error
	if detail != "" {
		err = errors.New(detail)
	}
	return &TransferError{Op: op, Path: path, Status: status, Retryable: RetryableStatus(status), Err: err}
}

// NewNetworkError wraps a transport failure, which is always retryable unless the caller gave up
func NewNetworkError(op, path string, err error) *TransferError {
	retryable := !errors.Is(err, context.Canceled)
	return &TransferError{Op: op, Path: path, Retryable: retryable, Err: err}
}

// RetryableStatus reports whether a response status is worth another attempt
func RetryableStatus(status int) bool {
	switch {
	case status >= 500:
		return true
	case status == fasthttp.StatusRequestTimeout, status == fasthttp.StatusTooManyRequests:
		return true
	}
	return false
}

// IsRetryable reports whether err is a transient failure
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSizeExceeded) || errors.Is(err, ErrEmptyContent) || errors.Is(err, ErrNoContent) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var transferErr *TransferError
	if errors.As(err, &transferErr) {
		return transferErr.Retryable
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Reason returns a short label for metrics and events
func Reason(err error) string {
	var transferErr *TransferError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSizeExceeded):
		return "size_exceeded"
	case errors.Is(err, ErrEmptyContent):
		return "empty_content"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &transferErr) && (transferErr.Status == fasthttp.StatusUnauthorized || transferErr.Status == fasthttp.StatusForbidden):
		return "auth_rejected"
	case IsRetryable(err):
		return "transient"
	default:
		return "permanent"
	}
}
