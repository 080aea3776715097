package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"

	backuperrors "github.com/Benedict-CS/line-backup-bot/internal/domain/backup/errors"
)

func TestObjectKey(t *testing.T) {
	tests := map[string]string{
		"LINE_Backup/Amigo/2025-02-24/files/Report_Q1.pptx":  "LINE_Backup/Amigo/2025-02-24/files/Report_Q1.pptx",
		"/LINE_Backup//other/../other/2025-02-24/notes.txt": "LINE_Backup/other/2025-02-24/notes.txt",
	}
	for in, want := range tests {
		if got := objectKey(in); got != want {
			t.Errorf("objectKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("a/img.jpg"); got != "image/jpeg" {
		t.Errorf("unexpected content type %q", got)
	}
	if got := contentType("a/blob"); got != "application/octet-stream" {
		t.Errorf("unexpected content type %q", got)
	}
}

func TestClassify(t *testing.T) {
	unavailable := minio.ErrorResponse{StatusCode: http.StatusServiceUnavailable, Code: "SlowDown"}
	if !backuperrors.IsRetryable(classify("PUT", "k", unavailable)) {
		t.Error("503 must be retryable")
	}

	denied := minio.ErrorResponse{StatusCode: http.StatusForbidden, Code: "AccessDenied"}
	if backuperrors.IsRetryable(classify("PUT", "k", denied)) {
		t.Error("403 must not be retryable")
	}

	if !backuperrors.IsRetryable(classify("PUT", "k", errors.New("dial tcp: connection refused"))) {
		t.Error("network errors must be retryable")
	}

	if backuperrors.IsRetryable(classify("PUT", "k", fmt.Errorf("put: %w", context.Canceled))) {
		t.Error("cancellation must not be retryable")
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}) {
		t.Error("NoSuchKey must be not found")
	}
	if isNotFound(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}) {
		t.Error("AccessDenied must not be not found")
	}
}
