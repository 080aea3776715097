package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"size exceeded", fmt.Errorf("fetch: %w", ErrSizeExceeded), false},
		{"empty", ErrEmptyContent, false},
		{"server error", NewStatusError("PUT", "a/b", 503, ""), true},
		{"request timeout", NewStatusError("PUT", "a/b", 408, ""), true},
		{"rate limited", NewStatusError("PUT", "a/b", 429, ""), true},
		{"unauthorized", NewStatusError("PUT", "a/b", 401, ""), false},
		{"forbidden", NewStatusError("MKCOL", "a", 403, ""), false},
		{"conflict", NewStatusError("PUT", "a/b", 409, ""), false},
		{"network", NewNetworkError("PUT", "a/b", errors.New("connection reset")), true},
		{"canceled", NewNetworkError("PUT", "a/b", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReason(t *testing.T) {
	if got := Reason(NewStatusError("PUT", "x", 401, "")); got != "auth_rejected" {
		t.Errorf("expected auth_rejected, got %s", got)
	}
	if got := Reason(ErrSizeExceeded); got != "size_exceeded" {
		t.Errorf("expected size_exceeded, got %s", got)
	}
	if got := Reason(NewStatusError("PUT", "x", 502, "")); got != "transient" {
		t.Errorf("expected transient, got %s", got)
	}
	if got := Reason(NewStatusError("PUT", "x", 400, "")); got != "permanent" {
		t.Errorf("expected permanent, got %s", got)
	}
}

func TestTransferError_Message(t *testing.T) {
	err := NewStatusError("MKCOL", "LINE_Backup/other", 500, "Internal Server Error")
	want := "MKCOL LINE_Backup/other: status 500: Internal Server Error"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
