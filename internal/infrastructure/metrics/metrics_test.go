package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGetDefaultMetrics_Singleton(t *testing.T) {
	if GetDefaultMetrics() != GetDefaultMetrics() {
		t.Fatal("GetDefaultMetrics must return the same instance")
	}
}

func TestMetrics_RecordEvent(t *testing.T) {
	m := GetDefaultMetrics()

	before := testutil.ToFloat64(m.EventsTotal.WithLabelValues("image", "uploaded"))
	m.RecordEvent("image", "uploaded")
	after := testutil.ToFloat64(m.EventsTotal.WithLabelValues("image", "uploaded"))

	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %v", after-before)
	}

	// Empty kind must not panic
	m.RecordEvent("", "ignored")
}

func TestMetrics_RecordUpload(t *testing.T) {
	m := GetDefaultMetrics()

	before := testutil.ToFloat64(m.UploadBytes)
	m.RecordUpload("files", "success", 2048, 0.4)
	m.RecordUpload("files", "failure", 0, 1.2)

	if got := testutil.ToFloat64(m.UploadBytes) - before; got != 2048 {
		t.Errorf("expected 2048 bytes recorded, got %v", got)
	}
}

func TestMetrics_SetStorageReachable(t *testing.T) {
	m := GetDefaultMetrics()

	m.SetStorageReachable(true)
	if testutil.ToFloat64(m.StorageReachable) != 1 {
		t.Error("expected gauge 1")
	}
	m.SetStorageReachable(false)
	if testutil.ToFloat64(m.StorageReachable) != 0 {
		t.Error("expected gauge 0")
	}
}

func TestMetrics_ResultLabels(t *testing.T) {
	m := GetDefaultMetrics()

	before := testutil.ToFloat64(m.NotificationsSent.WithLabelValues("push", "error"))
	m.RecordNotification("push", errors.New("rate limited"))
	m.RecordPublish(nil)

	if testutil.ToFloat64(m.NotificationsSent.WithLabelValues("push", "error"))-before != 1 {
		t.Error("expected error label to be counted")
	}
}
