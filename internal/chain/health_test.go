package chain

import (
	"testing"
	"time"
)

func TestHealthTrackerFailureRate(t *testing.T) {
	t.Parallel()
	h := NewHealthTracker(time.Minute, 0.5)

	h.Record(true)
	h.Record(true)
	h.Record(false)
	h.Record(false)

	if rate := h.FailureRate(); rate != 0.5 {
		t.Fatalf("FailureRate() = %v, want 0.5", rate)
	}
	if h.IsUnhealthy() {
		t.Fatalf("IsUnhealthy() should be false at exactly the threshold (strict >)")
	}

	h.Record(false)
	if !h.IsUnhealthy() {
		t.Fatalf("IsUnhealthy() should be true once failure rate exceeds threshold")
	}
}

func TestHealthTrackerEvictsStaleOutcomes(t *testing.T) {
	t.Parallel()
	h := NewHealthTracker(20*time.Millisecond, 0.1)

	h.Record(false)
	h.Record(false)
	if !h.IsUnhealthy() {
		t.Fatalf("expected unhealthy immediately after failures")
	}

	time.Sleep(40 * time.Millisecond)
	if rate := h.FailureRate(); rate != 0 {
		t.Fatalf("FailureRate() after window elapsed = %v, want 0", rate)
	}
}

func TestHealthTrackerEmptyWindow(t *testing.T) {
	t.Parallel()
	h := NewHealthTracker(time.Minute, 0.5)

	if rate := h.FailureRate(); rate != 0 {
		t.Fatalf("FailureRate() with no samples = %v, want 0", rate)
	}
	if h.SampleCount() != 0 {
		t.Fatalf("SampleCount() = %d, want 0", h.SampleCount())
	}
}
