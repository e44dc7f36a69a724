package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestOperationStatusIsTerminal(t *testing.T) {
	terminal := []OperationStatus{OperationStatusCompleted, OperationStatusFailed, OperationStatusTimeout}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}

	open := []OperationStatus{OperationStatusPending, OperationStatusProcessing}
	for _, status := range open {
		if status.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", status)
		}
	}
}

func TestEstimateProgressCappedBelowCompletion(t *testing.T) {
	if got := EstimateProgress(0, 10000); got != 0 {
		t.Fatalf("progress at start = %d, want 0", got)
	}
	if got := EstimateProgress(5000, 10000); got != 50 {
		t.Fatalf("progress at half = %d, want 50", got)
	}
	if got := EstimateProgress(9900, 10000); got != 95 {
		t.Fatalf("progress near limit = %d, want cap of 95", got)
	}
	if got := EstimateProgress(50000, 10000); got != 95 {
		t.Fatalf("progress past limit = %d, want cap of 95", got)
	}
	if got := EstimateProgress(1000, 0); got != 0 {
		t.Fatalf("progress with zero max wait = %d, want 0", got)
	}
}

func TestEstimateProgressMonotonic(t *testing.T) {
	last := -1
	for elapsed := int64(0); elapsed <= 12000; elapsed += 500 {
		got := EstimateProgress(elapsed, 10000)
		if got < last {
			t.Fatalf("progress decreased from %d to %d at elapsed=%d", last, got, elapsed)
		}
		last = got
	}
}

func TestNewOperationDefaults(t *testing.T) {
	op := NewOperation(uuid.New(), 0)
	if op.Status != OperationStatusPending {
		t.Fatalf("new operation status = %s, want pending", op.Status)
	}
	if op.MaxWaitTimeMs != (5 * time.Minute).Milliseconds() {
		t.Fatalf("default max wait = %d, want 5 minutes", op.MaxWaitTimeMs)
	}

	op = NewOperation(uuid.New(), 30*time.Second)
	if op.MaxWaitTimeMs != 30000 {
		t.Fatalf("max wait = %d, want 30000", op.MaxWaitTimeMs)
	}
}
