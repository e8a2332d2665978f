package control

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRunControl_InitialState(t *testing.T) {
	ctrl := New(context.Background())
	if ctrl.State() != StateRunning {
		t.Errorf("Expected initial state to be StateRunning, got %v", ctrl.State())
	}
	if !ctrl.Checkpoint(context.Background()) {
		t.Error("Expected checkpoint to pass while running")
	}
}

func TestRunControl_StateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateRunning, "running"},
		{StatePaused, "paused"},
		{StateStopped, "stopped"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, got)
		}
	}
}

func TestRunControl_Stop(t *testing.T) {
	ctrl := New(context.Background())
	ctrl.Stop("budget")
	ctrl.Stop("second reason")

	if !ctrl.IsStopped() {
		t.Error("Expected run to be stopped")
	}
	if ctrl.Reason() != "budget" {
		t.Errorf("Expected first reason to be kept, got %q", ctrl.Reason())
	}
	select {
	case <-ctrl.Context().Done():
	default:
		t.Error("Expected context to be cancelled")
	}
	if ctrl.Checkpoint(context.Background()) {
		t.Error("Expected checkpoint to fail once stopped")
	}
}

func TestRunControl_ParentCancellationStops(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctrl := New(parent)
	cancel()

	deadline := time.After(time.Second)
	for !ctrl.IsStopped() {
		select {
		case <-deadline:
			t.Fatal("Expected run to stop when the parent context is cancelled")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunControl_CannotPauseOrResumeStopped(t *testing.T) {
	ctrl := New(context.Background())
	ctrl.Stop("done")
	ctrl.Pause()
	if ctrl.State() != StateStopped {
		t.Error("Should not be able to pause a stopped run")
	}
	ctrl.Resume()
	if ctrl.State() != StateStopped {
		t.Error("Should not be able to resume a stopped run")
	}
}

func TestRunControl_PauseBlocksUntilResume(t *testing.T) {
	ctrl := New(context.Background())
	ctrl.Pause()

	result := make(chan bool, 1)
	go func() {
		result <- ctrl.Checkpoint(context.Background())
	}()

	select {
	case <-result:
		t.Fatal("Checkpoint should block while paused")
	case <-time.After(50 * time.Millisecond):
	}

	ctrl.Resume()
	select {
	case ok := <-result:
		if !ok {
			t.Error("Expected checkpoint to pass after resume")
		}
	case <-time.After(time.Second):
		t.Fatal("Checkpoint did not unblock after resume")
	}
}

func TestRunControl_StopWakesPausedWorkers(t *testing.T) {
	ctrl := New(context.Background())
	ctrl.Pause()

	var wg sync.WaitGroup
	results := make(chan bool, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ctrl.Checkpoint(context.Background())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	ctrl.Stop("interrupted")
	wg.Wait()
	close(results)

	for ok := range results {
		if ok {
			t.Error("Expected every paused worker to stop")
		}
	}
}

func TestRunControl_CheckpointHonorsContext(t *testing.T) {
	ctrl := New(context.Background())
	ctrl.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		done <- ctrl.Checkpoint(ctx)
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("Expected checkpoint to fail when its context expires")
		}
	case <-time.After(time.Second):
		t.Fatal("Checkpoint ignored its context")
	}
	if ctrl.State() != StatePaused {
		t.Errorf("Expected run to stay paused, got %v", ctrl.State())
	}
}

func TestRunControl_CloseDoesNotStop(t *testing.T) {
	ctrl := New(context.Background())
	ctrl.Close()

	select {
	case <-ctrl.Context().Done():
	default:
		t.Error("Expected context to be released")
	}
	time.Sleep(10 * time.Millisecond)
	if ctrl.IsStopped() {
		t.Error("Close should not mark the run as stopped")
	}
}
