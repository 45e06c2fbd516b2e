package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeMerger struct {
	mu      sync.Mutex
	pending []int
	merged  []int
}

func (f *fakeMerger) PendingBarrels() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.pending...)
}

func (f *fakeMerger) MergeBarrel(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = append(f.merged, id)
	f.pending = nil
	return nil
}

type fakeShutdowner struct {
	called bool
}

func (f *fakeShutdowner) Shutdown(ctx context.Context) error {
	f.called = true
	return nil
}

func TestRunMergesPendingBarrelsOnTick(t *testing.T) {
	merger := &fakeMerger{pending: []int{0, 1}}
	shutdown := &fakeShutdowner{}
	r := New(merger, shutdown, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		merger.mu.Lock()
		n := len(merger.merged)
		merger.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for background merge to run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := r.StopAndShutdown(cancel, done, time.Second); err != nil {
		t.Fatalf("StopAndShutdown: %v", err)
	}
	if !shutdown.called {
		t.Fatal("expected Shutdown to be called")
	}
}

func TestRunPerformsFinalMergeOnCancel(t *testing.T) {
	merger := &fakeMerger{pending: []int{5}}
	shutdown := &fakeShutdowner{}
	r := New(merger, shutdown, time.Hour) // tick never fires; only the cancel-triggered sweep should run

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	if err := r.StopAndShutdown(cancel, done, time.Second); err != nil {
		t.Fatalf("StopAndShutdown: %v", err)
	}

	merger.mu.Lock()
	defer merger.mu.Unlock()
	if len(merger.merged) != 1 || merger.merged[0] != 5 {
		t.Fatalf("merged = %v, want [5]", merger.merged)
	}
}
