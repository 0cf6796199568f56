package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingWorker tracks how many times the supervisor ran it.
type countingWorker struct {
	runs   atomic.Int32
	result func(run int32) error
}

func (w *countingWorker) Run(ctx context.Context) error {
	run := w.runs.Add(1)
	if w.result != nil {
		return w.result(run)
	}
	<-ctx.Done()
	return nil
}

func Test_Clean_Exit_Is_Not_Restarted(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{result: func(int32) error { return nil }}

	sup := NewSupervisor(slog.Default()).Add(worker)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not finish after clean worker exit")
	}
	req.Equal(int32(1), worker.runs.Load())
}

func Test_Crashed_Worker_Is_Restarted(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{result: func(run int32) error {
		if run == 1 {
			return fmt.Errorf("transient failure")
		}
		return nil
	}}

	sup := NewSupervisor(slog.Default()).Add(worker)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not recover the worker")
	}
	req.Equal(int32(2), worker.runs.Load())
}

func Test_Panicking_Worker_Is_Recovered(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{result: func(run int32) error {
		if run == 1 {
			panic("boom")
		}
		return nil
	}}

	sup := NewSupervisor(slog.Default()).Add(worker)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not recover from the panic")
	}
	req.Equal(int32(2), worker.runs.Load())
}

func Test_Stop_Shuts_Down_Long_Running_Workers(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{}

	sup := NewSupervisor(slog.Default()).Add(worker)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(context.Background())
	}()

	// Give the worker time to start before stopping.
	time.Sleep(50 * time.Millisecond)
	sup.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	req.Equal(int32(1), worker.runs.Load())
}
