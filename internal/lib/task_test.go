package lib

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskStopCancelsContext(t *testing.T) {
	started := make(chan struct{})
	task := NewTaskFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, "test")

	task.Start(context.Background())
	<-started

	select {
	case <-task.Stop():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not stop")
	}
}

func TestTaskDoneOnInternalError(t *testing.T) {
	wantErr := errors.New("boom")
	task := NewTaskFunc(func(ctx context.Context) error {
		return wantErr
	}, "test")

	task.Start(context.Background())

	select {
	case <-task.Done():
		require.ErrorIs(t, task.Err(), wantErr)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
}

func TestTaskDoubleStartPanics(t *testing.T) {
	task := NewTaskFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, "test")

	task.Start(context.Background())
	defer task.Stop()

	require.Panics(t, func() {
		task.Start(context.Background())
	})
}
