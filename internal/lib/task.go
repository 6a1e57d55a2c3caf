package lib

import (
	"context"
	"errors"

	"go.uber.org/atomic"
)

// Task is a wrapper around a function that runs in a separate goroutine
// and can be started and stopped
type Task struct {
	runFunc func(ctx context.Context) error
	name    string

	isRunning atomic.Bool
	stopCh    atomic.Value // chan struct{}
	doneCh    atomic.Value // chan struct{}
	cancel    atomic.Value // context.CancelFunc
	err       atomic.Error
}

type Runnable interface {
	Run(ctx context.Context) error
}

// NewTask creates a new task from Runnable
func NewTask(runnable Runnable, name string) *Task {
	return NewTaskFunc(runnable.Run, name)
}

// NewTaskFunc creates a new task from a function
func NewTaskFunc(f func(ctx context.Context) error, name string) *Task {
	t := &Task{
		runFunc: f,
		name:    name,
	}
	t.doneCh.Store(make(chan struct{}))
	return t
}

func (s *Task) Start(ctx context.Context) {
	if !s.isRunning.CompareAndSwap(false, true) {
		panic("task already running")
	}
	subCtx, cancel := context.WithCancel(ctx)
	s.cancel.Store(cancel)
	s.stopCh.Store(make(chan struct{}))

	go func() {
		err := s.runFunc(subCtx)
		isContextErr := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)

		// returned due to calling Stop()
		if ctx.Err() == nil && subCtx.Err() != nil && isContextErr {
			close(s.stopCh.Load().(chan struct{}))
			return
		}

		// returned due to outside context cancellation or internal error
		s.err.Store(err)
		close(s.doneCh.Load().(chan struct{}))
		close(s.stopCh.Load().(chan struct{}))
	}()
}

func (s *Task) Stop() <-chan struct{} {
	if !s.isRunning.CompareAndSwap(true, false) {
		closedChan := make(chan struct{})
		close(closedChan)
		return closedChan
	}
	c := s.cancel.Load()
	if c != nil {
		c.(context.CancelFunc)()
	}
	return s.stopCh.Load().(chan struct{})
}

// Done returns a channel that is closed when the task exited on its own
// or was cancelled from outside using context. Stop does not close it
func (s *Task) Done() <-chan struct{} {
	return s.doneCh.Load().(chan struct{})
}

// Err returns the error that caused the task to exit
func (s *Task) Err() error {
	return s.err.Load()
}
