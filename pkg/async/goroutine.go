package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTimeout is returned by Call when the task outlives its timeout.
var ErrTimeout = errors.New("task timed out")

// PanicError wraps a panic recovered from a task.
type PanicError struct {
	Task  string
	Value interface{}
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
}

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Error logging
//
// Use this instead of bare `go func()` for long-lived background loops.
//
// Example:
//
//	SafeGo(ctx, logger, "plugin watcher", func(ctx context.Context) error {
//	    return watcher.Run(ctx)
//	})
func SafeGo(ctx context.Context, logger logrus.FieldLogger, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("[SafeGo] PANIC recovered")
			}
		}()

		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithField("task", taskName).WithError(err).Warn("[SafeGo] task failed")
		}
	}()
}

// Call runs fn and waits for it with a timeout. Panics are converted into a
// *PanicError. A zero timeout waits for the parent context only.
//
// The task goroutine cannot be killed: on timeout Call returns ErrTimeout and
// fn keeps running until it observes ctx cancellation.
//
// Example:
//
//	err := Call(ctx, 30*time.Second, "hook onAfterInstall", func(ctx context.Context) error {
//	    return hook.AfterInstall(ctx, id, result)
//	})
func Call(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) error {
	_, err := CallValue(parent, timeout, taskName, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// CallValue is Call for tasks that produce a value.
func CallValue[T any](parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) (T, error)) (T, error) {
	ctx := parent
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result{value: zero, err: &PanicError{
					Task:  taskName,
					Value: r,
					Stack: string(debug.Stack()),
				}}
			}
		}()
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			return zero, fmt.Errorf("%s: %w after %v", taskName, ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}
