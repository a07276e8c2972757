package observability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestShutdownManager_RunsAllFuncs(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), time.Second)

	var calls int32
	for i := 0; i < 3; i++ {
		sm.RegisterShutdownFunc(func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// functions run once
	require.NoError(t, sm.Shutdown())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), time.Second)
	sm.RegisterShutdownFunc(func(context.Context) error { return errors.New("one") })
	sm.RegisterShutdownFunc(func(context.Context) error { return nil })
	sm.RegisterShutdownFunc(func(context.Context) error { return errors.New("two") })

	assert.EqualError(t, sm.Shutdown(), "shutdown completed with 2 errors")
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), 20*time.Millisecond)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	sm.RegisterShutdownFunc(func(context.Context) error {
		<-release
		return nil
	})

	assert.EqualError(t, sm.Shutdown(), "shutdown timeout reached")
}

func TestShutdownManager_RecoversPanics(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), time.Second)
	sm.RegisterShutdownFunc(func(context.Context) error { panic("bad cleanup") })

	assert.NotPanics(t, func() { _ = sm.Shutdown() })
}

func TestShutdownManager_WaitForShutdown(t *testing.T) {
	sm := NewShutdownManager(nil, 0)
	done := make(chan struct{})
	sm.RegisterShutdownFunc(func(context.Context) error {
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sm.WaitForShutdown(ctx) }()

	cancel()
	require.NoError(t, <-errc)
	<-done
}

func TestSignalContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SignalContext(parent)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("signal context did not follow its parent")
	}
}
