package ready

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribersRunOnceOnFire(t *testing.T) {
	l := New()
	var calls atomic.Int32
	l.Subscribe(func() { calls.Add(1) })

	require.False(t, l.Done())
	l.Fire()
	l.Fire()

	require.True(t, l.Done())
	require.Equal(t, int32(1), calls.Load())
}

func TestLateSubscriberStillCalled(t *testing.T) {
	l := New()
	l.Fire()

	var calls atomic.Int32
	l.Subscribe(func() { calls.Add(1) })
	require.Equal(t, int32(1), calls.Load())
}

func TestFailNeverCallsSubscribers(t *testing.T) {
	l := New()
	var calls atomic.Int32
	l.Subscribe(func() { calls.Add(1) })

	boom := errors.New("no model")
	l.Fail(boom)
	l.Fire()
	l.Subscribe(func() { calls.Add(1) })

	require.False(t, l.Done())
	require.Zero(t, calls.Load())
	require.ErrorIs(t, l.Wait(context.Background()), boom)
}

func TestWaitBlocksUntilFire(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	wg.Add(1)
	var waitErr error
	go func() {
		defer wg.Done()
		waitErr = l.Wait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	l.Fire()
	wg.Wait()
	require.NoError(t, waitErr)
}

func TestWaitHonorsContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	require.ErrorIs(t, err, ErrNotFired)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentSubscribeAndFire(t *testing.T) {
	l := New()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Subscribe(func() { calls.Add(1) })
		}()
	}
	l.Fire()
	wg.Wait()

	require.Equal(t, int32(50), calls.Load())
}

func TestResolvedClosesOnFireAndFail(t *testing.T) {
	fired := New()
	select {
	case <-fired.Resolved():
		t.Fatal("resolved before fire")
	default:
	}
	fired.Fire()
	<-fired.Resolved()
	require.NoError(t, fired.Err())

	failed := New()
	failed.Fail(errors.New("no model"))
	<-failed.Resolved()
	require.False(t, failed.Done())
	require.EqualError(t, failed.Err(), "no model")
}
