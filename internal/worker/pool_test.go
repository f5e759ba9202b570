package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(WithWorkers(2))
	defer p.Close()

	var running, peak atomic.Int32
	futures := make([]*Future[int], 8)
	for i := range futures {
		i := i
		futures[i] = Submit(context.Background(), p, "task", func(ctx context.Context) (int, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return i * 2, nil
		})
	}

	for i, f := range futures {
		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i*2, v)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSubmitDoesNotBlockCaller(t *testing.T) {
	p := NewPool(WithWorkers(1))
	defer p.Close()

	release := make(chan struct{})
	first := Submit(context.Background(), p, "blocker", func(ctx context.Context) (struct{}, error) {
		<-release
		return struct{}{}, nil
	})

	done := make(chan struct{})
	go func() {
		Submit(context.Background(), p, "queued", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked while the pool was busy")
	}

	close(release)
	_, err := first.Await(context.Background())
	require.NoError(t, err)
}

func TestFutureAwaitHonoursContext(t *testing.T) {
	p := NewPool()
	defer p.Close()

	release := make(chan struct{})
	f := Submit(context.Background(), p, "slow", func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", v)
}

func TestGoDeliversToCallback(t *testing.T) {
	p := NewPool()
	defer p.Close()

	boom := errors.New("boom")
	got := make(chan error, 1)
	Go(context.Background(), p, "failing", func(ctx context.Context) (int, error) {
		return 0, boom
	}, func(_ int, err error) {
		got <- err
	})

	select {
	case err := <-got:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestClosedPoolRejectsWork(t *testing.T) {
	p := NewPool()
	p.Close()
	p.Close()

	_, err := Submit(context.Background(), p, "late", func(ctx context.Context) (int, error) {
		return 1, nil
	}).Await(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestDefaults(t *testing.T) {
	p := NewPool()
	assert.Equal(t, DefaultWorkers, p.Workers())
	assert.Equal(t, DefaultTimeout, p.Timeout())
	assert.Equal(t, DefaultTimeout, p.HTTPClient().Timeout)

	p = NewPool(WithWorkers(0), WithTimeout(time.Second))
	assert.Equal(t, DefaultWorkers, p.Workers())
	assert.Equal(t, time.Second, p.Timeout())
}
