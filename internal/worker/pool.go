package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"appauth/pkg/logging"
)

const (
	// DefaultWorkers is the number of tasks allowed to run at once.
	DefaultWorkers = 2

	// DefaultTimeout bounds each network call.
	DefaultTimeout = 5 * time.Second
)

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool is a bounded executor for network calls.
type Pool struct {
	sem     *semaphore.Weighted
	workers int64
	client  *http.Client
	timeout time.Duration

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of concurrent tasks.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = int64(n)
		}
	}
}

// WithHTTPClient sets the HTTP client used by Request and GetJSON.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pool) {
		p.client = c
	}
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPool creates a Pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		workers: DefaultWorkers,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: p.timeout}
	}
	p.sem = semaphore.NewWeighted(p.workers)
	return p
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int { return int(p.workers) }

// Timeout returns the default per-call timeout.
func (p *Pool) Timeout() time.Duration { return p.timeout }

// HTTPClient returns the client used for requests.
func (p *Pool) HTTPClient() *http.Client { return p.client }

// Close stops accepting work and waits for running tasks to finish.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.wg.Wait()
}

// Future is the eventual result of a submitted task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(val T, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the task completes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on the pool and returns immediately. name is used in
// logs only.
func Submit[T any](ctx context.Context, p *Pool, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()

	if p.closed.Load() {
		var zero T
		f.resolve(zero, ErrPoolClosed)
		return f
	}

	taskID := uuid.NewString()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			var zero T
			f.resolve(zero, err)
			return
		}
		defer p.sem.Release(1)

		start := time.Now()
		logging.Debug(logging.SubsystemWorker, "Task %s (%s) started", taskID, name)

		val, err := fn(ctx)

		if err != nil {
			logging.Debug(logging.SubsystemWorker, "Task %s (%s) failed after %s: %v", taskID, name, time.Since(start).Round(time.Millisecond), err)
		} else {
			logging.Debug(logging.SubsystemWorker, "Task %s (%s) finished in %s", taskID, name, time.Since(start).Round(time.Millisecond))
		}
		f.resolve(val, err)
	}()

	return f
}

// Go schedules fn and delivers its result to callback on the worker
// goroutine.
func Go[T any](ctx context.Context, p *Pool, name string, fn func(ctx context.Context) (T, error), callback func(T, error)) {
	f := Submit(ctx, p, name, fn)
	go func() {
		<-f.Done()
		callback(f.val, f.err)
	}()
}
