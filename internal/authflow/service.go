package authflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"appauth/internal/audit"
	"appauth/internal/authstate"
	"appauth/internal/worker"
	"appauth/pkg/logging"
	"appauth/pkg/oauth"
)

// ErrClosed is returned by operations on a closed Service.
var ErrClosed = errors.New("authflow: service closed")

// StateObserver is called on the owner goroutine after every mutation with
// a copy of the new state.
type StateObserver func(ctx context.Context, s *authstate.State)

// Service owns one authorization state and runs the flow operations on it.
type Service struct {
	oauth        *oauth.Client
	pool         *worker.Pool
	ownPool      bool
	sink         audit.Sink
	observer     StateObserver
	clientSecret string
	margin       time.Duration

	ops       chan func(*authstate.State)
	done      chan struct{}
	closeOnce sync.Once

	refreshes singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithOAuthClient sets the client used for discovery and revocation.
func WithOAuthClient(c *oauth.Client) Option {
	return func(s *Service) {
		s.oauth = c
	}
}

// WithPool sets the worker pool network calls run on. The caller keeps
// ownership of the pool.
func WithPool(p *worker.Pool) Option {
	return func(s *Service) {
		s.pool = p
	}
}

// WithObserver registers fn to be called after every state mutation.
func WithObserver(fn StateObserver) Option {
	return func(s *Service) {
		s.observer = fn
	}
}

// WithAuditSink sets where audit events are emitted.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithClientSecret configures a confidential client.
func WithClientSecret(secret string) Option {
	return func(s *Service) {
		s.clientSecret = secret
	}
}

// WithRefreshMargin sets how close to expiry an access token may be before
// it is refreshed proactively.
func WithRefreshMargin(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.margin = d
		}
	}
}

// NewService starts a Service owning initial. A nil initial state starts
// unauthorized.
func NewService(initial *authstate.State, opts ...Option) *Service {
	s := &Service{
		margin: authstate.DefaultRefreshMargin,
		ops:    make(chan func(*authstate.State)),
		done:   make(chan struct{}),
		sink:   audit.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = worker.NewPool()
		s.ownPool = true
	}
	if s.oauth == nil {
		s.oauth = oauth.NewClient(
			oauth.WithHTTPClient(s.pool.HTTPClient()),
			oauth.WithLogger(logging.For(logging.SubsystemDiscovery)),
		)
	}

	state := initial.Clone()
	if state == nil {
		state = authstate.New()
	}
	go s.run(state)
	return s
}

func (s *Service) run(state *authstate.State) {
	for {
		select {
		case op := <-s.ops:
			op(state)
		case <-s.done:
			return
		}
	}
}

// onOwner runs fn on the owner goroutine and returns its result.
func onOwner[T any](ctx context.Context, s *Service, fn func(*authstate.State) T) (T, error) {
	var zero T
	result := make(chan T, 1)
	op := func(state *authstate.State) {
		result <- fn(state)
	}

	select {
	case s.ops <- op:
	case <-s.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	// Once accepted, an op always completes; wait for it even if ctx ends
	// so that a mutation is never half observed.
	return <-result, nil
}

// mutate runs fn on the owner goroutine and notifies the observer.
func (s *Service) mutate(ctx context.Context, fn func(*authstate.State) error) error {
	errResult, err := onOwner(ctx, s, func(state *authstate.State) error {
		ferr := fn(state)
		s.notify(ctx, state)
		return ferr
	})
	if err != nil {
		return err
	}
	return errResult
}

func (s *Service) notify(ctx context.Context, state *authstate.State) {
	if s.observer != nil {
		s.observer(context.WithoutCancel(ctx), state.Clone())
	}
}

func (s *Service) emit(ctx context.Context, t audit.EventType, state *authstate.State, detail string) {
	audit.Record(context.WithoutCancel(ctx), s.sink, audit.NewEvent(t, state, detail))
}

// State returns a copy of the current state.
func (s *Service) State(ctx context.Context) (*authstate.State, error) {
	return onOwner(ctx, s, func(state *authstate.State) *authstate.State {
		return state.Clone()
	})
}

// Reset discards all tokens, configuration and latched errors.
func (s *Service) Reset(ctx context.Context) error {
	return s.mutate(ctx, func(state *authstate.State) error {
		state.Reset()
		s.emit(ctx, audit.EventReset, state, "")
		logging.Info(logging.SubsystemAuthFlow, "Authorization state reset")
		return nil
	})
}

// MarkNeedsTokenRefresh forces a refresh on the next fresh-token action.
func (s *Service) MarkNeedsTokenRefresh(ctx context.Context) error {
	return s.mutate(ctx, func(state *authstate.State) error {
		state.NeedsTokenRefresh = true
		return nil
	})
}

// Close stops the owner goroutine. Operations after Close return ErrClosed.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.ownPool {
			s.pool.Close()
		}
	})
}
