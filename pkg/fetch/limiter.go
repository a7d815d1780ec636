package fetch

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/pipeline"
)

// DomainSettings bound fetching against one source domain.
type DomainSettings struct {
	Workers     int
	MinInterval time.Duration
}

// Options tune the limiter across all domains.
type Options struct {
	Defaults     DomainSettings
	Overrides    map[string]DomainSettings
	FetchTimeout time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
}

// Limiter is the rate-limited fetch queue. Per domain it bounds concurrent
// dispatches and enforces a minimum interval between them; transient network
// failures retry with exponential backoff and jitter up to MaxAttempts.
type Limiter struct {
	opts Options

	mu      sync.Mutex
	domains map[string]*domainState
}

type domainState struct {
	sem chan struct{}

	mu           sync.Mutex
	lastDispatch time.Time
	interval     time.Duration
}

func NewLimiter(opts Options) *Limiter {
	if opts.Defaults.Workers <= 0 {
		opts.Defaults.Workers = 3
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 250 * time.Millisecond
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 10 * time.Second
	}
	return &Limiter{opts: opts, domains: make(map[string]*domainState)}
}

// Do runs fn under the domain's concurrency and pacing bounds. Only
// pipeline.NetworkError values are retried; everything else returns to the
// caller on the first attempt.
func (l *Limiter) Do(ctx context.Context, domain string, fn func(ctx context.Context) error) error {
	st := l.state(domain)

	var err error
	for attempt := 1; attempt <= l.opts.MaxAttempts; attempt++ {
		err = l.dispatch(ctx, st, fn)
		if err == nil || !pipeline.IsNetworkError(err) {
			return err
		}
		if attempt == l.opts.MaxAttempts {
			break
		}

		delay := backoffDelay(l.opts.BackoffBase, l.opts.BackoffCap, attempt)
		logger.Log.WithFields(map[string]interface{}{
			"domain":  domain,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("transient fetch failure, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (l *Limiter) dispatch(ctx context.Context, st *domainState, fn func(ctx context.Context) error) error {
	select {
	case st.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-st.sem }()

	if err := st.waitTurn(ctx); err != nil {
		return err
	}

	fctx := ctx
	if l.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, l.opts.FetchTimeout)
		defer cancel()
	}

	err := fn(fctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		// per-fetch timeout, not run cancellation
		return pipeline.NetworkError{Err: err}
	}
	return err
}

// waitTurn spaces dispatches at least MinInterval apart. Each caller reserves
// the next slot under the lock, then sleeps until its slot arrives.
func (st *domainState) waitTurn(ctx context.Context) error {
	if st.interval <= 0 {
		return nil
	}

	st.mu.Lock()
	now := time.Now()
	next := st.lastDispatch.Add(st.interval)
	if next.Before(now) {
		next = now
	}
	st.lastDispatch = next
	st.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) state(domain string) *domainState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.domains[domain]; ok {
		return st
	}

	settings := l.opts.Defaults
	if override, ok := l.opts.Overrides[domain]; ok {
		if override.Workers > 0 {
			settings.Workers = override.Workers
		}
		if override.MinInterval > 0 {
			settings.MinInterval = override.MinInterval
		}
	}

	st := &domainState{
		sem:      make(chan struct{}, settings.Workers),
		interval: settings.MinInterval,
	}
	l.domains[domain] = st
	return st
}

// Workers reports the concurrency bound applied to a domain.
func (l *Limiter) Workers(domain string) int {
	return cap(l.state(domain).sem)
}

func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}
	// full jitter: anywhere between half and the computed delay
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
