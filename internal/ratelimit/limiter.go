// Package ratelimit gates outbound LLM calls behind per-minute and
// per-day ceilings.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeask/internal/errors"
	"codeask/internal/logging"
)

// Limits holds the admission ceilings. Zero ceilings mean unlimited.
type Limits struct {
	RequestsPerMinute int
	TokensPerMinute   int
	TokensPerDay      int
}

// Window is a snapshot of current usage against the ceilings.
type Window struct {
	RequestsThisMinute int
	TokensThisMinute   int
	TokensToday        int
	Limits             Limits
}

// Limiter admits or denies outbound calls. The check and the counter
// increments happen under one lock so concurrent callers can never
// both squeeze through the same remaining headroom. Counter resets run
// on tickers and share that same lock.
type Limiter struct {
	limits Limits
	logger *logging.Logger

	mu                 sync.Mutex
	requestsThisMinute int
	tokensThisMinute   int
	tokensToday        int

	minuteInterval time.Duration
	dayInterval    time.Duration
}

// Option adjusts limiter construction. Used by tests to shrink the
// reset intervals.
type Option func(*Limiter)

// WithIntervals overrides the minute/day reset tick intervals.
func WithIntervals(minute, day time.Duration) Option {
	return func(l *Limiter) {
		l.minuteInterval = minute
		l.dayInterval = day
	}
}

// NewLimiter creates a limiter with the given ceilings.
func NewLimiter(limits Limits, logger *logging.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		limits:         limits,
		logger:         logger,
		minuteInterval: time.Minute,
		dayInterval:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit decides whether a call consuming estimatedTokens may proceed.
// On allow it increments all counters before returning; on deny it
// returns a TOKEN_LIMIT error and leaves the counters untouched.
func (l *Limiter) Admit(estimatedTokens int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limits.TokensPerDay > 0 && l.tokensToday+estimatedTokens > l.limits.TokensPerDay {
		return errors.New(errors.TokenLimit,
			fmt.Sprintf("daily token ceiling reached (%d/%d)", l.tokensToday, l.limits.TokensPerDay))
	}
	if l.limits.TokensPerMinute > 0 && l.tokensThisMinute+estimatedTokens > l.limits.TokensPerMinute {
		return errors.New(errors.TokenLimit,
			fmt.Sprintf("per-minute token ceiling reached (%d/%d)", l.tokensThisMinute, l.limits.TokensPerMinute))
	}
	if l.limits.RequestsPerMinute > 0 && l.requestsThisMinute+1 > l.limits.RequestsPerMinute {
		return errors.New(errors.TokenLimit,
			fmt.Sprintf("per-minute request ceiling reached (%d/%d)", l.requestsThisMinute, l.limits.RequestsPerMinute))
	}

	l.requestsThisMinute++
	l.tokensThisMinute += estimatedTokens
	l.tokensToday += estimatedTokens
	return nil
}

// Usage returns a snapshot of the current window.
func (l *Limiter) Usage() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Window{
		RequestsThisMinute: l.requestsThisMinute,
		TokensThisMinute:   l.tokensThisMinute,
		TokensToday:        l.tokensToday,
		Limits:             l.limits,
	}
}

// Start runs the minute and day reset tickers until ctx is done.
func (l *Limiter) Start(ctx context.Context) {
	go func() {
		minute := time.NewTicker(l.minuteInterval)
		day := time.NewTicker(l.dayInterval)
		defer minute.Stop()
		defer day.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-minute.C:
				l.resetMinute()
			case <-day.C:
				l.resetDay()
			}
		}
	}()
}

func (l *Limiter) resetMinute() {
	l.mu.Lock()
	l.requestsThisMinute = 0
	l.tokensThisMinute = 0
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Debug("Minute window reset", nil)
	}
}

func (l *Limiter) resetDay() {
	l.mu.Lock()
	l.tokensToday = 0
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Debug("Day window reset", nil)
	}
}
