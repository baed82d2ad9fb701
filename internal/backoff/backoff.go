// Package backoff implements the adaptive retry policy shared by the pipeline stages:
// a failure doubles the wait, a success cuts it to a quarter, both clamped to the
// policy's bounds.
package backoff

import (
	"context"
	"errors"
	"time"

	"rapportage-downloader/internal/components/chrono"
)

var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

type Policy struct {
	// Min is the floor and the initial wait.
	Min time.Duration
	// Max is the ceiling, zero means no ceiling.
	Max time.Duration
	// MaxAttempts bounds the consecutive failures of a single item, zero means unbounded.
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		Min: time.Second,
		Max: time.Minute * 15,
	}
}

type Backoff struct {
	policy   Policy
	current  time.Duration
	failures int
}

func New(policy Policy) *Backoff {
	if policy.Min <= 0 {
		policy.Min = time.Millisecond
	}
	if policy.Max > 0 && policy.Max < policy.Min {
		policy.Max = policy.Min
	}
	return &Backoff{policy: policy, current: policy.Min}
}

func (b *Backoff) Current() time.Duration {
	return b.current
}

// Failures returns the number of failures since the last success.
func (b *Backoff) Failures() int {
	return b.failures
}

// Fail doubles the wait and returns ErrAttemptsExhausted once the policy's
// attempt bound is reached.
func (b *Backoff) Fail() error {
	b.failures++
	b.grow()
	if b.policy.MaxAttempts > 0 && b.failures >= b.policy.MaxAttempts {
		return ErrAttemptsExhausted
	}
	return nil
}

// Grow doubles the wait without counting a failure.
func (b *Backoff) Grow() {
	b.grow()
}

func (b *Backoff) grow() {
	b.current *= 2
	if b.policy.Max > 0 && b.current > b.policy.Max {
		b.current = b.policy.Max
	}
}

// Succeed cuts the wait to a quarter and resets the failure count.
func (b *Backoff) Succeed() {
	b.failures = 0
	b.current /= 4
	if b.current < b.policy.Min {
		b.current = b.policy.Min
	}
}

// ResetAttempts forgets consecutive failures while keeping the current wait.
func (b *Backoff) ResetAttempts() {
	b.failures = 0
}

// Wait sleeps for the current wait on clock.
func (b *Backoff) Wait(ctx context.Context, clock chrono.TimeAPI) error {
	return clock.Sleep(ctx, b.current)
}
