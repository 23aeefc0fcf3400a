// Package retry executes operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ErrMaxRetriesExceeded is returned once every attempt has failed
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls retry behaviour
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        bool
	RetryableFunc func(error) bool // nil retries every error
}

// DefaultPolicy is suitable for polling external providers
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Validate checks the policy for usable values
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0")
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive")
	}
	if p.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0")
	}
	return nil
}

// delay computes the backoff before the given attempt (1-based)
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}

// Retrier handles retry logic
type Retrier struct {
	policy Policy
	logger *zap.Logger
}

// NewRetrier creates a new retrier
func NewRetrier(policy Policy, logger *zap.Logger) *Retrier {
	if err := policy.Validate(); err != nil {
		panic(fmt.Sprintf("invalid retry policy: %v", err))
	}
	return &Retrier{policy: policy, logger: logger}
}

// Do executes a function with retry logic
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("Operation succeeded after retries",
					zap.Int("attempt", attempt),
					zap.Int("max_retries", r.policy.MaxRetries))
			}
			return nil
		}

		if r.policy.RetryableFunc != nil && !r.policy.RetryableFunc(lastErr) {
			return lastErr
		}

		if attempt >= r.policy.MaxRetries {
			break
		}

		backoff := r.policy.delay(attempt + 1)
		r.logger.Debug("Retrying operation",
			zap.Error(lastErr),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// Do is a package-level helper for one-off retries
func Do(ctx context.Context, policy Policy, logger *zap.Logger, operation func() error) error {
	return NewRetrier(policy, logger).Do(ctx, operation)
}
