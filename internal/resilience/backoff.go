// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package resilience holds the error taxonomy shared by every advisory flow
// and the optional retry policy used by the model transports.
package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig configures retries around a single model call.
// MaxRetries of zero means the call is attempted exactly once.
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxRetries  int
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
	RetryOnFunc func(error) bool
}

const (
	defaultBaseDelay  = 500 * time.Millisecond
	defaultMaxDelay   = 10 * time.Second
	defaultMultiplier = 2.0
)

// TransportBackoff returns the policy for model transports. Only transient transport
// failures are retried; a payload the model did produce is never re-requested.
func TransportBackoff(maxRetries int) BackoffConfig {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return BackoffConfig{
		BaseDelay:   defaultBaseDelay,
		MaxRetries:  maxRetries,
		MaxDelay:    defaultMaxDelay,
		Multiplier:  defaultMultiplier,
		Jitter:      true,
		RetryOnFunc: IsRetryable,
	}
}

// RetryableError marks a transport failure that may succeed when repeated,
// such as HTTP 429 or 5xx from the model endpoint.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err was marked retryable and is not a cancellation.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// RetryFunc is a function that can be retried with exponential backoff
type RetryFunc func(ctx context.Context) error

// WithExponentialBackoff runs fn until it succeeds, returns a non-retryable error,
// or the retry budget is spent. The last error is returned unchanged.
func WithExponentialBackoff(ctx context.Context, logger *zap.Logger, config BackoffConfig, fn RetryFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	retryOn := config.RetryOnFunc
	if retryOn == nil {
		retryOn = IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("Model call succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if attempt == config.MaxRetries || !retryOn(lastErr) {
			break
		}

		delay := backoffDelay(config, attempt)
		logger.Debug("Retrying model call",
			zap.Error(lastErr),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	if config.MaxRetries > 0 {
		logger.Warn("Model call failed", zap.Error(lastErr), zap.Int("max_retries", config.MaxRetries))
	}
	return lastErr
}

func backoffDelay(config BackoffConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= config.Multiplier
	}
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	if config.Jitter {
		// +/-10%
		delay += delay * 0.1 * (2*rand.Float64() - 1)
	}
	return time.Duration(delay)
}
