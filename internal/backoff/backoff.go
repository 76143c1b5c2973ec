// Package backoff retries a connect function with exponential backoff.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrMaxRetries is returned once every attempt has failed.
var ErrMaxRetries = errors.New("backoff: max retries exceeded")

// Config contains configuration for exponential backoff.
type Config struct {
	MaxRetries    int           // Maximum number of retries after the first attempt (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultConfig returns the default backoff configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// State tracks retries across calls to Run.
type State struct {
	currentRetries atomic.Int32
	reconnects     atomic.Uint32
}

// Retries returns the number of consecutive failed attempts.
func (s *State) Retries() int { return int(s.currentRetries.Load()) }

// Reconnects returns the total number of retries ever made.
func (s *State) Reconnects() uint32 { return s.reconnects.Load() }

// Reset clears the consecutive retry counter after a healthy connection.
func (s *State) Reset() {
	s.currentRetries.Store(0)
}

// ConnectFunc attempts to establish a connection.
type ConnectFunc func(ctx context.Context) error

// Run calls connectFn until it succeeds, waiting with exponential backoff
// between failures.
//
// Backoff schedule with the default config:
//   - Retry 1: 1 second
//   - Retry 2: 2 seconds
//   - Retry 3: 4 seconds
//   - Retry 4: 8 seconds
//   - Retry 5: 16 seconds
//   - After 5 retries: ErrMaxRetries
//
// Returns ctx.Err() if ctx is cancelled first. name prefixes log messages.
func Run(ctx context.Context, name string, connectFn ConnectFunc, cfg Config, state *State) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := connectFn(ctx)
		if err == nil {
			state.Reset()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Error(name+": connection failed", "error", err)

		retries := int(state.currentRetries.Add(1))
		state.reconnects.Add(1)

		if retries > cfg.MaxRetries {
			return fmt.Errorf("%w (%d attempts): %v", ErrMaxRetries, cfg.MaxRetries, err)
		}

		delay := Delay(retries, cfg)

		slog.Warn(name+": retrying connection",
			"attempt", retries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			slog.Info(name + ": context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// Delay returns the wait before the given retry (1-based).
//
// Formula: delay = retryDelay * 2^(retry-1), capped at maxRetryDelay.
func Delay(retry int, cfg Config) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := cfg.RetryDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= cfg.MaxRetryDelay || delay <= 0 {
			return cfg.MaxRetryDelay
		}
	}
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
