package middlewares

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	core "github.com/coregraph/core"
)

// RetryConfig configures exponential backoff retry, mirroring the
// a resilience.RetryConfig shape over github.com/cenkalti/backoff/v4.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, backoff.RandomizationFactor
}

// DefaultRetryConfig matches common production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

func (cfg RetryConfig) backOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return backoff.WithMaxRetries(bo, uint64(maxAttempts-1))
}

// Retry builds a task middleware that retries a failing task run with
// exponential backoff, honoring ctx cancellation via
// backoff.WithContext.
func Retry(id string, cfg RetryConfig) *core.TaskMiddleware {
	return core.NewTaskMiddleware(id).
		Run(func(inv core.TaskInvocation, next core.TaskNext, deps map[string]any, config any) (any, error) {
			var result any
			bo := backoff.WithContext(cfg.backOff(), inv.Ctx)
			err := backoff.Retry(func() error {
				out, err := next(inv.Input)
				if err != nil {
					return err
				}
				result = out
				return nil
			}, bo)
			if err != nil {
				return nil, err
			}
			return result, nil
		}).
		Build()
}
