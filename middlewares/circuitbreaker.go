package middlewares

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	core "github.com/coregraph/core"
)

// CircuitBreakerConfig configures a gobreaker.CircuitBreaker guarding a
// task, grounded on a resilience.Config /
// middleware.CircuitBreakerConfig shape.
type CircuitBreakerConfig struct {
	Name        string
	MaxFailures int
	Timeout     time.Duration
	HalfOpenMax int
	OnStateChange func(from, to gobreaker.State)
}

// DefaultCircuitBreakerConfig matches common production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	}
}

// ErrCircuitOpen is returned by a task run when its breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// breakerRegistry tracks the settings each breaker key (CircuitBreakerConfig.Name)
// was first registered with, so a second, conflicting registration under
// the same key is caught instead of silently building an independent
// breaker with different trip thresholds.
var (
	breakerRegistryMu sync.Mutex
	breakerRegistry   = map[string]CircuitBreakerConfig{}
)

func breakerSettingsConflict(a, b CircuitBreakerConfig) bool {
	return a.MaxFailures != b.MaxFailures || a.Timeout != b.Timeout || a.HalfOpenMax != b.HalfOpenMax
}

// CircuitBreaker builds a task middleware tripping after MaxFailures
// consecutive failures and rejecting calls for Timeout before probing
// again in half-open state. Registering a second CircuitBreaker under
// the same non-empty cfg.Name with different trip settings panics with
// a MiddlewareConcurrencyConflictError rather than silently running two
// breakers under one name.
func CircuitBreaker(id string, cfg CircuitBreakerConfig) *core.TaskMiddleware {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}

	if cfg.Name != "" {
		breakerRegistryMu.Lock()
		existing, seen := breakerRegistry[cfg.Name]
		if !seen {
			breakerRegistry[cfg.Name] = cfg
		}
		breakerRegistryMu.Unlock()
		if seen && breakerSettingsConflict(existing, cfg) {
			panic(core.NewMiddlewareConcurrencyConflictError(cfg.Name))
		}
	}

	maxFailures := uint32(cfg.MaxFailures)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: uint32(cfg.HalfOpenMax),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(from, to)
		}
	}
	cb := gobreaker.NewCircuitBreaker(settings)

	return core.NewTaskMiddleware(id).
		Run(func(inv core.TaskInvocation, next core.TaskNext, deps map[string]any, config any) (any, error) {
			result, err := cb.Execute(func() (any, error) {
				return next(inv.Input)
			})
			if err != nil {
				if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
					return nil, ErrCircuitOpen
				}
				return nil, err
			}
			return result, nil
		}).
		Build()
}
