package middlewares

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	core "github.com/coregraph/core"
)

// ErrRateLimited is returned when a task call exceeds its configured
// rate and Wait does not have a usable budget under ctx's deadline.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimit builds a task middleware enforcing requestsPerSecond with
// the given burst, grounded on a middleware.RateLimiter over
// golang.org/x/time/rate. Unlike a per-key limiter map (one limiter
// per client key), a task
// middleware instance already scopes to one task id, so a single
// shared *rate.Limiter is enough.
func RateLimit(id string, requestsPerSecond float64, burst int) *core.TaskMiddleware {
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burst)

	return core.NewTaskMiddleware(id).
		Run(func(inv core.TaskInvocation, next core.TaskNext, deps map[string]any, config any) (any, error) {
			ctx := inv.Ctx
			if ctx == nil {
				ctx = context.Background()
			}
			if !limiter.Allow() {
				if err := limiter.Wait(ctx); err != nil {
					return nil, ErrRateLimited
				}
			}
			return next(inv.Input)
		}).
		Build()
}
