package core

import (
	"context"
	"fmt"
	"runtime/debug"
)

// invocationParentKey threads the current InvocationContext through a
// plain context.Context, so a task calling another task's TaskHandle
// gets parented correctly without needing to pass anything explicitly.
type invocationParentKey struct{}

// TaskHandle is what a Resource or Task gets when it depends on a Task:
// a bound, runnable reference resolved against the live graph. Besides
// Run, it exposes Intercept/GetInterceptingResourceIds as additional
// capabilities of the same value, so a holder never needs to re-extract
// the middleware manager just to wrap the tasks it already depends on.
type TaskHandle struct {
	g     *Graph
	t     *Task
	owner string
}

func (g *Graph) taskHandle(t *Task, owner string) *TaskHandle {
	return &TaskHandle{g: g, t: t, owner: owner}
}

func (h *TaskHandle) ID() string { return h.t.id }

func (h *TaskHandle) Run(ctx context.Context, input any) (any, error) {
	return h.g.runner.Run(ctx, h.t.id, input)
}

// Intercept registers fn as a global task interceptor, attributed to
// the resource or task that extracted this handle.
func (h *TaskHandle) Intercept(fn func(next TaskNext, inv TaskInvocation) (any, error)) {
	h.g.middleware.InterceptTask(h.owner, fn)
}

// GetInterceptingResourceIds returns the ids of every owner currently
// holding a global task interceptor.
func (h *TaskHandle) GetInterceptingResourceIds() []string {
	return h.g.middleware.InterceptingTaskOwnerIDs()
}

// TaskRunner executes one task invocation: resolves deps, validates
// input/output against the task's schemas if present, runs the
// middleware chain down to Task.runFn, and recovers a panic into an
// error rather than crashing the run (adapted from an executeFlow
// panic-safety pattern, narrowed to the single-layer defer/recover
// a synchronous task run needs — Tasks have no cancellation-race with a
// parallel goroutine the way Flow did).
type TaskRunner struct {
	g *Graph
}

func newTaskRunner(g *Graph) *TaskRunner {
	return &TaskRunner{g: g}
}

func (tr *TaskRunner) Run(ctx context.Context, taskID string, input any) (result any, err error) {
	t, ok := tr.g.store.GetTask(taskID)
	if !ok {
		return nil, NewDependencyNotFoundError(taskID)
	}

	if t.inputSchema != nil {
		if input, err = t.inputSchema.Validate(input); err != nil {
			return nil, err
		}
	}

	parent, _ := ctx.Value(invocationParentKey{}).(*InvocationContext)
	ic := tr.g.newInvocation(ctx, t.id, parent)
	childCtx := context.WithValue(ic.Context(), invocationParentKey{}, ic)

	op := Operation{Kind: OpTaskRun, ID: t.id}
	tr.g.notifyStart(op)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v\n%s", t.id, p, debug.Stack())
		}
		op.Err = err
		tr.g.finishInvocation(ic, err)
		tr.g.notifyEnd(op)
	}()

	deps, err := tr.g.ExtractDeps(childCtx, t.deps, nil, t.id)
	if err != nil {
		return nil, err
	}

	chain, err := tr.g.composeTaskChain(childCtx, t)
	if err != nil {
		return nil, err
	}

	result, err = chain(input, deps)
	if err != nil {
		return nil, err
	}

	if t.resultSchema != nil {
		if result, err = t.resultSchema.Validate(result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// composeTaskChain mirrors composeResourceChain: local + everywhere
// TaskMiddleware innermost-out, then the global task interceptors
// outermost.
func (g *Graph) composeTaskChain(ctx context.Context, t *Task) (func(input any, deps map[string]any) (any, error), error) {
	list := g.taskMiddlewareList(t)

	type link struct {
		mw   *TaskMiddleware
		deps map[string]any
	}
	links := make([]link, 0, len(list))
	for _, mw := range list {
		mdeps, err := g.ExtractDeps(ctx, mw.deps, nil, mw.id)
		if err != nil {
			return nil, err
		}
		links = append(links, link{mw: mw, deps: mdeps})
	}

	terminal := func(input any, deps map[string]any) (any, error) {
		return t.runFn(ctx, input, deps)
	}

	chain := terminal
	for i := len(links) - 1; i >= 0; i-- {
		l := links[i]
		next := chain
		chain = func(input any, deps map[string]any) (any, error) {
			inv := TaskInvocation{Ctx: ctx, Task: t, Input: input}
			return l.mw.runFn(inv, func(in any) (any, error) { return next(in, deps) }, l.deps, input)
		}
	}

	interceptors := g.middleware.taskInterceptorsSnapshot()
	final := chain
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic := interceptors[i]
		next := final
		final = func(input any, deps map[string]any) (any, error) {
			inv := TaskInvocation{Ctx: ctx, Task: t, Input: input}
			return ic.fn(func(in any) (any, error) { return next(in, deps) }, inv)
		}
	}
	return final, nil
}

// taskMiddlewareList is every everywhere-applicable TaskMiddleware
// followed by t's local middleware, deduplicated by id. composeTaskChain
// wraps this list last-in-innermost, so local middleware (last here)
// ends up closest to run(), with everywhere middleware wrapping around
// it — [everywhere] ∘ [local] ∘ [run].
func (g *Graph) taskMiddlewareList(t *Task) []*TaskMiddleware {
	seen := map[string]bool{}
	var out []*TaskMiddleware
	for _, mw := range g.store.GetEverywhereMiddlewareForTasks(t) {
		if seen[mw.id] {
			continue
		}
		seen[mw.id] = true
		out = append(out, mw)
	}
	for _, mw := range t.middleware {
		if seen[mw.id] {
			continue
		}
		seen[mw.id] = true
		out = append(out, mw)
	}
	return out
}
