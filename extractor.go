package core

import (
	"context"
	"sync"
	"time"
)

// resourceState guards one resource's single-flight initialization: the
// first caller to reach ExtractResource does the work, every concurrent
// caller for the same id waits on done. Adapted from a Scope-style
// cache/in-flight bookkeeping approach, narrowed to one value slot per
// id instead of a generic executor cache.
type resourceState struct {
	mu      sync.Mutex
	started bool
	done    chan struct{}
	value   any
	rctx    *ResourceContext
	deps    map[string]any
	err     error
}

// ExtractResource returns id's live value, initializing it (and,
// transitively, everything it depends on) at most once per run.
func (g *Graph) ExtractResource(ctx context.Context, id string) (any, error) {
	switch id {
	case middlewareManagerID:
		return &MiddlewareManagerHandle{mgr: g.middleware, owner: ""}, nil
	case loggerResourceID:
		return g.logger, nil
	case eventManagerResourceID:
		return g.events, nil
	case taskRunnerResourceID:
		return g.runner, nil
	case storeResourceID:
		return g.store, nil
	}

	r, ok := g.store.GetResource(id)
	if !ok {
		return nil, NewDependencyNotFoundError(id)
	}

	st := g.ensureState(id)
	st.mu.Lock()
	if st.started {
		done := st.done
		st.mu.Unlock()
		<-done
		st.mu.Lock()
		value, err := st.value, st.err
		st.mu.Unlock()
		return value, err
	}
	st.started = true
	st.done = make(chan struct{})
	st.mu.Unlock()

	value, deps, rctx, err := g.initResource(ctx, r)

	st.mu.Lock()
	st.value, st.deps, st.rctx, st.err = value, deps, rctx, err
	close(st.done)
	st.mu.Unlock()

	if err == nil {
		g.store.recordInitialized(id)
	}
	return value, err
}

// initResource resolves a resource's dependencies, builds its
// ResourceContext and runs its middleware chain down to init(), timing
// the whole thing for any attached Extension.
func (g *Graph) initResource(ctx context.Context, r *Resource) (value any, deps map[string]any, rctx *ResourceContext, err error) {
	op := Operation{Kind: OpResourceInit, ID: r.id}
	g.notifyStart(op)
	start := time.Now()
	defer func() {
		op.Err = err
		op.Duration = time.Now().Sub(start)
		g.notifyEnd(op)
	}()

	config := r.config
	if r.configSchema != nil {
		if config, err = r.configSchema.Validate(config); err != nil {
			return nil, nil, nil, err
		}
	}

	deps, err = g.ExtractDeps(ctx, r.deps, config, r.id)
	if err != nil {
		return nil, nil, nil, err
	}

	var seed map[string]any
	if r.contextFn != nil {
		seed = r.contextFn(config)
	}
	rctx = newResourceContext(seed)

	chain, err := g.composeResourceChain(ctx, r)
	if err != nil {
		return nil, deps, rctx, err
	}
	value, err = chain(config, deps, rctx)
	return value, deps, rctx, err
}

// composeResourceChain builds r's init call wrapped, innermost first,
// by its local ResourceMiddleware, then every everywhere-applicable
// ResourceMiddleware, then finally the global resource interceptors
// registered on the MiddlewareManager — [global] ∘ [everywhere] ∘
// [local] ∘ [init] — mirroring a Scope-style extension-wrapping loop:
// build the terminal call first, then wrap in reverse list order.
func (g *Graph) composeResourceChain(ctx context.Context, r *Resource) (func(config any, deps map[string]any, rctx *ResourceContext) (any, error), error) {
	list, err := g.resourceMiddlewareList(r)
	if err != nil {
		return nil, err
	}

	type link struct {
		mw   *ResourceMiddleware
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

	terminal := func(config any, deps map[string]any, rctx *ResourceContext) (any, error) {
		if r.initFn == nil {
			return nil, nil
		}
		return r.initFn(config, deps, rctx)
	}

	chain := func(config any, deps map[string]any, rctx *ResourceContext) (any, error) {
		return terminal(config, deps, rctx)
	}
	for i := len(links) - 1; i >= 0; i-- {
		l := links[i]
		next := chain
		chain = func(config any, deps map[string]any, rctx *ResourceContext) (any, error) {
			inv := ResourceInvocation{Ctx: ctx, Resource: r, Config: config}
			return l.mw.runFn(inv, func(c any) (any, error) { return next(c, deps, rctx) }, l.deps, config)
		}
	}

	interceptors := g.middleware.resourceInterceptorsSnapshot()
	final := chain
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic := interceptors[i]
		next := final
		final = func(config any, deps map[string]any, rctx *ResourceContext) (any, error) {
			inv := ResourceInvocation{Ctx: ctx, Resource: r, Config: config}
			return ic.fn(func(c any) (any, error) { return next(c, deps, rctx) }, inv)
		}
	}
	return final, nil
}

// resourceMiddlewareList is every everywhere-applicable
// ResourceMiddleware followed by r's local middleware, deduplicated by
// id so a middleware attached both ways only wraps once. composeResourceChain
// wraps this list last-in-innermost, so local middleware (appearing
// last here) ends up closest to init(), with everywhere middleware
// wrapping around it — [everywhere] ∘ [local] ∘ [init].
func (g *Graph) resourceMiddlewareList(r *Resource) ([]*ResourceMiddleware, error) {
	seen := map[string]bool{}
	var out []*ResourceMiddleware
	for _, mw := range g.store.GetEverywhereMiddlewareForResources(r) {
		if seen[mw.id] {
			continue
		}
		seen[mw.id] = true
		out = append(out, mw)
	}
	for _, mw := range r.middleware {
		if seen[mw.id] {
			continue
		}
		seen[mw.id] = true
		out = append(out, mw)
	}
	return out, nil
}

// ExtractDeps resolves every entry of spec(config) against the live
// graph, substituting nil for a missing Optional() target and failing
// with DependencyNotFoundError for a missing required one.
func (g *Graph) ExtractDeps(ctx context.Context, spec DepsSpec, config any, holderID string) (map[string]any, error) {
	if spec == nil {
		return map[string]any{}, nil
	}
	m := spec(config)
	out := make(map[string]any, len(m))
	for key, dep := range m {
		v, err := g.resolveDep(ctx, dep, holderID)
		if err != nil {
			if dep.IsOptional() {
				out[key] = nil
				continue
			}
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func (g *Graph) resolveDep(ctx context.Context, dep Dep, holderID string) (any, error) {
	target := dep.Target()
	switch target.Kind() {
	case KindResource:
		if target.ID() == middlewareManagerID {
			return &MiddlewareManagerHandle{mgr: g.middleware, owner: holderID}, nil
		}
		return g.ExtractResource(ctx, target.ID())
	case KindTask:
		t, ok := g.store.GetTask(target.ID())
		if !ok {
			return nil, NewDependencyNotFoundError(target.ID())
		}
		return g.taskHandle(t, holderID), nil
	case KindEvent:
		e, ok := g.store.GetEvent(target.ID())
		if !ok {
			return nil, NewDependencyNotFoundError(target.ID())
		}
		return EventEmitterFunc(func(c context.Context, data any) error {
			return g.events.Emit(c, e, data, holderID)
		}), nil
	case KindTag:
		_ = g.store.storeTag(target)
		return &TagQuery{store: g.store, tagID: target.ID()}, nil
	case KindError:
		et, ok := g.store.GetErrorType(target.ID())
		if !ok {
			return nil, NewDependencyNotFoundError(target.ID())
		}
		return et, nil
	case KindAsyncContext:
		return target, nil
	default:
		return nil, NewDependencyNotFoundError(target.ID())
	}
}

// taggedConfig is implemented by *Tag[T] for any T, letting a
// registry-scoped TagQuery (which only knows a tag by id, not its
// generic parameter) still read whatever config a caller attached via
// With without itself being generic.
type taggedConfig interface {
	configAny() (any, bool)
}

// TagQuery is what a Tag[T].Dep() resolves to: a live view over every
// definition currently carrying that tag.
type TagQuery struct {
	store *Store
	tagID string
}

func (q *TagQuery) Resources() []*Resource   { return q.store.ResourcesWithTag(q.tagID) }
func (q *TagQuery) Tasks() []*Task           { return q.store.TasksWithTag(q.tagID) }
func (q *TagQuery) Definitions() []Definition { return q.store.DefinitionsWithTag(q.tagID) }

// Extract returns the config this tag carries on target, if any,
// erased to any since TagQuery has no generic parameter of its own.
func (q *TagQuery) Extract(target Definition) (any, bool) {
	for _, ref := range target.Tags() {
		if ref.ID() != q.tagID {
			continue
		}
		if tc, ok := ref.(taggedConfig); ok {
			return tc.configAny()
		}
		return nil, false
	}
	return nil, false
}

// Exists reports whether target carries this tag at all, with or
// without config.
func (q *TagQuery) Exists(target Definition) bool {
	for _, ref := range target.Tags() {
		if ref.ID() == q.tagID {
			return true
		}
	}
	return false
}

func (g *Graph) notifyStart(op Operation) {
	for _, ext := range g.extensions {
		ext.OnStart(op)
	}
}

func (g *Graph) notifyEnd(op Operation) {
	for _, ext := range g.extensions {
		ext.OnEnd(op)
	}
}
