package core

import (
	"context"
	"log/slog"
	"os"
)

type runConfig struct {
	mode            RunMode
	logger          *slog.Logger
	extensions      []Extension
	cycleDetection  bool
	invocationLimit int
}

// RunOption configures a Run call, following the package's functional-
// option style.
type RunOption func(*runConfig)

// WithMode selects sequential or parallel startup-resource
// initialization.
func WithMode(m RunMode) RunOption { return func(c *runConfig) { c.mode = m } }

// WithLogger replaces the default stderr text logger.
func WithLogger(l *slog.Logger) RunOption { return func(c *runConfig) { c.logger = l } }

// WithExtension attaches one or more Extensions for the run's lifetime.
func WithExtension(ext ...Extension) RunOption {
	return func(c *runConfig) { c.extensions = append(c.extensions, ext...) }
}

// WithEventCycleDetection toggles reentrant-event rejection (on by
// default).
func WithEventCycleDetection(on bool) RunOption {
	return func(c *runConfig) { c.cycleDetection = on }
}

// WithInvocationTreeLimit bounds how many finished task-run
// invocations the run keeps around for introspection.
func WithInvocationTreeLimit(n int) RunOption {
	return func(c *runConfig) { c.invocationLimit = n }
}

// Run assembles a Graph rooted at root: walks its register() tree into
// a Store, resolves overrides, runs the Dependency Processor, brings up
// every startup-required resource per mode and then every other
// registered resource, and returns a RunResult the caller uses to run
// tasks, emit events and eventually dispose the run.
func Run(ctx context.Context, root *Resource, rootConfig any, opts ...RunOption) (*RunResult, error) {
	cfg := runConfig{
		mode:            ModeSequential,
		logger:          slog.New(slog.NewTextHandler(os.Stderr, nil)),
		cycleDetection:  true,
		invocationLimit: 1000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	g := &Graph{
		store:      NewStore(),
		middleware: NewMiddlewareManager(),
		logger:     cfg.logger,
		extensions: cfg.extensions,
		pool:       newPoolManager(),
		invTree:    newInvocationTree(cfg.invocationLimit),
		depGraph:   newDepGraph(),
		states:     map[string]*resourceState{},
		mode:       cfg.mode,
		baseCtx:    ctx,
	}
	g.events = NewEventManager(cfg.cycleDetection)
	g.runner = newTaskRunner(g)

	for _, ext := range g.extensions {
		if err := ext.Init(g); err != nil {
			return nil, err
		}
	}

	if err := g.store.computeRegistrationDeeply(root, rootConfig); err != nil {
		return nil, err
	}
	g.store.ProcessOverrides()
	g.store.Lock()

	if err := (DependencyProcessor{}).Run(ctx, g); err != nil {
		return nil, err
	}

	startup := (ResourceScheduler{}).CollectStartupRequired(g, []string{root.id})

	var initErr error
	if g.mode == ModeParallel {
		initErr = (ResourceScheduler{}).InitializeParallel(ctx, g, startup)
	} else {
		initErr = (ResourceScheduler{}).InitializeSequential(ctx, g, startup)
	}
	if initErr == nil {
		// Then every other registered resource, in registration order; a slot
		// taken over by an override is initialized under the overriding id.
		var rest []string
		for _, id := range g.store.ResourceOrder() {
			if r, ok := g.store.GetResource(id); ok && r.id == id && !g.isInitialized(id) {
				rest = append(rest, id)
			}
		}
		if g.mode == ModeParallel {
			initErr = (ResourceScheduler{}).InitializeParallel(ctx, g, rest)
		} else {
			initErr = (ResourceScheduler{}).InitializeSequential(ctx, g, rest)
		}
	}
	if initErr != nil {
		if failedID, rawErr := g.firstFailedResource(); rawErr != nil {
			for _, ext := range g.extensions {
				if reporter, ok := ext.(ErrorReporter); ok {
					reporter.ReportError(g, failedID, rawErr)
				}
			}
		}
		return nil, initErr
	}

	return &RunResult{g: g}, nil
}

// RunResult is the live handle to an assembled, started Graph.
type RunResult struct {
	g *Graph
}

// RunTask runs one task by id against the live graph.
func (rr *RunResult) RunTask(ctx context.Context, taskID string, input any) (any, error) {
	return rr.g.runner.Run(ctx, taskID, input)
}

// EmitEvent dispatches data to every hook listening on eventID.
func (rr *RunResult) EmitEvent(ctx context.Context, eventID string, data any) error {
	ev, ok := rr.g.store.GetEvent(eventID)
	if !ok {
		return NewEventNotFoundError(eventID)
	}
	return rr.g.events.Emit(ctx, ev, data, "")
}

// GetResourceValue returns a resource's live value; a resource that is
// not yet initialized is initialized on this call.
func (rr *RunResult) GetResourceValue(ctx context.Context, id string) (any, error) {
	return rr.g.ExtractResource(ctx, id)
}

// Controller returns lifecycle control for one resource.
func (rr *RunResult) Controller(id string) *ResourceController {
	return &ResourceController{g: rr.g, id: id}
}

// InvocationTree exposes the run's recorded task-run invocations.
func (rr *RunResult) InvocationTree() *InvocationTree {
	return rr.g.invTree
}

// Dispose tears every initialized resource back down in the reverse of
// its actual initialization order (itself already dependency-respecting
// since a resource only finishes initializing after everything it
// depends on has), then disposes every Extension.
func (rr *RunResult) Dispose(ctx context.Context) error {
	order := rr.g.store.InitOrderSnapshot()
	errs := &Errors{}

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		r, ok := rr.g.store.GetResource(id)
		if !ok {
			continue
		}
		st := rr.g.ensureState(id)
		st.mu.Lock()
		value, deps, rctx, initErr := st.value, st.deps, st.rctx, st.err
		st.mu.Unlock()
		if initErr != nil {
			continue
		}
		if r.disposeFn != nil {
			if err := r.disposeFn(value, r.config, deps, rctx); err != nil {
				errs.Add(err)
			}
		}
		if rctx != nil {
			if err := rctx.runCleanups(); err != nil {
				errs.Add(err)
			}
		}
	}

	for _, ext := range rr.g.extensions {
		if err := ext.Dispose(rr.g); err != nil {
			errs.Add(err)
		}
	}
	return errs.Errors()
}
