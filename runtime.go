package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunMode selects how the Resource Scheduler brings up resources:
// sequentially in the order given (startup-required resources in the
// order CollectStartupRequired found them, then the remaining resources
// in registration order), or in parallel waves keyed by dependency and
// tag-based readiness.
type RunMode string

const (
	ModeSequential RunMode = "sequential"
	ModeParallel   RunMode = "parallel"
)

// well-known resource ids for the run's built-in services. They are not
// entries in the Store: ExtractResource and dependency resolution answer
// them directly, so Store lookups and listings do not include them.
const (
	loggerResourceID       = "core.logger"
	middlewareManagerID    = "core.middlewareManager"
	eventManagerResourceID = "core.eventManager"
	taskRunnerResourceID   = "core.taskRunner"
	storeResourceID        = "core.store"
)

var (
	middlewareManagerRef = sentinelRef{middlewareManagerID, KindResource}
	loggerRef            = sentinelRef{loggerResourceID, KindResource}
	eventManagerRef      = sentinelRef{eventManagerResourceID, KindResource}
	taskRunnerRef        = sentinelRef{taskRunnerResourceID, KindResource}
	storeRef             = sentinelRef{storeResourceID, KindResource}
)

// MiddlewareManagerDep injects an owner-scoped MiddlewareManagerHandle.
func MiddlewareManagerDep() Dep { return DependOn(middlewareManagerRef) }

// LoggerDep injects the run's *slog.Logger.
func LoggerDep() Dep { return DependOn(loggerRef) }

// EventManagerDep injects the run's *EventManager.
func EventManagerDep() Dep { return DependOn(eventManagerRef) }

// TaskRunnerDep injects the run's *TaskRunner.
func TaskRunnerDep() Dep { return DependOn(taskRunnerRef) }

// StoreDep injects the run's *Store.
func StoreDep() Dep { return DependOn(storeRef) }

// Graph is the live, assembled runtime for one Run: the Store plus
// everything needed to extract dependencies, initialize resources and
// run tasks against them.
type Graph struct {
	store      *Store
	events     *EventManager
	middleware *MiddlewareManager
	logger     *slog.Logger
	extensions []Extension
	pool       *poolManager
	invTree    *InvocationTree
	depGraph   *depGraph
	runner     *TaskRunner

	statesMu sync.Mutex
	states   map[string]*resourceState

	mode    RunMode
	baseCtx context.Context
}

func (g *Graph) ensureState(id string) *resourceState {
	g.statesMu.Lock()
	defer g.statesMu.Unlock()
	st, ok := g.states[id]
	if !ok {
		st = &resourceState{}
		g.states[id] = st
	}
	return st
}

func (g *Graph) isInitialized(id string) bool {
	g.statesMu.Lock()
	st, ok := g.states[id]
	g.statesMu.Unlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.started && st.done != nil && isClosed(st.done)
}

// ExportDependencyGraph returns the static resource -> resource
// dependency edges discovered by the Dependency Processor, for
// diagnostics (e.g. extensions/graph_debug.go).
func (g *Graph) ExportDependencyGraph() map[string][]string {
	return g.depGraph.Export()
}

// firstFailedResource scans recorded resource states for one that
// finished with an error, for ErrorReporter extensions to describe once
// Run's startup sequence aborts. Ordering among multiple concurrent
// failures (ModeParallel) is unspecified.
func (g *Graph) firstFailedResource() (string, error) {
	g.statesMu.Lock()
	defer g.statesMu.Unlock()
	for id, st := range g.states {
		st.mu.Lock()
		err := st.err
		st.mu.Unlock()
		if err != nil {
			return id, err
		}
	}
	return "", nil
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// newInvocation acquires a pooled InvocationContext for one task run
// under a fresh uuid, linked to parent and tagged with id as its name;
// finishInvocation records it into the invocation tree.
func (g *Graph) newInvocation(ctx context.Context, id string, parent *InvocationContext) *InvocationContext {
	ic := g.pool.acquireInvocationContext(uuid.NewString(), parent, ctx)
	ic.Set(invocationNameTag, id)
	ic.Set(startTimeTag, time.Now())
	return ic
}

// finishInvocation records the finished InvocationContext into the
// run's InvocationTree and returns it to the pool.
func (g *Graph) finishInvocation(ic *InvocationContext, err error) {
	ic.Set(endTimeTag, time.Now())
	if err != nil {
		ic.Set(invocationErrTag, err)
	}
	g.invTree.addNode(ic.finalize())
	g.pool.releaseInvocationContext(ic)
}
