package core

import (
	"context"
	"sync"

	"github.com/coregraph/core/pkg/schema"
)

// TaskInvocation is what a task interceptor or middleware sees at the
// point it is invoked.
type TaskInvocation struct {
	Ctx  context.Context
	Task *Task
	Input any
}

// TaskNext continues the chain with (possibly rewritten) input.
type TaskNext func(input any) (any, error)

// TaskMiddlewareRunFunc is the contract of a task middleware: it
// receives the invocation and the next link, plus its own computed
// deps and config.
type TaskMiddlewareRunFunc func(inv TaskInvocation, next TaskNext, deps map[string]any, config any) (any, error)

// TaskMiddleware wraps task execution, either attached locally to a
// task or declared "everywhere" via a predicate over task definitions.
type TaskMiddleware struct {
	baseDef
	deps         DepsSpec
	everywhere   func(*Task) bool
	configSchema schema.Schema
	runFn        TaskMiddlewareRunFunc

	computedDeps map[string]any
}

func (m *TaskMiddleware) Kind() Kind { return KindTaskMiddleware }

// Everywhere reports whether m applies to target irrespective of local
// attachment.
func (m *TaskMiddleware) Everywhere(target *Task) bool {
	return m.everywhere != nil && m.everywhere(target)
}

type TaskMiddlewareBuilder struct {
	m *TaskMiddleware
}

func NewTaskMiddleware(id string) *TaskMiddlewareBuilder {
	return &TaskMiddlewareBuilder{m: &TaskMiddleware{baseDef: newBaseDef(id)}}
}

func (b *TaskMiddlewareBuilder) Dependencies(deps map[string]Dep) *TaskMiddlewareBuilder {
	b.m.deps = StaticDeps(deps)
	return b
}

func (b *TaskMiddlewareBuilder) DependenciesFunc(fn DepsSpec) *TaskMiddlewareBuilder {
	b.m.deps = fn
	return b
}

// Everywhere registers pred as the global applicability predicate: a
// middleware can be attached locally to one task or apply everywhere a
// predicate matches.
func (b *TaskMiddlewareBuilder) Everywhere(pred func(*Task) bool) *TaskMiddlewareBuilder {
	b.m.everywhere = pred
	return b
}

// EverywhereAll applies m to every task unconditionally.
func (b *TaskMiddlewareBuilder) EverywhereAll() *TaskMiddlewareBuilder {
	b.m.everywhere = func(*Task) bool { return true }
	return b
}

func (b *TaskMiddlewareBuilder) ConfigSchema(s schema.Schema) *TaskMiddlewareBuilder {
	b.m.configSchema = s
	return b
}

func (b *TaskMiddlewareBuilder) Tags(tags ...Ref) *TaskMiddlewareBuilder {
	b.m.tags = tags
	return b
}

func (b *TaskMiddlewareBuilder) Meta(m map[string]any) *TaskMiddlewareBuilder {
	for k, v := range m {
		b.m.meta[k] = v
	}
	return b
}

func (b *TaskMiddlewareBuilder) Run(fn TaskMiddlewareRunFunc) *TaskMiddlewareBuilder {
	b.m.runFn = fn
	return b
}

func (b *TaskMiddlewareBuilder) Build() *TaskMiddleware {
	if b.m.runFn == nil {
		panic(NewBuilderIncompleteError(KindTaskMiddleware, b.m.id, "run"))
	}
	return b.m
}

// ResourceInvocation is what a resource interceptor or middleware sees.
type ResourceInvocation struct {
	Ctx      context.Context
	Resource *Resource
	Config   any
}

// ResourceNext continues the chain with a (possibly rewritten) config.
type ResourceNext func(config any) (any, error)

type ResourceMiddlewareRunFunc func(inv ResourceInvocation, next ResourceNext, deps map[string]any, config any) (any, error)

// ResourceMiddleware wraps resource initialization the same way
// TaskMiddleware wraps task execution.
type ResourceMiddleware struct {
	baseDef
	deps         DepsSpec
	everywhere   func(*Resource) bool
	configSchema schema.Schema
	runFn        ResourceMiddlewareRunFunc

	computedDeps map[string]any
}

func (m *ResourceMiddleware) Kind() Kind { return KindResourceMiddleware }

func (m *ResourceMiddleware) Everywhere(target *Resource) bool {
	return m.everywhere != nil && m.everywhere(target)
}

type ResourceMiddlewareBuilder struct {
	m *ResourceMiddleware
}

func NewResourceMiddleware(id string) *ResourceMiddlewareBuilder {
	return &ResourceMiddlewareBuilder{m: &ResourceMiddleware{baseDef: newBaseDef(id)}}
}

func (b *ResourceMiddlewareBuilder) Dependencies(deps map[string]Dep) *ResourceMiddlewareBuilder {
	b.m.deps = StaticDeps(deps)
	return b
}

func (b *ResourceMiddlewareBuilder) DependenciesFunc(fn DepsSpec) *ResourceMiddlewareBuilder {
	b.m.deps = fn
	return b
}

func (b *ResourceMiddlewareBuilder) Everywhere(pred func(*Resource) bool) *ResourceMiddlewareBuilder {
	b.m.everywhere = pred
	return b
}

func (b *ResourceMiddlewareBuilder) EverywhereAll() *ResourceMiddlewareBuilder {
	b.m.everywhere = func(*Resource) bool { return true }
	return b
}

func (b *ResourceMiddlewareBuilder) ConfigSchema(s schema.Schema) *ResourceMiddlewareBuilder {
	b.m.configSchema = s
	return b
}

func (b *ResourceMiddlewareBuilder) Tags(tags ...Ref) *ResourceMiddlewareBuilder {
	b.m.tags = tags
	return b
}

func (b *ResourceMiddlewareBuilder) Meta(m map[string]any) *ResourceMiddlewareBuilder {
	for k, v := range m {
		b.m.meta[k] = v
	}
	return b
}

func (b *ResourceMiddlewareBuilder) Run(fn ResourceMiddlewareRunFunc) *ResourceMiddlewareBuilder {
	b.m.runFn = fn
	return b
}

func (b *ResourceMiddlewareBuilder) Build() *ResourceMiddleware {
	if b.m.runFn == nil {
		panic(NewBuilderIncompleteError(KindResourceMiddleware, b.m.id, "run"))
	}
	return b.m
}

// taskInterceptorEntry and resourceInterceptorEntry record an
// owner-attributed global interceptor, so getInterceptingResourceIds
// style queries can answer "who is currently wrapping everything".
type taskInterceptorEntry struct {
	owner string
	fn    func(next TaskNext, inv TaskInvocation) (any, error)
}

type resourceInterceptorEntry struct {
	owner string
	fn    func(next ResourceNext, inv ResourceInvocation) (any, error)
}

// MiddlewareManager holds the global task/resource interceptor chains
// and the recorded per-middleware interceptor hooks (see
// InterceptMiddleware). It is injected into
// resources as an owner-scoped MiddlewareManagerHandle so every
// registration is attributable to the resource that made it.
type MiddlewareManager struct {
	mu                    sync.RWMutex
	taskInterceptors      []taskInterceptorEntry
	resourceInterceptors  []resourceInterceptorEntry
	middlewareHooksTask   map[string][]func(next TaskNext, inv TaskInvocation) (any, error)
	middlewareHooksResource map[string][]func(next ResourceNext, inv ResourceInvocation) (any, error)
}

func NewMiddlewareManager() *MiddlewareManager {
	return &MiddlewareManager{
		middlewareHooksTask:     map[string][]func(next TaskNext, inv TaskInvocation) (any, error){},
		middlewareHooksResource: map[string][]func(next ResourceNext, inv ResourceInvocation) (any, error){},
	}
}

func (m *MiddlewareManager) InterceptTask(owner string, fn func(next TaskNext, inv TaskInvocation) (any, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskInterceptors = append(m.taskInterceptors, taskInterceptorEntry{owner: owner, fn: fn})
}

func (m *MiddlewareManager) InterceptResource(owner string, fn func(next ResourceNext, inv ResourceInvocation) (any, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resourceInterceptors = append(m.resourceInterceptors, resourceInterceptorEntry{owner: owner, fn: fn})
}

// InterceptMiddleware records an extra wrapper for one specific
// middleware definition, keyed by the target's id. The recorded wrappers
// are stored only: neither the task chain nor the resource chain calls
// them. A nil target is ignored rather than erroring.
func (m *MiddlewareManager) InterceptMiddleware(target Ref, fn any) {
	if target == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch f := fn.(type) {
	case func(next TaskNext, inv TaskInvocation) (any, error):
		m.middlewareHooksTask[target.ID()] = append(m.middlewareHooksTask[target.ID()], f)
	case func(next ResourceNext, inv ResourceInvocation) (any, error):
		m.middlewareHooksResource[target.ID()] = append(m.middlewareHooksResource[target.ID()], f)
	}
}

func (m *MiddlewareManager) taskInterceptorsSnapshot() []taskInterceptorEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]taskInterceptorEntry{}, m.taskInterceptors...)
}

func (m *MiddlewareManager) resourceInterceptorsSnapshot() []resourceInterceptorEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]resourceInterceptorEntry{}, m.resourceInterceptors...)
}

// InterceptingTaskOwnerIDs returns the unique owners of every globally
// registered task interceptor, the value behind a task handle's
// getInterceptingResourceIds().
func (m *MiddlewareManager) InterceptingTaskOwnerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range m.taskInterceptors {
		if e.owner == "" || seen[e.owner] {
			continue
		}
		seen[e.owner] = true
		out = append(out, e.owner)
	}
	return out
}

// MiddlewareManagerHandle is the owner-scoped facade injected when a
// resource depends on MiddlewareManagerDep(): every Intercept call is
// attributed to the owning resource's id.
type MiddlewareManagerHandle struct {
	mgr   *MiddlewareManager
	owner string
}

func (h *MiddlewareManagerHandle) InterceptTask(fn func(next TaskNext, inv TaskInvocation) (any, error)) {
	h.mgr.InterceptTask(h.owner, fn)
}

func (h *MiddlewareManagerHandle) InterceptResource(fn func(next ResourceNext, inv ResourceInvocation) (any, error)) {
	h.mgr.InterceptResource(h.owner, fn)
}

func (h *MiddlewareManagerHandle) InterceptMiddleware(target Ref, fn any) {
	h.mgr.InterceptMiddleware(target, fn)
}
