package core

import "context"

// HookRunFunc handles one emission.
type HookRunFunc func(ctx context.Context, e *Emission, deps map[string]any) error

// Hook listens to one or more Events, or to every event via On*
// wildcard registration.
type Hook struct {
	baseDef
	on       []Ref
	wildcard bool
	order    int
	deps     DepsSpec
	runFn    HookRunFunc

	computedDeps map[string]any
}

func (h *Hook) Kind() Kind { return KindHook }

type HookBuilder struct {
	h *Hook
}

func NewHook(id string) *HookBuilder {
	return &HookBuilder{h: &Hook{baseDef: newBaseDef(id)}}
}

// On restricts the hook to the given events.
func (b *HookBuilder) On(events ...*Event) *HookBuilder {
	refs := make([]Ref, len(events))
	for i, e := range events {
		refs[i] = e
	}
	b.h.on = refs
	return b
}

// OnWildcard listens to every event emitted in the run, subject to each
// event's excludeFromGlobalHooks flag.
func (b *HookBuilder) OnWildcard() *HookBuilder {
	b.h.wildcard = true
	return b
}

// Order controls firing order among listeners of the same event (lower
// first); ties break by registration order.
func (b *HookBuilder) Order(n int) *HookBuilder {
	b.h.order = n
	return b
}

func (b *HookBuilder) Dependencies(deps map[string]Dep) *HookBuilder {
	b.h.deps = StaticDeps(deps)
	return b
}

func (b *HookBuilder) DependenciesFunc(fn DepsSpec) *HookBuilder {
	b.h.deps = fn
	return b
}

func (b *HookBuilder) Tags(tags ...Ref) *HookBuilder {
	b.h.tags = tags
	return b
}

func (b *HookBuilder) Meta(m map[string]any) *HookBuilder {
	for k, v := range m {
		b.h.meta[k] = v
	}
	return b
}

func (b *HookBuilder) Run(fn HookRunFunc) *HookBuilder {
	b.h.runFn = fn
	return b
}

func (b *HookBuilder) Build() *Hook {
	if b.h.runFn == nil {
		panic(NewBuilderIncompleteError(KindHook, b.h.id, "run"))
	}
	if !b.h.wildcard && len(b.h.on) == 0 {
		panic(NewBuilderIncompleteError(KindHook, b.h.id, "on or wildcard"))
	}
	return b.h
}
