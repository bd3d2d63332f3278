package core

import (
	"github.com/coregraph/core/pkg/schema"
)

// InitFunc builds a resource's live value from its resolved config,
// computed dependencies and a fresh ResourceContext.
type InitFunc func(config any, deps map[string]any, rc *ResourceContext) (any, error)

// DisposeFunc tears a resource's value back down at Run.Dispose time.
type DisposeFunc func(value any, config any, deps map[string]any, rc *ResourceContext) error

// RegisterFunc returns the (possibly empty) list of further
// definitions a resource contributes to the store once its config is
// known.
type RegisterFunc func(config any) []Definition

// ContextFunc seeds a resource's ResourceContext scratch space.
type ContextFunc func(config any) map[string]any

// Resource is a long-lived singleton: initialized at most once per run,
// in dependency order, and disposed in reverse order.
type Resource struct {
	baseDef
	config       any
	deps         DepsSpec
	middleware   []*ResourceMiddleware
	configSchema schema.Schema
	initFn       InitFunc
	disposeFn    DisposeFunc
	registerFn   RegisterFunc
	contextFn    ContextFunc
	overrideTargets []string

	computedDeps map[string]any
	depsComputed bool
}

func (r *Resource) Kind() Kind { return KindResource }

// ResourceBuilder assembles a Resource through method chaining, ending
// in Build().
type ResourceBuilder struct {
	r *Resource
}

func NewResource(id string) *ResourceBuilder {
	return &ResourceBuilder{r: &Resource{baseDef: newBaseDef(id)}}
}

func (b *ResourceBuilder) Config(cfg any) *ResourceBuilder {
	b.r.config = cfg
	return b
}

func (b *ResourceBuilder) Dependencies(deps map[string]Dep) *ResourceBuilder {
	b.r.deps = StaticDeps(deps)
	return b
}

func (b *ResourceBuilder) DependenciesFunc(fn DepsSpec) *ResourceBuilder {
	b.r.deps = fn
	return b
}

func (b *ResourceBuilder) Middleware(mw ...*ResourceMiddleware) *ResourceBuilder {
	b.r.middleware = append(b.r.middleware, mw...)
	return b
}

func (b *ResourceBuilder) ConfigSchema(s schema.Schema) *ResourceBuilder {
	b.r.configSchema = s
	return b
}

func (b *ResourceBuilder) Tags(tags ...Ref) *ResourceBuilder {
	b.r.tags = tags
	return b
}

func (b *ResourceBuilder) Meta(m map[string]any) *ResourceBuilder {
	for k, v := range m {
		b.r.meta[k] = v
	}
	return b
}

func (b *ResourceBuilder) Init(fn InitFunc) *ResourceBuilder {
	b.r.initFn = fn
	return b
}

func (b *ResourceBuilder) Dispose(fn DisposeFunc) *ResourceBuilder {
	b.r.disposeFn = fn
	return b
}

func (b *ResourceBuilder) Context(fn ContextFunc) *ResourceBuilder {
	b.r.contextFn = fn
	return b
}

func (b *ResourceBuilder) Register(fn RegisterFunc) *ResourceBuilder {
	b.r.registerFn = fn
	return b
}

// Overrides declares that this resource replaces each of targets
// wherever they are depended upon, resolved by the Override Manager as
// a cycle-tolerant fixed point.
func (b *ResourceBuilder) Overrides(targets ...*Resource) *ResourceBuilder {
	for _, t := range targets {
		b.r.overrideTargets = append(b.r.overrideTargets, t.id)
	}
	return b
}

// RegisterStatic is shorthand for Register returning a fixed list.
func (b *ResourceBuilder) RegisterStatic(defs ...Definition) *ResourceBuilder {
	return b.Register(func(any) []Definition { return defs })
}

// Build returns the immutable Resource. A resource with no init() still
// builds (it resolves to nil), matching "a resource is only required to
// register; init is optional for pure aggregator resources."
func (b *ResourceBuilder) Build() *Resource {
	return b.r
}
