package core

// Tag is a typed, attachable configuration marker: a Resource, Task,
// Hook, Event or Middleware can carry one in its Tags() list, and any
// definition can declare a Dep on one to query everything that carries
// it. Grounded in a Tag[T]/Get/MustGet/GetOrDefault style,
// generalized from "value on an executor" to "value carried by any
// Definition".
type Tag[T any] struct {
	id     string
	cfg    T
	hasCfg bool
}

// NewTag creates a bare tag, usable as a marker with no attached config.
func NewTag[T any](id string) *Tag[T] {
	return &Tag[T]{id: id}
}

func (t *Tag[T]) ID() string { return t.id }
func (t *Tag[T]) Kind() Kind { return KindTag }

// With returns a copy of t carrying cfg, meant to be placed directly in
// a definition's Tags() list.
func (t *Tag[T]) With(cfg T) *Tag[T] {
	return &Tag[T]{id: t.id, cfg: cfg, hasCfg: true}
}

// Dep builds a required dependency on this tag: the injected value is a
// TagQuery scoped to every definition carrying it.
func (t *Tag[T]) Dep() Dep { return DependOn(t) }

// Optional is shorthand for t.Dep().Optional().
func (t *Tag[T]) Optional() Dep { return t.Dep().Optional() }

// Startup is shorthand for t.Dep().Startup().
func (t *Tag[T]) Startup() Dep { return t.Dep().Startup() }

// Extract returns the config carried by t on target, if present.
func (t *Tag[T]) Extract(target Definition) (T, bool) {
	for _, ref := range target.Tags() {
		if ref.ID() != t.id {
			continue
		}
		if typed, ok := ref.(*Tag[T]); ok && typed.hasCfg {
			return typed.cfg, true
		}
	}
	var zero T
	return zero, false
}

// configAny erases T so a registry-scoped TagQuery, which only knows a
// tag by id, can still read the config a caller attached with With.
func (t *Tag[T]) configAny() (any, bool) {
	if !t.hasCfg {
		return nil, false
	}
	return t.cfg, true
}

// MustExtract is Extract or panic, for call sites that already verified
// Exists.
func (t *Tag[T]) MustExtract(target Definition) T {
	v, ok := t.Extract(target)
	if !ok {
		panic("tag " + t.id + " not carried by " + target.ID())
	}
	return v
}

// Exists reports whether target carries this tag at all, with or
// without config.
func (t *Tag[T]) Exists(target Definition) bool {
	for _, ref := range target.Tags() {
		if ref.ID() == t.id {
			return true
		}
	}
	return false
}

// systemTag marks built-in resources/middlewares (logger, event manager,
// ...) so everywhere-middleware resolution can keep system middleware
// away from user code and vice versa.
var systemTag = NewTag[bool]("core.system")

func isSystem(d Definition) bool {
	return systemTag.Exists(d)
}
