package core

// DepKind mirrors the Kind of a Dep's target, exposed separately so
// callers inspecting a computed dependency map don't need to reach back
// into the original Ref.
type DepKind string

const (
	DepResource     DepKind = "resource"
	DepTask         DepKind = "task"
	DepEvent        DepKind = "event"
	DepTag          DepKind = "tag"
	DepError        DepKind = "error"
	DepAsyncContext DepKind = "asyncContext"
)

// Dep is one entry of a dependency map: a reference to a registrable
// target plus its optional/startup modifiers.
type Dep struct {
	target   Ref
	optional bool
	startup  bool
}

// DependOn builds a plain, required dependency on target.
func DependOn(target Ref) Dep {
	return Dep{target: target}
}

// Optional returns a copy of d whose missing-target resolution collapses
// to nil instead of a DependencyNotFoundError.
func (d Dep) Optional() Dep {
	d.optional = true
	return d
}

// Startup marks d as forcing its resource target into the startup wave
// during parallel initialization even if nothing else references it.
func (d Dep) Startup() Dep {
	d.startup = true
	return d
}

func (d Dep) Target() Ref      { return d.target }
func (d Dep) IsOptional() bool { return d.optional }
func (d Dep) IsStartup() bool  { return d.startup }

// DepsSpec is a dependency map, optionally derived from the holder's own
// config: "A dependency map may be an object or a function of the
// holder's config."
type DepsSpec func(config any) map[string]Dep

// StaticDeps wraps a literal dependency map as a DepsSpec ignoring config.
func StaticDeps(m map[string]Dep) DepsSpec {
	return func(any) map[string]Dep { return m }
}

func depKindOf(target Ref) DepKind {
	switch target.Kind() {
	case KindResource:
		return DepResource
	case KindTask:
		return DepTask
	case KindEvent:
		return DepEvent
	case KindTag:
		return DepTag
	case KindError:
		return DepError
	case KindAsyncContext:
		return DepAsyncContext
	default:
		return ""
	}
}
