package core

// Kind tags every registrable definition. The store dispatches on Kind
// instead of relying on Go type identity, the same classified-by-kind
// rather than by-class-identity stance ErrKind takes for errors,
// extended here to definitions themselves.
type Kind string

const (
	KindResource           Kind = "resource"
	KindTask               Kind = "task"
	KindTaskMiddleware     Kind = "taskMiddleware"
	KindResourceMiddleware Kind = "resourceMiddleware"
	KindHook               Kind = "hook"
	KindEvent              Kind = "event"
	KindTag                Kind = "tag"
	KindError              Kind = "error"
	KindAsyncContext       Kind = "asyncContext"
)

// Ref is the minimal identity any registrable item, dependency target or
// carried tag must expose. Tag[T] implements it directly (it is not a
// Definition: it carries no dependencies of its own).
type Ref interface {
	ID() string
	Kind() Kind
}

// Definition is implemented by every Resource, Task, Hook, Event,
// TaskMiddleware, ResourceMiddleware and ErrorType. AsyncContext is a
// Ref only.
type Definition interface {
	Ref
	Tags() []Ref
	Meta() map[string]any
}

// baseDef is embedded by every concrete definition type for the common
// id/tags/meta bookkeeping; each type still supplies its own Kind().
type baseDef struct {
	id   string
	tags []Ref
	meta map[string]any
}

func (b *baseDef) ID() string          { return b.id }
func (b *baseDef) Tags() []Ref         { return b.tags }
func (b *baseDef) Meta() map[string]any { return b.meta }

func newBaseDef(id string) baseDef {
	return baseDef{id: id, meta: map[string]any{}}
}

// IsResource, IsTask, ... are exported structural predicates over a
// Ref's Kind, an alternative to type switches for callers.
func IsResource(d Ref) bool           { return d.Kind() == KindResource }
func IsTask(d Ref) bool               { return d.Kind() == KindTask }
func IsHook(d Ref) bool               { return d.Kind() == KindHook }
func IsEvent(d Ref) bool              { return d.Kind() == KindEvent }
func IsTaskMiddleware(d Ref) bool     { return d.Kind() == KindTaskMiddleware }
func IsResourceMiddleware(d Ref) bool { return d.Kind() == KindResourceMiddleware }
func IsTag(d Ref) bool                { return d.Kind() == KindTag }
func IsErrorType(d Ref) bool          { return d.Kind() == KindError }
func IsAsyncContext(d Ref) bool       { return d.Kind() == KindAsyncContext }

// sentinelRef is a bare Ref for well-known ids (middleware manager, ...)
// that don't need the full Definition surface.
type sentinelRef struct {
	id   string
	kind Kind
}

func (s sentinelRef) ID() string   { return s.id }
func (s sentinelRef) Kind() Kind   { return s.kind }
