package core

import "sync"

// Store owns every registered definition for one run: nine id-keyed
// registries plus override bookkeeping and init order, matching spec
// §3's registry table exactly.
type Store struct {
	mu sync.RWMutex

	resources           map[string]*Resource
	tasks               map[string]*Task
	taskMiddlewares     map[string]*TaskMiddleware
	resourceMiddlewares map[string]*ResourceMiddleware
	hooks               map[string]*Hook
	events              map[string]*Event
	tags                map[string]Ref
	errorTypes          map[string]*ErrorType
	asyncContexts       map[string]Ref

	allIDs map[string]Kind

	resourceOrder           []string
	taskOrder               []string
	taskMiddlewareOrder     []string
	resourceMiddlewareOrder []string
	hookOrder               []string

	initOrder []string

	overrides *overrideManager
	locked    bool
}

func NewStore() *Store {
	return &Store{
		resources:           map[string]*Resource{},
		tasks:               map[string]*Task{},
		taskMiddlewares:     map[string]*TaskMiddleware{},
		resourceMiddlewares: map[string]*ResourceMiddleware{},
		hooks:               map[string]*Hook{},
		events:              map[string]*Event{},
		tags:                map[string]Ref{},
		errorTypes:          map[string]*ErrorType{},
		asyncContexts:       map[string]Ref{},
		allIDs:              map[string]Kind{},
		overrides:           newOverrideManager(),
	}
}

func (s *Store) checkUnique(id string, kind Kind) error {
	if s.locked {
		return NewStoreLockedError("register " + string(kind) + " " + id)
	}
	if existing, ok := s.allIDs[id]; ok {
		_ = existing
		return NewDuplicateRegistrationError(id)
	}
	return nil
}

func (s *Store) storeResource(r *Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(r.id, KindResource); err != nil {
		return err
	}
	s.resources[r.id] = r
	s.allIDs[r.id] = KindResource
	s.resourceOrder = append(s.resourceOrder, r.id)
	for _, target := range r.overrideTargets {
		s.overrides.request(target, r.id)
	}
	for _, mw := range r.middleware {
		if err := s.attachResourceMiddlewareLocked(mw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) storeTask(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(t.id, KindTask); err != nil {
		return err
	}
	s.tasks[t.id] = t
	s.allIDs[t.id] = KindTask
	s.taskOrder = append(s.taskOrder, t.id)
	for _, mw := range t.middleware {
		if err := s.attachTaskMiddlewareLocked(mw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) storeTaskMiddleware(m *TaskMiddleware) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachTaskMiddlewareLocked(m)
}

// attachTaskMiddlewareLocked is idempotent for the exact same pointer
// (a middleware shared across several tasks' local Middleware() lists),
// but still rejects a genuine id collision between two distinct
// definitions.
func (s *Store) attachTaskMiddlewareLocked(m *TaskMiddleware) error {
	if existing, ok := s.taskMiddlewares[m.id]; ok {
		if existing == m {
			return nil
		}
		return NewDuplicateRegistrationError(m.id)
	}
	if kind, ok := s.allIDs[m.id]; ok && kind != KindTaskMiddleware {
		return NewDuplicateRegistrationError(m.id)
	}
	if s.locked {
		return NewStoreLockedError("register taskMiddleware " + m.id)
	}
	s.taskMiddlewares[m.id] = m
	s.allIDs[m.id] = KindTaskMiddleware
	s.taskMiddlewareOrder = append(s.taskMiddlewareOrder, m.id)
	return nil
}

func (s *Store) storeResourceMiddleware(m *ResourceMiddleware) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachResourceMiddlewareLocked(m)
}

func (s *Store) attachResourceMiddlewareLocked(m *ResourceMiddleware) error {
	if existing, ok := s.resourceMiddlewares[m.id]; ok {
		if existing == m {
			return nil
		}
		return NewDuplicateRegistrationError(m.id)
	}
	if kind, ok := s.allIDs[m.id]; ok && kind != KindResourceMiddleware {
		return NewDuplicateRegistrationError(m.id)
	}
	if s.locked {
		return NewStoreLockedError("register resourceMiddleware " + m.id)
	}
	s.resourceMiddlewares[m.id] = m
	s.allIDs[m.id] = KindResourceMiddleware
	s.resourceMiddlewareOrder = append(s.resourceMiddlewareOrder, m.id)
	return nil
}

func (s *Store) storeHook(h *Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(h.id, KindHook); err != nil {
		return err
	}
	s.hooks[h.id] = h
	s.allIDs[h.id] = KindHook
	s.hookOrder = append(s.hookOrder, h.id)
	return nil
}

func (s *Store) storeEvent(e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(e.id, KindEvent); err != nil {
		return err
	}
	s.events[e.id] = e
	s.allIDs[e.id] = KindEvent
	return nil
}

func (s *Store) storeTag(t Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tags[t.ID()]; ok && existing != t {
		return NewDuplicateRegistrationError(t.ID())
	}
	s.tags[t.ID()] = t
	s.allIDs[t.ID()] = KindTag
	return nil
}

func (s *Store) storeErrorType(e *ErrorType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(e.id, KindError); err != nil {
		return err
	}
	s.errorTypes[e.id] = e
	s.allIDs[e.id] = KindError
	return nil
}

func (s *Store) storeAsyncContext(a Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.asyncContexts[a.ID()]; ok && existing != a {
		return NewDuplicateRegistrationError(a.ID())
	}
	s.asyncContexts[a.ID()] = a
	s.allIDs[a.ID()] = KindAsyncContext
	return nil
}

// storeGenericItem dispatches a heterogeneous child returned from
// Resource.register() to the matching typed writer.
func (s *Store) storeGenericItem(d Definition) error {
	switch d.Kind() {
	case KindResource:
		return s.storeResource(d.(*Resource))
	case KindTask:
		return s.storeTask(d.(*Task))
	case KindTaskMiddleware:
		return s.storeTaskMiddleware(d.(*TaskMiddleware))
	case KindResourceMiddleware:
		return s.storeResourceMiddleware(d.(*ResourceMiddleware))
	case KindHook:
		return s.storeHook(d.(*Hook))
	case KindEvent:
		return s.storeEvent(d.(*Event))
	case KindError:
		return s.storeErrorType(d.(*ErrorType))
	case KindTag:
		return s.storeTag(d.(Ref))
	case KindAsyncContext:
		return s.storeAsyncContext(d.(Ref))
	default:
		return NewUnknownItemTypeError(d)
	}
}

// computeRegistrationDeeply walks register() depth-first from root,
// storing every child (and its children) before storing the parent
// itself, so overrides and validation see the complete tree.
func (s *Store) computeRegistrationDeeply(root *Resource, rootConfig any) error {
	root.config = rootConfig

	var walk func(r *Resource) error
	walk = func(r *Resource) error {
		if r.registerFn == nil {
			return nil
		}
		for _, child := range r.registerFn(r.config) {
			if cr, ok := child.(*Resource); ok {
				if err := walk(cr); err != nil {
					return err
				}
			}
			if err := s.storeGenericItem(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return err
	}
	return s.storeResource(root)
}

func (s *Store) GetResource(id string) (*Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	return r, ok
}

func (s *Store) GetTask(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *Store) GetTaskMiddleware(id string) (*TaskMiddleware, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.taskMiddlewares[id]
	return m, ok
}

func (s *Store) GetResourceMiddleware(id string) (*ResourceMiddleware, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.resourceMiddlewares[id]
	return m, ok
}

func (s *Store) GetHook(id string) (*Hook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hooks[id]
	return h, ok
}

func (s *Store) GetEvent(id string) (*Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	return e, ok
}

func (s *Store) GetErrorType(id string) (*ErrorType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.errorTypes[id]
	return e, ok
}

func (s *Store) GetAsyncContext(id string) (Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.asyncContexts[id]
	return a, ok
}

func (s *Store) ResourceOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.resourceOrder...)
}

func (s *Store) TaskOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.taskOrder...)
}

func (s *Store) TaskMiddlewareOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.taskMiddlewareOrder...)
}

func (s *Store) ResourceMiddlewareOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.resourceMiddlewareOrder...)
}

func (s *Store) HookOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.hookOrder...)
}

func (s *Store) ResourcesWithTag(tagID string) []*Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Resource
	for _, id := range s.resourceOrder {
		r := s.resources[id]
		for _, t := range r.Tags() {
			if t.ID() == tagID {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (s *Store) TasksWithTag(tagID string) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Task
	for _, id := range s.taskOrder {
		t := s.tasks[id]
		for _, ref := range t.Tags() {
			if ref.ID() == tagID {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func (s *Store) DefinitionsWithTag(tagID string) []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Definition
	collect := func(d Definition) {
		for _, ref := range d.Tags() {
			if ref.ID() == tagID {
				out = append(out, d)
				return
			}
		}
	}
	for _, id := range s.resourceOrder {
		collect(s.resources[id])
	}
	for _, id := range s.taskOrder {
		collect(s.tasks[id])
	}
	for _, id := range s.hookOrder {
		collect(s.hooks[id])
	}
	return out
}

// GetEverywhereMiddlewareForTasks returns, in registration order, every
// global TaskMiddleware applicable to target. A system middleware never
// wraps non-system (user) code, except when both sides are system.
func (s *Store) GetEverywhereMiddlewareForTasks(target *Task) []*TaskMiddleware {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TaskMiddleware
	for _, id := range s.taskMiddlewareOrder {
		m := s.taskMiddlewares[id]
		if !m.Everywhere(target) {
			continue
		}
		if isSystem(m) && !isSystem(target) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *Store) GetEverywhereMiddlewareForResources(target *Resource) []*ResourceMiddleware {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ResourceMiddleware
	for _, id := range s.resourceMiddlewareOrder {
		m := s.resourceMiddlewares[id]
		if !m.Everywhere(target) {
			continue
		}
		if isSystem(m) && !isSystem(target) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *Store) ProcessOverrides() {
	s.overrides.process(s)
}

func (s *Store) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = true
}

func (s *Store) IsLocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}

func (s *Store) recordInitialized(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initOrder = append(s.initOrder, id)
}

func (s *Store) InitOrderSnapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.initOrder...)
}

// depsOf extracts a definition's static dependency map regardless of
// kind, using its own config for resources and nil for everything else
// (tasks, hooks and middlewares have no independent config concept in
// this runtime).
func depsOf(d Definition) map[string]Dep {
	switch v := d.(type) {
	case *Resource:
		if v.deps == nil {
			return nil
		}
		return v.deps(v.config)
	case *Task:
		if v.deps == nil {
			return nil
		}
		return v.deps(nil)
	case *Hook:
		if v.deps == nil {
			return nil
		}
		return v.deps(nil)
	case *TaskMiddleware:
		if v.deps == nil {
			return nil
		}
		return v.deps(nil)
	case *ResourceMiddleware:
		if v.deps == nil {
			return nil
		}
		return v.deps(nil)
	default:
		return nil
	}
}

// StoreValidator checks the cross-entity invariants that can't be
// enforced at the point a single definition is stored:
// duplicate tags on one holder, and a holder depending on a tag it also
// carries.
type StoreValidator struct{}

func (StoreValidator) Validate(s *Store) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	check := func(d Definition) error {
		seen := map[string]bool{}
		for _, t := range d.Tags() {
			if seen[t.ID()] {
				return NewDuplicateTagError(d.ID(), t.ID())
			}
			seen[t.ID()] = true
		}
		for _, dep := range depsOf(d) {
			if dep.Target().Kind() == KindTag && seen[dep.Target().ID()] {
				return NewSelfTagDependencyError(d.ID(), dep.Target().ID())
			}
		}
		return nil
	}

	for _, id := range s.resourceOrder {
		if err := check(s.resources[id]); err != nil {
			return err
		}
	}
	for _, id := range s.taskOrder {
		if err := check(s.tasks[id]); err != nil {
			return err
		}
	}
	for _, id := range s.hookOrder {
		if err := check(s.hooks[id]); err != nil {
			return err
		}
	}
	for _, id := range s.taskMiddlewareOrder {
		if err := check(s.taskMiddlewares[id]); err != nil {
			return err
		}
	}
	for _, id := range s.resourceMiddlewareOrder {
		if err := check(s.resourceMiddlewares[id]); err != nil {
			return err
		}
	}
	return nil
}
