package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a typed payload marker; emitting one dispatches to every Hook
// listening on it plus every wildcard Hook, unless excludeFromGlobalHooks
// is set.
type Event struct {
	baseDef
	excludeFromGlobalHooks bool
}

func (e *Event) Kind() Kind                   { return KindEvent }
func (e *Event) ExcludesGlobalHooks() bool { return e.excludeFromGlobalHooks }

type EventBuilder struct {
	e *Event
}

func NewEvent(id string) *EventBuilder {
	return &EventBuilder{e: &Event{baseDef: newBaseDef(id)}}
}

func (b *EventBuilder) ExcludeFromGlobalHooks() *EventBuilder {
	b.e.excludeFromGlobalHooks = true
	return b
}

func (b *EventBuilder) Tags(tags ...Ref) *EventBuilder {
	b.e.tags = tags
	return b
}

func (b *EventBuilder) Meta(m map[string]any) *EventBuilder {
	for k, v := range m {
		b.e.meta[k] = v
	}
	return b
}

func (b *EventBuilder) Build() *Event {
	return b.e
}

// Emission is the live value a Hook receives: the event id, its
// payload, the source that triggered it, and a StopPropagation escape
// hatch for the remaining listeners in this dispatch.
type Emission struct {
	ID        string
	EventID   string
	Data      any
	Source    string
	Tags      []Ref
	Timestamp time.Time

	mu      sync.Mutex
	stopped bool
}

func (e *Emission) StopPropagation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
}

func (e *Emission) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// EventEmitterFunc is what a resource or task gets when it depends on
// an Event: a bound emit(ctx, data) callable, source already fixed to
// the dependency's owner id.
type EventEmitterFunc func(ctx context.Context, data any) error

type listenerEntry struct {
	hookID string
	order  int
	seq    int
	deps   map[string]any
	fn     HookRunFunc
}

// HookInvoker is the "next" link a hook interceptor wraps.
type HookInvoker func(ctx context.Context) error

// EventManager owns every registered listener and dispatches emissions
// in (order, registration) sequence, with a self-emit guard and
// reentrant-event cycle detection.
type EventManager struct {
	mu               sync.RWMutex
	listeners        map[string][]listenerEntry
	wildcard         []listenerEntry
	hookInterceptors []func(next HookInvoker, hook string, e *Emission) error
	seq              int
	cycleDetection   bool
}

type emissionChainKey struct{}

func NewEventManager(cycleDetection bool) *EventManager {
	return &EventManager{
		listeners:      map[string][]listenerEntry{},
		cycleDetection: cycleDetection,
	}
}

func (em *EventManager) AddListener(eventID, hookID string, order int, deps map[string]any, fn HookRunFunc) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.seq++
	em.listeners[eventID] = append(em.listeners[eventID], listenerEntry{hookID: hookID, order: order, seq: em.seq, deps: deps, fn: fn})
}

func (em *EventManager) AddWildcardListener(hookID string, order int, deps map[string]any, fn HookRunFunc) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.seq++
	em.wildcard = append(em.wildcard, listenerEntry{hookID: hookID, order: order, seq: em.seq, deps: deps, fn: fn})
}

func (em *EventManager) InterceptHook(fn func(next HookInvoker, hook string, e *Emission) error) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.hookInterceptors = append(em.hookInterceptors, fn)
}

// Emit dispatches ev to its direct listeners and every applicable
// wildcard listener, in (order, registration) sequence, skipping the
// listener whose hook id equals source (self-emit guard) and honoring
// Emission.StopPropagation.
func (em *EventManager) Emit(ctx context.Context, ev *Event, data any, source string) error {
	chain, _ := ctx.Value(emissionChainKey{}).([]string)
	if em.cycleDetection {
		for _, id := range chain {
			if id == ev.ID() {
				return NewEventCycleError(append(append([]string{}, chain...), ev.ID()))
			}
		}
	}
	nextChain := append(append([]string{}, chain...), ev.ID())
	dispatchCtx := context.WithValue(ctx, emissionChainKey{}, nextChain)

	emission := &Emission{
		ID:        uuid.NewString(),
		EventID:   ev.ID(),
		Data:      data,
		Source:    source,
		Tags:      ev.Tags(),
		Timestamp: time.Now(),
	}

	em.mu.RLock()
	direct := append([]listenerEntry{}, em.listeners[ev.ID()]...)
	var wild []listenerEntry
	if !ev.ExcludesGlobalHooks() {
		wild = append([]listenerEntry{}, em.wildcard...)
	}
	interceptors := append([]func(next HookInvoker, hook string, e *Emission) error{}, em.hookInterceptors...)
	em.mu.RUnlock()

	all := mergeListeners(direct, wild)

	for _, l := range all {
		if l.hookID == source {
			continue
		}
		if emission.isStopped() {
			break
		}
		if err := invokeListener(dispatchCtx, l, interceptors, emission); err != nil {
			return err
		}
	}
	return nil
}

func invokeListener(ctx context.Context, l listenerEntry, interceptors []func(next HookInvoker, hook string, e *Emission) error, emission *Emission) error {
	invoke := func(c context.Context) error { return l.fn(c, emission, l.deps) }
	for i := len(interceptors) - 1; i >= 0; i-- {
		cur := invoke
		ic := interceptors[i]
		hookID := l.hookID
		invoke = func(c context.Context) error { return ic(cur, hookID, emission) }
	}
	return invoke(ctx)
}

// mergeListeners stable-sorts direct+wildcard listeners by (order, seq).
func mergeListeners(direct, wild []listenerEntry) []listenerEntry {
	all := append(append([]listenerEntry{}, direct...), wild...)
	for i := 1; i < len(all); i++ {
		for j := i; j > 0; j-- {
			if less(all[j], all[j-1]) {
				all[j], all[j-1] = all[j-1], all[j]
			} else {
				break
			}
		}
	}
	return all
}

func less(a, b listenerEntry) bool {
	if a.order != b.order {
		return a.order < b.order
	}
	return a.seq < b.seq
}
