package core

import (
	"context"
	"testing"
)

func TestEventManagerDispatchesInOrderThenSequence(t *testing.T) {
	em := NewEventManager(true)
	ev := NewEvent("ping").Build()

	var trace []string
	em.AddListener(ev.ID(), "second", 5, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		trace = append(trace, "second")
		return nil
	})
	em.AddListener(ev.ID(), "first", 1, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		trace = append(trace, "first")
		return nil
	})
	em.AddListener(ev.ID(), "third-same-order", 5, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		trace = append(trace, "third-same-order")
		return nil
	})

	if err := em.Emit(context.Background(), ev, "data", "emitter"); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	want := []string{"first", "second", "third-same-order"}
	if len(trace) != len(want) {
		t.Fatalf("expected %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, trace)
		}
	}
}

func TestEventManagerWildcardListenerReceivesEveryEvent(t *testing.T) {
	em := NewEventManager(true)
	evA := NewEvent("a").Build()
	evB := NewEvent("b").Build()

	var seen []string
	em.AddWildcardListener("watcher", 0, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		seen = append(seen, e.EventID)
		return nil
	})

	if err := em.Emit(context.Background(), evA, nil, "src"); err != nil {
		t.Fatalf("Emit a: %v", err)
	}
	if err := em.Emit(context.Background(), evB, nil, "src"); err != nil {
		t.Fatalf("Emit b: %v", err)
	}

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("expected wildcard to see [a b], got %v", seen)
	}
}

func TestEventManagerExcludeFromGlobalHooksSkipsWildcard(t *testing.T) {
	em := NewEventManager(true)
	private := NewEvent("private").ExcludeFromGlobalHooks().Build()

	called := false
	em.AddWildcardListener("watcher", 0, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		called = true
		return nil
	})

	if err := em.Emit(context.Background(), private, nil, "src"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if called {
		t.Error("expected wildcard listener to be excluded from a private event")
	}
}

func TestEventManagerSelfEmitGuardSkipsSource(t *testing.T) {
	em := NewEventManager(true)
	ev := NewEvent("loop").Build()

	called := false
	em.AddListener(ev.ID(), "emitter", 0, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		called = true
		return nil
	})

	if err := em.Emit(context.Background(), ev, nil, "emitter"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if called {
		t.Error("expected listener whose hookID equals source to be skipped")
	}
}

func TestEventManagerStopPropagationHaltsRemainingListeners(t *testing.T) {
	em := NewEventManager(true)
	ev := NewEvent("ping").Build()

	var trace []string
	em.AddListener(ev.ID(), "first", 1, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		trace = append(trace, "first")
		e.StopPropagation()
		return nil
	})
	em.AddListener(ev.ID(), "second", 2, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		trace = append(trace, "second")
		return nil
	})

	if err := em.Emit(context.Background(), ev, nil, "src"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(trace) != 1 || trace[0] != "first" {
		t.Errorf("expected only first listener to run, got %v", trace)
	}
}

func TestEventManagerDetectsReentrantCycle(t *testing.T) {
	em := NewEventManager(true)
	ev := NewEvent("recurse").Build()

	var reemitErr error
	em.AddListener(ev.ID(), "reemitter", 0, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		reemitErr = em.Emit(ctx, ev, nil, "other")
		return nil
	})

	if err := em.Emit(context.Background(), ev, nil, "src"); err != nil {
		t.Fatalf("outer Emit: %v", err)
	}
	if reemitErr == nil {
		t.Fatal("expected reentrant emission of the same event to be rejected as a cycle")
	}
}

func TestEventManagerInterceptHookWrapsInvocation(t *testing.T) {
	em := NewEventManager(true)
	ev := NewEvent("ping").Build()

	var trace []string
	em.InterceptHook(func(next HookInvoker, hook string, e *Emission) error {
		trace = append(trace, "before:"+hook)
		err := next(context.Background())
		trace = append(trace, "after:"+hook)
		return err
	})
	em.AddListener(ev.ID(), "listener", 0, nil, func(ctx context.Context, e *Emission, deps map[string]any) error {
		trace = append(trace, "run")
		return nil
	})

	if err := em.Emit(context.Background(), ev, nil, "src"); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	want := []string{"before:listener", "run", "after:listener"}
	if len(trace) != len(want) {
		t.Fatalf("expected %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, trace)
		}
	}
}
