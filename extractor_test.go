package core

import (
	"context"
	"log/slog"
	"io"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestGraph(t *testing.T, root *Resource, rootConfig any) *Graph {
	t.Helper()
	g := &Graph{
		store:      NewStore(),
		middleware: NewMiddlewareManager(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		pool:       newPoolManager(),
		invTree:    newInvocationTree(100),
		depGraph:   newDepGraph(),
		states:     map[string]*resourceState{},
		baseCtx:    context.Background(),
	}
	g.events = NewEventManager(true)
	g.runner = newTaskRunner(g)

	if err := g.store.computeRegistrationDeeply(root, rootConfig); err != nil {
		t.Fatalf("computeRegistrationDeeply: %v", err)
	}
	g.store.ProcessOverrides()
	g.store.Lock()
	return g
}

func TestExtractResourceInitializesOnce(t *testing.T) {
	var calls int32
	r := NewResource("counted").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			atomic.AddInt32(&calls, 1)
			return "value", nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(r).Build()
	g := newTestGraph(t, root, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.ExtractResource(context.Background(), "counted"); err != nil {
				t.Errorf("ExtractResource: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected init to run exactly once, ran %d times", got)
	}
}

func TestExtractResourceResolvesDependencies(t *testing.T) {
	dep := NewResource("dep").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return 42, nil }).
		Build()
	consumer := NewResource("consumer").
		Dependencies(map[string]Dep{"n": DependOn(dep)}).
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			return deps["n"].(int) * 2, nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(dep, consumer).Build()
	g := newTestGraph(t, root, nil)

	v, err := g.ExtractResource(context.Background(), "consumer")
	if err != nil {
		t.Fatalf("ExtractResource: %v", err)
	}
	if v.(int) != 84 {
		t.Errorf("expected 84, got %v", v)
	}
}

func TestExtractResourceMissingDependencyFails(t *testing.T) {
	missing := sentinelRef{"does.not.exist", KindResource}
	consumer := NewResource("consumer").
		Dependencies(map[string]Dep{"x": DependOn(missing)}).
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return nil, nil }).
		Build()
	root := NewResource("root").RegisterStatic(consumer).Build()
	g := newTestGraph(t, root, nil)

	_, err := g.ExtractResource(context.Background(), "consumer")
	if err == nil {
		t.Fatal("expected dependency not found error")
	}
}

func TestExtractResourceOptionalMissingDependencyYieldsNil(t *testing.T) {
	missing := sentinelRef{"does.not.exist", KindResource}
	consumer := NewResource("consumer").
		Dependencies(map[string]Dep{"x": DependOn(missing).Optional()}).
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			if deps["x"] != nil {
				t.Errorf("expected nil for missing optional dep, got %v", deps["x"])
			}
			return "ok", nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(consumer).Build()
	g := newTestGraph(t, root, nil)

	v, err := g.ExtractResource(context.Background(), "consumer")
	if err != nil {
		t.Fatalf("ExtractResource: %v", err)
	}
	if v != "ok" {
		t.Errorf("expected ok, got %v", v)
	}
}

func TestComposeResourceChainOrdersEverywhereOutsideLocal(t *testing.T) {
	// everywhere e1 = x*2, local m1 = x+100: spec requires
	// [everywhere] ∘ [local] ∘ [init], i.e. e1(m1(init(5))) = (5+100)*2 = 210,
	// not the inverse m1(e1(init(5))) = (5*2)+100 = 110.
	everywhere := NewResourceMiddleware("e1").
		EverywhereAll().
		Run(func(inv ResourceInvocation, next ResourceNext, deps map[string]any, config any) (any, error) {
			v, err := next(config)
			if err != nil {
				return nil, err
			}
			return v.(int) * 2, nil
		}).
		Build()
	local := NewResourceMiddleware("m1").
		Run(func(inv ResourceInvocation, next ResourceNext, deps map[string]any, config any) (any, error) {
			v, err := next(config)
			if err != nil {
				return nil, err
			}
			return v.(int) + 100, nil
		}).
		Build()

	r := NewResource("ordered").
		Middleware(local).
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			return 5, nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(everywhere, r).Build()
	g := newTestGraph(t, root, nil)

	v, err := g.ExtractResource(context.Background(), "ordered")
	if err != nil {
		t.Fatalf("ExtractResource: %v", err)
	}
	if v.(int) != 210 {
		t.Errorf("expected 210 from everywhere(local(init)), got %v", v)
	}
}

func TestComposeResourceChainAppliesMiddleware(t *testing.T) {
	var trace []string
	mw := NewResourceMiddleware("trace").
		EverywhereAll().
		Run(func(inv ResourceInvocation, next ResourceNext, deps map[string]any, config any) (any, error) {
			trace = append(trace, "before")
			v, err := next(config)
			trace = append(trace, "after")
			return v, err
		}).
		Build()

	r := NewResource("traced").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			trace = append(trace, "init")
			return "done", nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(mw, r).Build()
	g := newTestGraph(t, root, nil)

	if _, err := g.ExtractResource(context.Background(), "traced"); err != nil {
		t.Fatalf("ExtractResource: %v", err)
	}

	want := []string{"before", "init", "after"}
	if len(trace) != len(want) {
		t.Fatalf("expected trace %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("expected trace %v, got %v", want, trace)
		}
	}
}
