package core

import (
	"context"
	"testing"
)

func TestRunBringsUpStartupResourcesAndRunsTask(t *testing.T) {
	counted := NewResource("counted").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return 10, nil }).
		Build()
	double := NewTask("double").
		Dependencies(map[string]Dep{"n": DependOn(counted)}).
		Run(func(ctx context.Context, input any, deps map[string]any) (any, error) {
			return deps["n"].(int) * 2, nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(counted, double).Build()

	rr, err := Run(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, err := rr.RunTask(context.Background(), "double", nil)
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if out.(int) != 20 {
		t.Errorf("expected 20, got %v", out)
	}
}

func TestRunFailsWhenStartupResourceErrors(t *testing.T) {
	broken := NewResource("broken").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			return nil, NewDependencyNotFoundError("simulated failure")
		}).
		Build()
	root := NewResource("root").RegisterStatic(broken).Build()

	_, err := Run(context.Background(), root, nil)
	if err == nil {
		t.Fatal("expected Run to fail when a startup resource errors")
	}
}

func TestRunResultEmitEventDispatchesToHooks(t *testing.T) {
	ev := NewEvent("greeted").Build()
	var received any
	greetHook := NewHook("onGreet").
		On(ev).
		Run(func(ctx context.Context, e *Emission, deps map[string]any) error {
			received = e.Data
			return nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(ev, greetHook).Build()

	rr, err := Run(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := rr.EmitEvent(context.Background(), "greeted", "hello"); err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}
	if received != "hello" {
		t.Errorf("expected hook to receive %q, got %v", "hello", received)
	}
}

func TestRunResultGetResourceValueReusesStartupValue(t *testing.T) {
	calls := 0
	unreferenced := NewResource("unreferenced").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			calls++
			return "unreferenced-value", nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(unreferenced).Build()

	rr, err := Run(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected registered resource initialized once during Run, got %d calls", calls)
	}

	v, err := rr.GetResourceValue(context.Background(), "unreferenced")
	if err != nil {
		t.Fatalf("GetResourceValue: %v", err)
	}
	if v != "unreferenced-value" || calls != 1 {
		t.Errorf("expected unreferenced-value without a second init, got %v (calls=%d)", v, calls)
	}
}

func TestRunResultControllerReflectsCacheState(t *testing.T) {
	r := NewResource("cached").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return "v", nil }).
		Build()
	root := NewResource("root").RegisterStatic(r).Build()

	rr, err := Run(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ctrl := rr.Controller("cached")
	if !ctrl.IsCached() {
		t.Fatal("expected resource cached once Run returns")
	}
	v, err := ctrl.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "v" {
		t.Errorf("expected cached value %q from Get, got %v", "v", v)
	}
}

func TestRunResultDisposeRunsInReverseInitOrderAndCleanups(t *testing.T) {
	var disposeOrder []string
	var cleanupRan bool

	base := NewResource("base").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			rc.OnCleanup(func() error {
				cleanupRan = true
				return nil
			})
			return "base", nil
		}).
		Dispose(func(value, cfg any, deps map[string]any, rc *ResourceContext) error {
			disposeOrder = append(disposeOrder, "base")
			return nil
		}).
		Build()
	dependent := NewResource("dependent").
		Dependencies(map[string]Dep{"b": DependOn(base)}).
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return "dependent", nil }).
		Dispose(func(value, cfg any, deps map[string]any, rc *ResourceContext) error {
			disposeOrder = append(disposeOrder, "dependent")
			return nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(base, dependent).Build()

	rr, err := Run(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := rr.GetResourceValue(context.Background(), "dependent"); err != nil {
		t.Fatalf("GetResourceValue: %v", err)
	}

	if err := rr.Dispose(context.Background()); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	if len(disposeOrder) != 2 || disposeOrder[0] != "dependent" || disposeOrder[1] != "base" {
		t.Errorf("expected dispose in reverse init order [dependent base], got %v", disposeOrder)
	}
	if !cleanupRan {
		t.Error("expected OnCleanup callback to run during Dispose")
	}
}
