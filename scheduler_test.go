package core

import (
	"context"
	"sync"
	"testing"
)

func TestCollectStartupRequiredIncludesRootsAndStartupDeps(t *testing.T) {
	eager := NewResource("eager").Build()
	lazy := NewResource("lazy").Build()
	consumer := NewResource("consumer").
		Dependencies(map[string]Dep{"e": DependOn(eager).Startup()}).
		Build()
	root := NewResource("root").RegisterStatic(eager, lazy, consumer).Build()
	g := newTestGraph(t, root, nil)

	var sched ResourceScheduler
	ids := sched.CollectStartupRequired(g, []string{"consumer"})

	want := map[string]bool{"consumer": true, "eager": true}
	got := map[string]bool{}
	for _, id := range ids {
		got[id] = true
	}
	for id := range want {
		if !got[id] {
			t.Errorf("expected %q in startup set, got %v", id, ids)
		}
	}
	if got["lazy"] {
		t.Errorf("did not expect lazy in startup set, got %v", ids)
	}
}

func TestInitializeSequentialStopsAtFirstError(t *testing.T) {
	var order []string
	ok1 := NewResource("ok1").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			order = append(order, "ok1")
			return "ok1", nil
		}).
		Build()
	bad := NewResource("bad").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			order = append(order, "bad")
			return nil, errFixture
		}).
		Build()
	ok2 := NewResource("ok2").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			order = append(order, "ok2")
			return "ok2", nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(ok1, bad, ok2).Build()
	g := newTestGraph(t, root, nil)

	var sched ResourceScheduler
	err := sched.InitializeSequential(context.Background(), g, []string{"ok1", "bad", "ok2"})
	if err == nil {
		t.Fatal("expected error from failing resource")
	}
	if len(order) != 2 || order[0] != "ok1" || order[1] != "bad" {
		t.Errorf("expected sequential init to stop after bad, got %v", order)
	}
}

func TestInitializeParallelAggregatesErrors(t *testing.T) {
	bad1 := NewResource("bad1").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return nil, errFixture }).
		Build()
	bad2 := NewResource("bad2").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return nil, errFixture }).
		Build()
	good := NewResource("good").
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) { return "good", nil }).
		Build()
	root := NewResource("root").RegisterStatic(bad1, bad2, good).Build()
	g := newTestGraph(t, root, nil)

	var sched ResourceScheduler
	err := sched.InitializeParallel(context.Background(), g, []string{"bad1", "bad2", "good"})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	agg, ok := err.(*AggregateInitError)
	if !ok {
		t.Fatalf("expected *AggregateInitError, got %T: %v", err, err)
	}
	if len(agg.Errors) != 2 {
		t.Errorf("expected 2 aggregated errors, got %d: %v", len(agg.Errors), agg.Errors)
	}
}

func TestInitializeParallelWithholdsTagConsumerUntilTaggedResourcesReady(t *testing.T) {
	readyTag := NewTag[bool]("ready.tag")
	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	dep := NewResource("dep").
		Tags(readyTag).
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			record("dep")
			return "d", nil
		}).
		Build()
	consumer := NewResource("consumer").
		Dependencies(map[string]Dep{"tagged": readyTag.Dep()}).
		Init(func(cfg any, deps map[string]any, rc *ResourceContext) (any, error) {
			record("consumer")
			return "c", nil
		}).
		Build()
	root := NewResource("root").RegisterStatic(dep, consumer).Build()
	g := newTestGraph(t, root, nil)

	var sched ResourceScheduler
	if err := sched.InitializeParallel(context.Background(), g, []string{"dep", "consumer"}); err != nil {
		t.Fatalf("InitializeParallel: %v", err)
	}

	if len(order) != 2 || order[0] != "dep" || order[1] != "consumer" {
		t.Errorf("expected consumer withheld until dep (tagged) is ready, got order %v", order)
	}
}

func TestInitializeParallelStalledWaveRaisesSchedulingError(t *testing.T) {
	// A tag-mediated deadlock the upfront resource-to-resource cycle
	// check can't see: consumer is only ready once every T-tagged
	// resource is ready, but blocker (tagged T) directly depends on
	// consumer, so neither can ever enter a wave.
	deadlockTag := NewTag[bool]("deadlock.tag")
	consumer := NewResource("consumer").
		Dependencies(map[string]Dep{"t": deadlockTag.Dep()}).
		Build()
	blocker := NewResource("blocker").
		Tags(deadlockTag).
		Dependencies(map[string]Dep{"c": DependOn(sentinelRef{"consumer", KindResource})}).
		Build()
	root := NewResource("root").RegisterStatic(consumer, blocker).Build()
	g := newTestGraph(t, root, nil)

	var sched ResourceScheduler
	err := sched.InitializeParallel(context.Background(), g, []string{"consumer", "blocker"})
	if err == nil {
		t.Fatal("expected a stalled wave to raise an error")
	}
	var coreErr *CoreError
	if ce, ok := err.(*CoreError); ok {
		coreErr = ce
	}
	if coreErr == nil || coreErr.ErrKind != ErrKindParallelInitScheduling {
		t.Errorf("expected ErrKindParallelInitScheduling, got %v", err)
	}
}

var errFixture = NewDependencyNotFoundError("fixture")
