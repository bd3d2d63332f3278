package core

import (
	"context"
	"sort"
	"sync"
)

// ResourceScheduler decides which resources must be live before a run
// is considered started, and brings them up either one at a time or in
// dependency-respecting waves.
type ResourceScheduler struct{}

// CollectStartupRequired runs a fixed-point traversal:
// starting from roots plus the dependencies declared by every
// registered middleware, task and hook (all of which must be ready
// before the graph is otherwise usable), it follows each dependency —
// a resource target is added and its own deps recursed into; a tag
// target pulls in every resource carrying that tag plus every resource
// reachable through a tagged task/hook/middleware's own deps — and
// separately sweeps every resource for an explicit Dep().Startup(),
// which forces inclusion even off of a tag, a resource nobody above
// already reached.
func (ResourceScheduler) CollectStartupRequired(g *Graph, roots []string) []string {
	seen := map[string]bool{}
	var order []string
	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		order = append(order, id)
	}

	var visitResource func(id string)
	var visitDeps func(deps map[string]Dep)

	visitDeps = func(deps map[string]Dep) {
		for _, dep := range deps {
			switch dep.Target().Kind() {
			case KindResource:
				if _, ok := g.store.GetResource(dep.Target().ID()); ok {
					visitResource(dep.Target().ID())
				}
			case KindTag:
				visitTag(g, dep.Target().ID(), visitResource, visitDeps)
			}
		}
	}

	visitResource = func(id string) {
		if seen[id] {
			return
		}
		add(id)
		if r, ok := g.store.GetResource(id); ok {
			visitDeps(depsOf(r))
		}
	}

	for _, id := range roots {
		visitResource(id)
	}
	for _, id := range g.store.TaskOrder() {
		t, _ := g.store.GetTask(id)
		visitDeps(depsOf(t))
	}
	for _, id := range g.store.HookOrder() {
		h, _ := g.store.GetHook(id)
		visitDeps(depsOf(h))
	}
	for _, id := range g.store.TaskMiddlewareOrder() {
		m, _ := g.store.GetTaskMiddleware(id)
		visitDeps(depsOf(m))
	}
	for _, id := range g.store.ResourceMiddlewareOrder() {
		m, _ := g.store.GetResourceMiddleware(id)
		visitDeps(depsOf(m))
	}

	// Dep().Startup() forces inclusion regardless of whether the above
	// traversal would otherwise reach it, including off of a tag.
	for _, id := range g.store.ResourceOrder() {
		r, _ := g.store.GetResource(id)
		for _, dep := range depsOf(r) {
			if !dep.IsStartup() {
				continue
			}
			switch dep.Target().Kind() {
			case KindResource:
				if _, ok := g.store.GetResource(dep.Target().ID()); ok {
					visitResource(dep.Target().ID())
				}
			case KindTag:
				for _, tagged := range g.store.ResourcesWithTag(dep.Target().ID()) {
					visitResource(tagged.id)
				}
			}
		}
	}

	return order
}

// visitTag expands a tag dependency into every resource carrying it,
// plus every resource reachable through a tagged task's or hook's own
// dependencies reachable through tasks/hooks/middlewares that carry it.
func visitTag(g *Graph, tagID string, visitResource func(string), visitDeps func(map[string]Dep)) {
	for _, r := range g.store.ResourcesWithTag(tagID) {
		visitResource(r.id)
	}
	for _, id := range g.store.TaskOrder() {
		t, _ := g.store.GetTask(id)
		if !hasTag(t, tagID) {
			continue
		}
		visitDeps(depsOf(t))
	}
	for _, id := range g.store.HookOrder() {
		h, _ := g.store.GetHook(id)
		if !hasTag(h, tagID) {
			continue
		}
		visitDeps(depsOf(h))
	}
	for _, id := range g.store.TaskMiddlewareOrder() {
		m, _ := g.store.GetTaskMiddleware(id)
		if !hasTag(m, tagID) {
			continue
		}
		visitDeps(depsOf(m))
	}
	for _, id := range g.store.ResourceMiddlewareOrder() {
		m, _ := g.store.GetResourceMiddleware(id)
		if !hasTag(m, tagID) {
			continue
		}
		visitDeps(depsOf(m))
	}
}

func hasTag(d Definition, tagID string) bool {
	for _, ref := range d.Tags() {
		if ref.ID() == tagID {
			return true
		}
	}
	return false
}

// InitializeSequential brings up ids one at a time, in order, stopping
// at the first error (RunMode ModeSequential).
func (ResourceScheduler) InitializeSequential(ctx context.Context, g *Graph, ids []string) error {
	for _, id := range ids {
		if _, err := g.ExtractResource(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// InitializeParallel repeatedly computes the wave of ids whose
// dependencies are already initialized — a tag dependency is ready
// only once every resource carrying that tag has initialized — and
// brings up each wave with all-settled semantics before looping (spec
// §4.6(2)). A wave that comes up empty while ids remain pending means
// no further progress is possible; that raises
// ParallelInitSchedulingError naming what's left.
func (ResourceScheduler) InitializeParallel(ctx context.Context, g *Graph, ids []string) error {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}

	ready := func(id string) bool {
		r, ok := g.store.GetResource(id)
		if !ok {
			return true
		}
		for _, dep := range depsOf(r) {
			switch dep.Target().Kind() {
			case KindResource:
				if _, ok := g.store.GetResource(dep.Target().ID()); !ok {
					continue
				}
				if !g.isInitialized(dep.Target().ID()) {
					if dep.IsOptional() {
						continue
					}
					return false
				}
			case KindTag:
				for _, tagged := range g.store.ResourcesWithTag(dep.Target().ID()) {
					if tagged.id == id {
						continue
					}
					if !g.isInitialized(tagged.id) {
						if dep.IsOptional() {
							continue
						}
						return false
					}
				}
			}
		}
		return true
	}

	for len(pending) > 0 {
		wave := make([]string, 0, len(pending))
		for id := range pending {
			if ready(id) {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			remaining := make([]string, 0, len(pending))
			for id := range pending {
				remaining = append(remaining, id)
			}
			sort.Strings(remaining)
			return NewParallelInitSchedulingError(remaining)
		}
		sort.Strings(wave)

		var wg sync.WaitGroup
		var mu sync.Mutex
		errs := &Errors{}
		for _, id := range wave {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := g.ExtractResource(ctx, id); err != nil {
					mu.Lock()
					errs.Add(err)
					mu.Unlock()
				}
			}(id)
		}
		wg.Wait()
		if err := errs.Errors(); err != nil {
			return err
		}
		for _, id := range wave {
			delete(pending, id)
		}
	}
	return nil
}
