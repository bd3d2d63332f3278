package core

import "context"

// DependencyProcessor runs once per Run, after every definition is
// registered and overrides are resolved: it validates the store,
// builds the static resource dependency graph and rejects cycles before
// any resource is initialized, then wires every Hook into the Event
// Manager — turning a registered tree into a runnable graph.
type DependencyProcessor struct{}

func (DependencyProcessor) Run(ctx context.Context, g *Graph) error {
	if err := (StoreValidator{}).Validate(g.store); err != nil {
		return err
	}

	for _, id := range g.store.ResourceOrder() {
		r, _ := g.store.GetResource(id)
		for _, dep := range depsOf(r) {
			if dep.Target().Kind() != KindResource {
				continue
			}
			g.depGraph.addEdge(r.id, dep.Target().ID())
		}
	}
	for _, id := range g.store.ResourceOrder() {
		if cycle := g.depGraph.detectCycle(id); cycle != nil {
			return NewCircularDependenciesError(cycle)
		}
	}

	for _, id := range g.store.HookOrder() {
		h, _ := g.store.GetHook(id)
		if err := g.attachHook(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// attachHook resolves h's static dependencies once and registers it
// with the Event Manager, either against every event it names or as a
// wildcard listener.
func (g *Graph) attachHook(ctx context.Context, h *Hook) error {
	deps, err := g.ExtractDeps(ctx, h.deps, nil, h.id)
	if err != nil {
		return err
	}
	if h.wildcard {
		g.events.AddWildcardListener(h.id, h.order, deps, h.runFn)
		return nil
	}
	if len(h.on) == 0 {
		return NewDependencyNotFoundError(h.id + ": hook has neither On() nor OnWildcard()")
	}
	for _, ev := range h.on {
		g.events.AddListener(ev.ID(), h.id, h.order, deps, h.runFn)
	}
	return nil
}
