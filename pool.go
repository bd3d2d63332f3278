package core

import (
	"context"
	"sync"
)

// poolManager pools InvocationContext values (one per task run) instead
// of letting every invocation allocate fresh, adapted from a PoolManager
// pattern.
type poolManager struct {
	invocationCtxPool sync.Pool
	metrics           poolMetrics
}

type poolMetrics struct {
	mu                 sync.Mutex
	invocationCtxHits  uint64
	invocationCtxMisses uint64
}

func newPoolManager() *poolManager {
	return &poolManager{
		invocationCtxPool: sync.Pool{
			New: func() any {
				return &InvocationContext{data: make(map[any]any, 8)}
			},
		},
	}
}

func (pm *poolManager) acquireInvocationContext(id string, parent *InvocationContext, ctx context.Context) *InvocationContext {
	ic, ok := pm.invocationCtxPool.Get().(*InvocationContext)
	if ok {
		ic.id = id
		ic.parent = parent
		ic.ctx = ctx
		for k := range ic.data {
			delete(ic.data, k)
		}
		pm.metrics.mu.Lock()
		pm.metrics.invocationCtxHits++
		pm.metrics.mu.Unlock()
	} else {
		ic = &InvocationContext{id: id, parent: parent, ctx: ctx, data: make(map[any]any, 8)}
		pm.metrics.mu.Lock()
		pm.metrics.invocationCtxMisses++
		pm.metrics.mu.Unlock()
	}
	return ic
}

// releaseInvocationContext returns ic to the pool. Callers must not
// touch ic after this (its data map keeps its backing storage for the
// next acquirer, by design).
func (pm *poolManager) releaseInvocationContext(ic *InvocationContext) {
	if ic == nil {
		return
	}
	ic.id = ""
	ic.parent = nil
	ic.ctx = nil
	pm.invocationCtxPool.Put(ic)
}

func (pm *poolManager) Metrics() (hits, misses uint64) {
	pm.metrics.mu.Lock()
	defer pm.metrics.mu.Unlock()
	return pm.metrics.invocationCtxHits, pm.metrics.invocationCtxMisses
}
