package core

import (
	"context"

	"github.com/coregraph/core/pkg/schema"
)

// RunFunc is a task's business logic, innermost link of its middleware
// chain.
type RunFunc func(ctx context.Context, input any, deps map[string]any) (any, error)

// Task is a one-shot callable: stateless across invocations, resolved
// against the live resource graph each time it runs.
type Task struct {
	baseDef
	deps         DepsSpec
	middleware   []*TaskMiddleware
	throws       []*ErrorType
	inputSchema  schema.Schema
	resultSchema schema.Schema
	runFn        RunFunc

	computedDeps map[string]any
	depsComputed bool
}

func (t *Task) Kind() Kind { return KindTask }

type TaskBuilder struct {
	t *Task
}

func NewTask(id string) *TaskBuilder {
	return &TaskBuilder{t: &Task{baseDef: newBaseDef(id)}}
}

func (b *TaskBuilder) Dependencies(deps map[string]Dep) *TaskBuilder {
	b.t.deps = StaticDeps(deps)
	return b
}

func (b *TaskBuilder) DependenciesFunc(fn DepsSpec) *TaskBuilder {
	b.t.deps = fn
	return b
}

func (b *TaskBuilder) Middleware(mw ...*TaskMiddleware) *TaskBuilder {
	b.t.middleware = append(b.t.middleware, mw...)
	return b
}

func (b *TaskBuilder) Throws(types ...*ErrorType) *TaskBuilder {
	b.t.throws = append(b.t.throws, types...)
	return b
}

func (b *TaskBuilder) InputSchema(s schema.Schema) *TaskBuilder {
	b.t.inputSchema = s
	return b
}

func (b *TaskBuilder) ResultSchema(s schema.Schema) *TaskBuilder {
	b.t.resultSchema = s
	return b
}

func (b *TaskBuilder) Tags(tags ...Ref) *TaskBuilder {
	b.t.tags = tags
	return b
}

func (b *TaskBuilder) Meta(m map[string]any) *TaskBuilder {
	for k, v := range m {
		b.t.meta[k] = v
	}
	return b
}

func (b *TaskBuilder) Run(fn RunFunc) *TaskBuilder {
	b.t.runFn = fn
	return b
}

// Build returns the immutable Task. A task built with no Run panics
// with a BuilderIncompleteError, since a builder missing required
// behavior should fail fast. Use TryBuild for a recoverable variant.
func (b *TaskBuilder) Build() *Task {
	t, err := b.TryBuild()
	if err != nil {
		panic(err)
	}
	return t
}

func (b *TaskBuilder) TryBuild() (*Task, error) {
	if b.t.runFn == nil {
		return nil, NewBuilderIncompleteError(KindTask, b.t.id, "run")
	}
	return b.t, nil
}
