// Package core implements the dependency-injection and execution runtime
// of a modular application framework.
//
// # Overview
//
// The graph is built from six kinds of definitions: Resources (long-lived
// singletons with init/dispose), Tasks (one-shot callables), Hooks
// (listeners bound to Events), Events (typed payload markers), Middlewares
// (task or resource interceptor chains) and Tags (typed, attachable
// configuration markers). A Store owns every registered definition; a
// Run assembles them into a live graph and returns a RunResult.
//
// # Basic usage
//
//	counter := core.NewResource("counter").
//		Init(func(cfg any, deps map[string]any, rc *core.ResourceContext) (any, error) {
//			return 0, nil
//		}).
//		Build()
//
//	double := core.NewTask("double").
//		Run(func(ctx context.Context, input any, deps map[string]any) (any, error) {
//			return input.(int) * 2, nil
//		}).
//		Build()
//
//	root := core.NewResource("root").
//		Register(func(cfg any) []core.Definition {
//			return []core.Definition{counter, double}
//		}).
//		Build()
//
//	result, err := core.Run(context.Background(), root, nil)
//	out, err := result.RunTask(context.Background(), "double", 5) // 10
package core
