package extensions

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	core "github.com/coregraph/core"
)

func buildFailingGraph() (*core.Resource, error) {
	storage := core.NewResource("storage").
		Init(func(cfg any, deps map[string]any, rc *core.ResourceContext) (any, error) {
			return "storage", nil
		}).
		Build()

	failing := core.NewResource("userService").
		Dependencies(map[string]core.Dep{"storage": core.DependOn(storage)}).
		Init(func(cfg any, deps map[string]any, rc *core.ResourceContext) (any, error) {
			return nil, errors.New("type assertion failed: expected *User, got *string")
		}).
		Build()

	root := core.NewResource("root").
		RegisterStatic(storage, failing).
		Build()

	return root, nil
}

func TestGraphDebugExtension_ReportError(t *testing.T) {
	var buf bytes.Buffer
	handler := NewHumanHandler(&buf, slog.LevelError)
	ext := NewGraphDebugExtension(handler)

	root, _ := buildFailingGraph()
	_, err := core.Run(context.Background(), root, nil, core.WithExtension(ext))
	if err == nil {
		t.Fatal("expected error but got nil")
	}

	output := buf.String()
	if !strings.Contains(output, "dependency resolution error") {
		t.Error("expected 'dependency resolution error' header")
	}
	if !strings.Contains(output, "userService") {
		t.Error("expected failing resource id in output")
	}
}

func TestGraphDebugExtension_TracksResolvedAndFailed(t *testing.T) {
	ext := NewGraphDebugExtension(NewSilentHandler())
	root, _ := buildFailingGraph()

	_, err := core.Run(context.Background(), root, nil, core.WithExtension(ext))
	if err == nil {
		t.Fatal("expected error but got nil")
	}

	if !ext.resolved["storage"] {
		t.Error("expected storage to be tracked as resolved")
	}
	if _, failed := ext.failed["userService"]; !failed {
		t.Error("expected userService to be tracked as failed")
	}
}

func TestSilentHandler(t *testing.T) {
	handler := NewSilentHandler()

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected SilentHandler to be disabled for Debug level")
	}
	if handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected SilentHandler to be disabled for Error level")
	}
	if err := handler.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("expected Handle to return nil, got %v", err)
	}
	if handler.WithAttrs(nil) != handler {
		t.Error("expected WithAttrs to return self")
	}
	if handler.WithGroup("test") != handler {
		t.Error("expected WithGroup to return self")
	}
}

func TestHumanHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	handler := NewHumanHandler(&buf, slog.LevelInfo)
	if !handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler to be enabled at its configured level")
	}
	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected handler to be disabled below its configured level")
	}
}
