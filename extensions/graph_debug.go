package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m1gwings/treedrawer/tree"

	core "github.com/coregraph/core"
)

// GraphDebugExtension logs the resource dependency graph when Run
// reports a failed resource init through ReportError, adapted from one-Executor-pointer-at-a-time tracking to id-keyed tracking
// over Graph.ExportDependencyGraph.
//
// Usage:
//
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext := extensions.NewGraphDebugExtension(handler)
type GraphDebugExtension struct {
	core.BaseExtension

	mu       sync.Mutex
	resolved map[string]bool
	failed   map[string]error
	logger   *slog.Logger
}

func NewGraphDebugExtension(logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension: core.BaseExtension{ExtName: "graph-debug"},
		resolved:      map[string]bool{},
		failed:        map[string]error{},
		logger:        slog.New(logHandler),
	}
}

func (e *GraphDebugExtension) OnEnd(op core.Operation) {
	if op.Kind != core.OpResourceInit {
		return
	}
	e.mu.Lock()
	if op.Err != nil {
		e.failed[op.ID] = op.Err
	} else {
		e.resolved[op.ID] = true
	}
	e.mu.Unlock()
}

// ReportError logs the current dependency graph around failedID,
// called by the orchestrator (or a caller) once Run returns an error.
func (e *GraphDebugExtension) ReportError(g *core.Graph, failedID string, failedErr error) {
	graphOutput := e.formatDependencyGraph(g, failedID, failedErr)
	e.logger.Error("dependency resolution error",
		"resource", failedID,
		"error", failedErr.Error(),
		"dependency_graph", graphOutput,
	)
}

func (e *GraphDebugExtension) tryFormatHorizontalTree(graph map[string][]string, failedID string) string {
	parents := make(map[string][]string)
	allNodes := make(map[string]bool)
	for parent, children := range graph {
		allNodes[parent] = true
		for _, child := range children {
			allNodes[child] = true
			parents[child] = append(parents[child], parent)
		}
	}

	var roots []string
	for node := range allNodes {
		if len(parents[node]) == 0 {
			roots = append(roots, node)
		}
	}
	sort.Strings(roots)
	if len(roots) == 0 {
		return ""
	}

	var rootNode *tree.Tree
	if len(roots) == 1 {
		rootNode = e.buildTree(roots[0], graph, failedID, map[string]bool{})
	} else {
		rootNode = tree.NewTree(tree.NodeString("dependencies"))
		for _, root := range roots {
			if childTree := e.buildTree(root, graph, failedID, map[string]bool{}); childTree != nil {
				e.addTreeAsChild(rootNode, childTree)
			}
		}
	}
	if rootNode == nil {
		return ""
	}
	return rootNode.String()
}

func (e *GraphDebugExtension) buildTree(id string, graph map[string][]string, failedID string, visited map[string]bool) *tree.Tree {
	if visited[id] {
		return nil
	}
	visited[id] = true

	label := id
	e.mu.Lock()
	switch {
	case id == failedID:
		label += " [FAILED]"
	case e.resolved[id]:
		label += " [ok]"
	}
	e.mu.Unlock()

	node := tree.NewTree(tree.NodeString(label))
	children := append([]string{}, graph[id]...)
	sort.Strings(children)
	for _, child := range children {
		if childTree := e.buildTree(child, graph, failedID, visited); childTree != nil {
			e.addTreeAsChild(node, childTree)
		}
	}
	return node
}

func (e *GraphDebugExtension) addTreeAsChild(parent *tree.Tree, child *tree.Tree) {
	newChild := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		e.addTreeAsChild(newChild, grandchild)
	}
}

func (e *GraphDebugExtension) formatDependencyGraph(g *core.Graph, failedID string, failedErr error) string {
	var sb strings.Builder
	graph := g.ExportDependencyGraph()

	if len(graph) == 0 {
		sb.WriteString("\n(empty - no static resource dependencies tracked)")
		return sb.String()
	}

	if horizontal := e.tryFormatHorizontalTree(graph, failedID); horizontal != "" {
		sb.WriteString("\n")
		sb.WriteString(horizontal)
		sb.WriteString("\n")
	}

	sb.WriteString("\ndetailed view:\n")
	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, parent := range names {
		children := append([]string{}, graph[parent]...)
		sort.Strings(children)

		status := ""
		if e.resolved[parent] {
			status = " [ok]"
		} else if _, failed := e.failed[parent]; failed {
			status = " [failed]"
		}

		if len(children) == 0 {
			sb.WriteString(fmt.Sprintf("  %s%s (no dependencies)\n", parent, status))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s%s\n", parent, status))
		for i, child := range children {
			label := child
			if child == failedID {
				label += " FAILED"
			} else if e.resolved[child] {
				label += " ok"
			} else if childErr, failed := e.failed[child]; failed {
				label = fmt.Sprintf("%s failed: %v", label, childErr)
			} else {
				label += " pending"
			}
			if i == len(children)-1 {
				sb.WriteString(fmt.Sprintf("    └─> %s\n", label))
			} else {
				sb.WriteString(fmt.Sprintf("    ├─> %s\n", label))
			}
		}
	}

	if failedErr != nil {
		sb.WriteString("\nerror details:\n")
		sb.WriteString(fmt.Sprintf("  resource: %s\n", failedID))
		sb.WriteString(fmt.Sprintf("  error: %v\n", failedErr))
	}
	return sb.String()
}

// SilentHandler discards everything, for tests that don't want log
// output.
type SilentHandler struct{}

func NewSilentHandler() *SilentHandler { return &SilentHandler{} }

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool { return false }
func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error { return nil }
func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler           { return h }
func (h *SilentHandler) WithGroup(name string) slog.Handler                { return h }

// HumanHandler formats graph-debug log records for a terminal instead
// of structured JSON.
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{writer: writer, level: level}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool { return level >= h.level }

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Message == "dependency resolution error" {
		return h.handleDependencyError(record)
	}
	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) handleDependencyError(record slog.Record) error {
	var resource, errMsg, graphOutput string
	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "resource":
			resource = a.Value.String()
		case "error":
			errMsg = a.Value.String()
		case "dependency_graph":
			graphOutput = a.Value.String()
		}
		return true
	})

	fmt.Fprintln(h.writer)
	fmt.Fprintln(h.writer, strings.Repeat("=", 70))
	fmt.Fprintln(h.writer, "[graph-debug] dependency resolution error")
	fmt.Fprintln(h.writer, strings.Repeat("=", 70))
	fmt.Fprintf(h.writer, "\nfailed resource: %s\n", resource)
	fmt.Fprintf(h.writer, "error: %s\n", errMsg)
	fmt.Fprintf(h.writer, "\ndependency graph:%s", graphOutput)
	fmt.Fprintln(h.writer, strings.Repeat("=", 70))
	fmt.Fprintln(h.writer)
	return nil
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *HumanHandler) WithGroup(name string) slog.Handler       { return h }
