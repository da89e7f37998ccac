package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/jmarlow/cookery/pkg/resolve"
)

// ToDOT converts a resolved dependency graph to Graphviz DOT. Build-time
// edges are solid since they drive ordering; runtime edges are dashed.
// The root gets a highlighted fill.
func ToDOT(g *resolve.Graph) string {
	var buf bytes.Buffer
	buf.WriteString("digraph cookery {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for _, n := range g.SortedNodes() {
		attrs := []string{fmt.Sprintf("label=%q", nodeLabel(n))}
		if n.ID == g.Root {
			attrs = append(attrs, "fillcolor=lightblue")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID.String(), strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, n := range g.SortedNodes() {
		for _, dep := range n.BuildRequires {
			fmt.Fprintf(&buf, "  %q -> %q;\n", n.ID.String(), dep.String())
		}
		for _, dep := range n.Requires {
			fmt.Fprintf(&buf, "  %q -> %q [style=dashed];\n", n.ID.String(), dep.String())
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeLabel(n *resolve.Node) string {
	label := n.ID.Name + "\n" + n.ID.Version
	if n.ID.Variant != "" {
		label += "\n" + n.ID.Variant
	}
	return label
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	return render(ctx, dot, graphviz.SVG)
}

// RenderPNG renders a DOT graph to PNG using Graphviz.
func RenderPNG(ctx context.Context, dot string) ([]byte, error) {
	return render(ctx, dot, graphviz.PNG)
}

func render(ctx context.Context, dot string, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
