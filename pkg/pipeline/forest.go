package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/bricklayers/pkg/brick"
)

// decisionColors are the node fills per decision.
var decisionColors = map[brick.Decision]string{
	brick.DecisionIneligible: "white",
	brick.DecisionParity:     "lightblue",
	brick.DecisionSkipped:    "lightsalmon",
	brick.DecisionRewritten:  "palegreen",
}

// ForestDOT returns a Graphviz DOT representation of the nesting forests of
// groups. Each group becomes a cluster; edges point from a loop to the loops
// nested directly inside it.
//
// Node labels show the feature, nesting depth, loop length and the engine's
// decision. Rewritten loops also show the new seam, skipped loops the reason.
func ForestDOT(groups []brick.GroupReport) string {
	var buf bytes.Buffer
	buf.WriteString("digraph Forest {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [fontname=\"SF Mono, Menlo, monospace\", fontsize=12, shape=box, style=\"filled,rounded\"];\n\n")

	for gi, g := range groups {
		fmt.Fprintf(&buf, "  subgraph cluster_%d {\n", gi)
		title := fmt.Sprintf("layer %d", g.Layer)
		if g.Object != "" {
			title = fmt.Sprintf("%s, object %s", title, g.Object)
		}
		fmt.Fprintf(&buf, "    label=%q;\n", fmt.Sprintf("%s (printed %d)", title, g.Printed))
		for _, l := range g.Loops {
			fmt.Fprintf(&buf, "    g%dl%d [label=%q, fillcolor=%s];\n", gi, l.Index, loopLabel(l), decisionColors[l.Decision])
		}
		for _, l := range g.Loops {
			if l.Parent >= 0 {
				fmt.Fprintf(&buf, "    g%dl%d -> g%dl%d;\n", gi, l.Parent, gi, l.Index)
			}
		}
		buf.WriteString("  }\n")
	}

	buf.WriteString("}\n")
	return buf.String()
}

func loopLabel(l brick.LoopReport) string {
	label := fmt.Sprintf("#%d %s\ndepth %d, %.1f mm\n%s", l.Index, l.Feature, l.Depth, l.Length, l.Decision)
	switch l.Decision {
	case brick.DecisionRewritten:
		label += fmt.Sprintf("\nseam %.2f,%.2f", l.Seam.X, l.Seam.Y)
	case brick.DecisionSkipped:
		label += "\n" + l.Reason
	}
	return label
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
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
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
