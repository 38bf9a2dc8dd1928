package generator

import (
	"fmt"
	"strings"

	"doorslight/internal/graph"
)

const maxDiagramNodes = 60

// MermaidGenerator creates trace diagrams from a built graph.
type MermaidGenerator struct {
	maxNodes int
}

func NewMermaidGenerator() *MermaidGenerator {
	return &MermaidGenerator{maxNodes: maxDiagramNodes}
}

// GenerateTraceTree draws id and its descendants as a top-down flowchart.
// Edges back to an already drawn node are kept, so cycles stay visible.
// truncated reports whether the node cap cut the tree short. Returns "" when
// id has no children.
func (m *MermaidGenerator) GenerateTraceTree(g *graph.Graph, id string) (diagram string, truncated bool) {
	if len(g.Children(id)) == 0 {
		return "", false
	}
	limit := m.maxNodes
	if limit <= 0 {
		limit = maxDiagramNodes
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString("    classDef root stroke-width:3px\n")

	nodes := map[string]string{}
	order := []string{}
	nodeID := func(req string) (string, bool) {
		if n, ok := nodes[req]; ok {
			return n, true
		}
		if len(order) >= limit {
			return "", false
		}
		n := fmt.Sprintf("n%d", len(order))
		nodes[req] = n
		order = append(order, req)
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", n, diagramLabel(g, req)))
		return n, true
	}

	root, _ := nodeID(id)
	queue := []string{id}
	expanded := map[string]bool{id: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		from := nodes[cur]
		for _, child := range g.Children(cur) {
			to, ok := nodeID(child)
			if !ok {
				truncated = true
				continue
			}
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
			if !expanded[child] {
				expanded[child] = true
				queue = append(queue, child)
			}
		}
	}

	sb.WriteString(fmt.Sprintf("    class %s root\n", root))
	if truncated {
		sb.WriteString(fmt.Sprintf("    more[\"... more than %d requirements\"]\n", limit))
		sb.WriteString(fmt.Sprintf("    %s -.- more\n", root))
	}
	return sb.String(), truncated
}

func diagramLabel(g *graph.Graph, id string) string {
	label := id
	if r, ok := g.Requirement(id); ok && strings.TrimSpace(r.Heading) != "" {
		label = id + ": " + Truncate(r.Heading, 40)
	}
	// Labels are written verbatim between double quotes: Mermaid has no
	// backslash escapes, and a double quote or line break would end the label.
	label = strings.Join(strings.Fields(label), " ")
	return strings.ReplaceAll(label, `"`, "'")
}
