package graph

// Descendants returns every requirement transitively reachable from id through
// child links, excluding id itself, in first-discovery order.
//
// Links are free-form text, so the child graph may contain cycles. Each node
// is expanded at most once; id is marked visited up front and therefore never
// re-enters its own result.
func (g *Graph) Descendants(id string) []string {
	var out []string
	g.walk(id, func(child string) {
		out = append(out, child)
	})
	if out == nil {
		return []string{}
	}
	return out
}

// InCycle reports whether id can reach itself through child links.
func (g *Graph) InCycle(id string) bool {
	found := false
	g.walkEdges(id, func(_, to string) bool {
		if to == id {
			found = true
			return false
		}
		return true
	})
	return found
}

func (g *Graph) walk(id string, visit func(string)) {
	visited := map[string]bool{id: true}
	g.walkEdges(id, func(_, to string) bool {
		if !visited[to] {
			visited[to] = true
			visit(to)
		}
		return true
	})
}

// walkEdges performs an iterative depth-first traversal from start and calls
// fn for every edge leaving an expanded node. Returning false stops the walk.
func (g *Graph) walkEdges(start string, fn func(from, to string) bool) {
	if _, ok := g.children[start]; !ok {
		return
	}
	expanded := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		kids := g.children[cur]
		for _, next := range kids {
			if !fn(cur, next) {
				return
			}
		}
		// Push in reverse so the first child is expanded first.
		for i := len(kids) - 1; i >= 0; i-- {
			next := kids[i]
			if expanded[next] {
				continue
			}
			expanded[next] = true
			stack = append(stack, next)
		}
	}
}
