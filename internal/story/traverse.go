package story

// Traversal never recurses: every routine uses an explicit work-list and a
// visited set, so cyclic or very deep graphs cannot exhaust the stack.

type queued struct {
	id    string
	depth int
}

// Traverse returns the nodes reachable from root in breadth-first order,
// each exactly once. Choices are expanded in declaration order, so identical
// graphs always produce identical sequences. Targets missing from the graph
// are not visited. Nodes deeper than maxDepth are silently dropped; a
// non-positive maxDepth means DefaultMaxDepth.
//
// A root that is not part of the graph yields an empty sequence and
// ErrRootMissing.
func Traverse(g *Graph, root string, maxDepth int) ([]string, error) {
	if !g.Has(root) {
		return []string{}, ErrRootMissing
	}
	visited := make(map[string]bool, len(g.Nodes))
	return bfs(g, root, maxDepth, visited), nil
}

// Reachable returns from plus every node reachable from it, in traversal
// order. It is the node set a subtree operation applies to. The result is
// empty when from is not part of the graph.
func Reachable(g *Graph, from string, maxDepth int) []string {
	if !g.Has(from) {
		return nil
	}
	visited := make(map[string]bool, len(g.Nodes))
	return bfs(g, from, maxDepth, visited)
}

// OrphanRoots returns the nodes no choice points at, excluding the graph's
// root, in declaration order.
func OrphanRoots(g *Graph) []string {
	incoming := make(map[string]bool, len(g.Nodes))
	for _, id := range g.Order {
		for _, c := range g.Nodes[id].Choices {
			if g.Has(c.NextNode) {
				incoming[c.NextNode] = true
			}
		}
	}

	var orphans []string
	for _, id := range g.Order {
		if id != g.Root && !incoming[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans
}

// TraverseAll visits the root's component first, then each orphan root's
// component, sharing one visited set so every node appears at most once.
// Nodes only reachable through a cycle that no root leads into are absent.
func TraverseAll(g *Graph, maxDepth int) []string {
	visited := make(map[string]bool, len(g.Nodes))
	var out []string
	if g.Has(g.Root) {
		out = append(out, bfs(g, g.Root, maxDepth, visited)...)
	}
	for _, orphan := range OrphanRoots(g) {
		if visited[orphan] {
			continue
		}
		out = append(out, bfs(g, orphan, maxDepth, visited)...)
	}
	return out
}

// Unreachable returns the nodes TraverseAll does not visit, in declaration
// order.
func Unreachable(g *Graph, maxDepth int) []string {
	seen := make(map[string]bool, len(g.Nodes))
	for _, id := range TraverseAll(g, maxDepth) {
		seen[id] = true
	}
	var out []string
	for _, id := range g.Order {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func bfs(g *Graph, start string, maxDepth int, visited map[string]bool) []string {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	order := []string{}
	queue := []queued{{id: start}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		order = append(order, cur.id)

		if cur.depth >= maxDepth {
			continue
		}
		for _, c := range g.Nodes[cur.id].Choices {
			if c.NextNode == "" || visited[c.NextNode] || !g.Has(c.NextNode) {
				continue
			}
			queue = append(queue, queued{id: c.NextNode, depth: cur.depth + 1})
		}
	}
	return order
}
