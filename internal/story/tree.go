package story

// DefaultMaxTreeNodes caps the size of a built tree. Shared descendants are
// repeated under every parent, so diamond-shaped graphs can otherwise grow
// exponentially with depth.
const DefaultMaxTreeNodes = 10000

// TreeNode is one occurrence of a node in the review tree. A node reachable
// through several parents appears once under each of them.
type TreeNode struct {
	ID       string
	Children []*TreeNode

	// Dangling marks a choice target missing from the graph.
	Dangling bool
	// Cycle marks a choice leading back to an ancestor; it is not expanded.
	Cycle bool
	// Truncated marks a node whose children were cut by a depth or size limit.
	Truncated bool

	parent *TreeNode
	depth  int
}

// hasAncestor reports whether id appears on the path from the tree root to n.
func (n *TreeNode) hasAncestor(id string) bool {
	for p := n; p != nil; p = p.parent {
		if p.ID == id {
			return true
		}
	}
	return false
}

// BuildForest returns the review tree: the root's tree first, then one tree
// per orphan root. Each path is cut when it would revisit an ancestor or
// exceed maxDepth; non-positive limits select the defaults.
func BuildForest(g *Graph, maxDepth, maxNodes int) []*TreeNode {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxNodes <= 0 {
		maxNodes = DefaultMaxTreeNodes
	}

	budget := maxNodes
	var forest []*TreeNode
	if g.Has(g.Root) {
		forest = append(forest, buildTree(g, g.Root, maxDepth, &budget))
	}
	for _, orphan := range OrphanRoots(g) {
		forest = append(forest, buildTree(g, orphan, maxDepth, &budget))
	}
	return forest
}

// buildTree expands depth-first with an explicit stack, children in
// declaration order.
func buildTree(g *Graph, rootID string, maxDepth int, budget *int) *TreeNode {
	root := &TreeNode{ID: rootID}
	*budget--
	stack := []*TreeNode{root}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node, ok := g.Node(cur.ID)
		if !ok {
			cur.Dangling = true
			continue
		}
		if len(node.Choices) == 0 {
			continue
		}
		if cur.depth >= maxDepth || *budget <= 0 {
			cur.Truncated = true
			continue
		}

		for _, c := range node.Choices {
			if c.NextNode == "" {
				continue
			}
			if *budget <= 0 {
				cur.Truncated = true
				break
			}
			child := &TreeNode{ID: c.NextNode, parent: cur, depth: cur.depth + 1}
			if cur.hasAncestor(c.NextNode) {
				child.Cycle = true
			}
			cur.Children = append(cur.Children, child)
			*budget--
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			if !cur.Children[i].Cycle {
				stack = append(stack, cur.Children[i])
			}
		}
	}
	return root
}

// Walk calls fn for every tree node in depth-first pre-order with its depth.
func Walk(forest []*TreeNode, fn func(n *TreeNode, depth int)) {
	type frame struct {
		n     *TreeNode
		depth int
	}
	stack := make([]frame, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, frame{n: forest[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(f.n, f.depth)
		for i := len(f.n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{n: f.n.Children[i], depth: f.depth + 1})
		}
	}
}
