package review

import (
	"context"

	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// TreeNode is one entry of the review tree, labelled with its status.
type TreeNode struct {
	ID        string      `json:"id"`
	Status    Status      `json:"status"`
	Dangling  bool        `json:"dangling,omitempty"`
	Cycle     bool        `json:"cycle,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
	Children  []*TreeNode `json:"children,omitempty"`
}

// Tree returns the story as a forest: the root's subtree first, then one
// subtree per orphan root. Paths stop where they would revisit an ancestor.
// It is recomputed on every call and never writes.
func (e *Engine) Tree(ctx context.Context, g *story.Graph) ([]*TreeNode, error) {
	forest := story.BuildForest(g, e.maxDepth, 0)

	statuses := make(map[string]Status, g.Len())
	convert := func(n *story.TreeNode) (*TreeNode, error) {
		out := &TreeNode{ID: n.ID, Dangling: n.Dangling, Cycle: n.Cycle, Truncated: n.Truncated}
		if !n.Dangling {
			st, ok := statuses[n.ID]
			if !ok {
				var err error
				if st, err = e.Peek(ctx, g.StoryID, n.ID); err != nil {
					return nil, err
				}
				statuses[n.ID] = st
			}
			out.Status = st
		}
		return out, nil
	}

	// Mirror the forest iteratively, parent before children.
	type pair struct {
		src *story.TreeNode
		dst *TreeNode
	}
	out := make([]*TreeNode, 0, len(forest))
	var stack []pair
	for _, root := range forest {
		dst, err := convert(root)
		if err != nil {
			return nil, err
		}
		out = append(out, dst)
		stack = append(stack, pair{root, dst})
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range p.src.Children {
			dst, err := convert(child)
			if err != nil {
				return nil, err
			}
			p.dst.Children = append(p.dst.Children, dst)
			stack = append(stack, pair{child, dst})
		}
	}
	return out, nil
}

// Label is the node's status label, or "dangling" for a choice target the
// story does not define.
func (n *TreeNode) Label() string {
	if n.Dangling {
		return "dangling"
	}
	return n.Status.Label()
}

// WalkTree calls fn for every node of forest in depth-first pre-order.
func WalkTree(forest []*TreeNode, fn func(n *TreeNode, depth int)) {
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
