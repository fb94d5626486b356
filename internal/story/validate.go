package story

import "fmt"

// Issue kinds reported by Validate.
const (
	IssueMissingRoot   = "missing-root"
	IssueDangling      = "dangling"
	IssueSelfReference = "self-reference"
	IssueCycle         = "cycle"
	IssueUnreachable   = "unreachable"
)

// Issue describes a structural oddity in a story graph. Issues are advisory:
// every one of them is tolerated by traversal and review.
type Issue struct {
	NodeID string `json:"node_id"`
	RefID  string `json:"ref_id,omitempty"`
	Kind   string `json:"kind"`
}

// String returns a human-readable description of the issue.
func (i Issue) String() string {
	switch i.Kind {
	case IssueMissingRoot:
		return fmt.Sprintf("%s: root node %q is not defined", i.Kind, i.NodeID)
	case IssueUnreachable:
		return fmt.Sprintf("%s: %s cannot be reached from the root", i.Kind, i.NodeID)
	default:
		return fmt.Sprintf("%s: %s has a choice leading to %s", i.Kind, i.NodeID, i.RefID)
	}
}

// Validate reports a missing root, dangling and self-referencing choices,
// cycles and nodes unreachable from the root. Results follow declaration
// order.
func Validate(g *Graph, maxDepth int) []Issue {
	var issues []Issue

	if !g.Has(g.Root) {
		issues = append(issues, Issue{NodeID: g.Root, Kind: IssueMissingRoot})
	}

	for _, id := range g.Order {
		for _, c := range g.Nodes[id].Choices {
			switch {
			case c.NextNode == id:
				issues = append(issues, Issue{NodeID: id, RefID: c.NextNode, Kind: IssueSelfReference})
			case !g.Has(c.NextNode):
				issues = append(issues, Issue{NodeID: id, RefID: c.NextNode, Kind: IssueDangling})
			}
		}
	}

	for _, edge := range backEdges(g) {
		issues = append(issues, Issue{NodeID: edge[0], RefID: edge[1], Kind: IssueCycle})
	}

	if g.Has(g.Root) {
		reached := make(map[string]bool, len(g.Nodes))
		order, _ := Traverse(g, g.Root, maxDepth)
		for _, id := range order {
			reached[id] = true
		}
		for _, id := range g.Order {
			if !reached[id] {
				issues = append(issues, Issue{NodeID: id, Kind: IssueUnreachable})
			}
		}
	}

	return issues
}

// backEdges finds choice edges that close a cycle, using an iterative
// depth-first search with white/gray/black colouring. Self-references are
// left to the caller.
func backEdges(g *Graph) [][2]string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.Nodes))
	var edges [][2]string

	type frame struct {
		id   string
		next int
	}

	for _, start := range g.Order {
		if color[start] != white {
			continue
		}
		color[start] = gray
		stack := []frame{{id: start}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			choices := g.Nodes[top.id].Choices
			if top.next >= len(choices) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			target := choices[top.next].NextNode
			top.next++

			if target == top.id || !g.Has(target) {
				continue
			}
			switch color[target] {
			case gray:
				edges = append(edges, [2]string{top.id, target})
			case white:
				color[target] = gray
				stack = append(stack, frame{id: target})
			}
		}
	}
	return edges
}
