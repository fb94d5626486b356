package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dfbr/choose-your-own-adventure-world/internal/content"
	"github.com/dfbr/choose-your-own-adventure-world/internal/ratelimit"
	"github.com/dfbr/choose-your-own-adventure-world/internal/review"
	"github.com/dfbr/choose-your-own-adventure-world/internal/sanitize"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// registerTools registers all review MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "review_order",
		Description: "List a story's nodes in breadth-first review order from its root",
	}, s.handleReviewOrder)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "review_node",
		Description: "Read a node's current text and choices for proofreading",
	}, s.handleReviewNode)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "review_status",
		Description: "Report whether nodes are approved for their current text, stale, rejected, unreviewed or missing text",
	}, s.handleReviewStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "review_accept",
		Description: "Approve a node's current text, optionally with every node reachable from it",
	}, s.handleReviewAccept)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "review_reject",
		Description: "Record a node's current text as not approved, optionally with every node reachable from it",
	}, s.handleReviewReject)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "review_summary",
		Description: "Count approved, unapproved, stale and textless nodes for one story or all stories",
	}, s.handleReviewSummary)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "review_validate",
		Description: "Check a story graph for a missing root, dangling choices, self-references, cycles and unreachable nodes",
	}, s.handleReviewValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "review_tree",
		Description: "Render a story as a tree labelled with review status",
	}, s.handleReviewTree)
}

func (s *Server) handleReviewOrder(ctx context.Context, req *sdk.CallToolRequest, args StoryInput) (_ *sdk.CallToolResult, _ ReviewOrderOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit("review_order", start, auditTarget{Story: args.Story}, retErr)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "review_order"); err != nil {
		return nil, ReviewOrderOutput{}, err
	}

	g, err := s.engine.Open(ctx, args.Story)
	if err != nil {
		return nil, ReviewOrderOutput{}, err
	}
	order := s.engine.SessionOrder(g)
	return nil, ReviewOrderOutput{Story: g.StoryID, Order: order, Count: len(order)}, nil
}

func (s *Server) handleReviewNode(ctx context.Context, req *sdk.CallToolRequest, args ReviewNodeInput) (_ *sdk.CallToolResult, _ ReviewNodeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit("review_node", start, auditTarget{Story: args.Story, Node: args.Node}, retErr)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "review_node"); err != nil {
		return nil, ReviewNodeOutput{}, err
	}

	g, err := s.engine.Open(ctx, args.Story)
	if err != nil {
		return nil, ReviewNodeOutput{}, err
	}
	node, ok := g.Node(args.Node)
	if !ok {
		return nil, ReviewNodeOutput{}, &story.NotFoundError{StoryID: g.StoryID, NodeID: args.Node}
	}

	out := ReviewNodeOutput{Story: g.StoryID, Node: args.Node, Ending: node.IsEnding()}
	text, err := s.engine.Text(ctx, g.StoryID, args.Node)
	switch {
	case errors.Is(err, content.ErrContentMissing):
		out.Missing = true
	case err != nil:
		return nil, ReviewNodeOutput{}, err
	default:
		out.Text = sanitize.Prompt(string(text))
	}
	for _, c := range node.Choices {
		out.Choices = append(out.Choices, NodeChoice{
			Text:     sanitize.Label(c.Text),
			Next:     c.NextNode,
			Dangling: !g.Has(c.NextNode),
		})
	}

	st, err := s.engine.Peek(ctx, g.StoryID, args.Node)
	if err != nil {
		return nil, ReviewNodeOutput{}, err
	}
	out.Label = st.Label()
	return nil, out, nil
}

func (s *Server) handleReviewStatus(ctx context.Context, req *sdk.CallToolRequest, args ReviewStatusInput) (_ *sdk.CallToolResult, _ ReviewStatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit("review_status", start, auditTarget{Story: args.Story, Node: args.Node}, retErr)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "review_status"); err != nil {
		return nil, ReviewStatusOutput{}, err
	}

	g, err := s.engine.Open(ctx, args.Story)
	if err != nil {
		return nil, ReviewStatusOutput{}, err
	}

	nodes := g.Order
	if args.Node != "" {
		if !g.Has(args.Node) {
			return nil, ReviewStatusOutput{}, &story.NotFoundError{StoryID: g.StoryID, NodeID: args.Node}
		}
		nodes = []string{args.Node}
	}

	out := ReviewStatusOutput{Story: g.StoryID}
	for _, id := range nodes {
		st, err := s.engine.Status(ctx, g.StoryID, id)
		if err != nil {
			return nil, ReviewStatusOutput{}, fmt.Errorf("status of %s: %w", id, err)
		}
		out.Nodes = append(out.Nodes, NodeStatus{
			Node:           id,
			Label:          st.Label(),
			Approved:       st.Approved,
			Stale:          st.Stale,
			Reviewed:       st.Reviewed,
			ContentMissing: st.ContentMissing,
		})
	}
	return nil, out, nil
}

func (s *Server) handleReviewAccept(ctx context.Context, req *sdk.CallToolRequest, args ReviewDecisionInput) (*sdk.CallToolResult, ReviewDecisionOutput, error) {
	return s.decide(ctx, "review_accept", args, true)
}

func (s *Server) handleReviewReject(ctx context.Context, req *sdk.CallToolRequest, args ReviewDecisionInput) (*sdk.CallToolResult, ReviewDecisionOutput, error) {
	return s.decide(ctx, "review_reject", args, false)
}

func (s *Server) decide(ctx context.Context, tool string, args ReviewDecisionInput, approved bool) (_ *sdk.CallToolResult, _ ReviewDecisionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit(tool, start, auditTarget{Story: args.Story, Node: args.Node, Subtree: args.Subtree}, retErr)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, tool); err != nil {
		return nil, ReviewDecisionOutput{}, err
	}
	if args.Node == "" {
		return nil, ReviewDecisionOutput{}, fmt.Errorf("node is required")
	}

	g, err := s.engine.Open(ctx, args.Story)
	if err != nil {
		return nil, ReviewDecisionOutput{}, err
	}

	var nodes []string
	switch {
	case args.Subtree && approved:
		nodes, err = s.engine.AcceptSubtree(ctx, g, args.Node)
	case args.Subtree:
		nodes, err = s.engine.RejectSubtree(ctx, g, args.Node)
	case !g.Has(args.Node):
		err = &story.NotFoundError{StoryID: g.StoryID, NodeID: args.Node}
	case approved:
		nodes, err = []string{args.Node}, s.engine.Accept(ctx, g.StoryID, args.Node)
	default:
		nodes, err = []string{args.Node}, s.engine.Reject(ctx, g.StoryID, args.Node)
	}
	if err != nil {
		return nil, ReviewDecisionOutput{}, err
	}

	verb := "Rejected"
	if approved {
		verb = "Accepted"
	}
	msg := fmt.Sprintf("%s %s", verb, args.Node)
	if len(nodes) > 1 {
		msg = fmt.Sprintf("%s %d nodes from %s", verb, len(nodes), args.Node)
	}

	return nil, ReviewDecisionOutput{
		Story:    g.StoryID,
		Nodes:    nodes,
		Count:    len(nodes),
		Approved: approved,
		Message:  msg,
	}, nil
}

func (s *Server) handleReviewSummary(ctx context.Context, req *sdk.CallToolRequest, args ReviewSummaryInput) (_ *sdk.CallToolResult, _ ReviewSummaryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit("review_summary", start, auditTarget{Story: args.Story}, retErr)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "review_summary"); err != nil {
		return nil, ReviewSummaryOutput{}, err
	}

	var (
		sum review.Summary
		err error
	)
	if args.Story != "" {
		var g *story.Graph
		if g, err = s.engine.Open(ctx, args.Story); err != nil {
			return nil, ReviewSummaryOutput{}, err
		}
		sum, err = s.engine.Summary(ctx, g)
	} else {
		sum, err = s.engine.SummaryAll(ctx)
	}
	if err != nil {
		return nil, ReviewSummaryOutput{}, err
	}

	return nil, ReviewSummaryOutput{
		Story:      args.Story,
		Stories:    sum.Stories,
		Total:      sum.Total,
		Approved:   sum.Approved(),
		Unapproved: sum.Unapproved,
		Stale:      sum.Stale,
		Missing:    sum.Missing,
		Message: fmt.Sprintf("%d of %d nodes approved (%d stale, %d missing text)",
			sum.Approved(), sum.Total, sum.Stale, sum.Missing),
	}, nil
}

func (s *Server) handleReviewValidate(ctx context.Context, req *sdk.CallToolRequest, args StoryInput) (_ *sdk.CallToolResult, _ ReviewValidateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit("review_validate", start, auditTarget{Story: args.Story}, retErr)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "review_validate"); err != nil {
		return nil, ReviewValidateOutput{}, err
	}

	g, err := s.engine.Open(ctx, args.Story)
	if err != nil {
		return nil, ReviewValidateOutput{}, err
	}

	issues := s.engine.Validate(g)
	out := ReviewValidateOutput{Story: g.StoryID, Count: len(issues)}
	counts := make(map[string]int)
	var kinds []string
	for _, issue := range issues {
		out.Issues = append(out.Issues, ValidationIssue{
			Kind:        issue.Kind,
			Node:        issue.NodeID,
			Ref:         issue.RefID,
			Description: issue.String(),
		})
		if counts[issue.Kind] == 0 {
			kinds = append(kinds, issue.Kind)
		}
		counts[issue.Kind]++
	}

	if len(issues) == 0 {
		out.Message = "Story graph is valid - no issues found"
	} else {
		parts := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			parts = append(parts, fmt.Sprintf("%d %s", counts[kind], kind))
		}
		out.Message = "Found " + strings.Join(parts, ", ")
	}
	return nil, out, nil
}

func (s *Server) handleReviewTree(ctx context.Context, req *sdk.CallToolRequest, args StoryInput) (_ *sdk.CallToolResult, _ ReviewTreeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.audit("review_tree", start, auditTarget{Story: args.Story}, retErr)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "review_tree"); err != nil {
		return nil, ReviewTreeOutput{}, err
	}

	g, err := s.engine.Open(ctx, args.Story)
	if err != nil {
		return nil, ReviewTreeOutput{}, err
	}
	forest, err := s.engine.Tree(ctx, g)
	if err != nil {
		return nil, ReviewTreeOutput{}, err
	}

	out := ReviewTreeOutput{Story: g.StoryID}
	review.WalkTree(forest, func(n *review.TreeNode, depth int) {
		out.Lines = append(out.Lines, TreeLine{
			Depth:     depth,
			Node:      n.ID,
			Label:     n.Label(),
			Dangling:  n.Dangling,
			Cycle:     n.Cycle,
			Truncated: n.Truncated,
		})
	})
	return nil, out, nil
}
