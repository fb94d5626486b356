package review

import (
	"context"

	"github.com/dfbr/choose-your-own-adventure-world/internal/approval"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// Summary counts review progress over every node a manifest declares.
type Summary struct {
	Stories    int `json:"stories,omitempty"`
	Total      int `json:"total"`
	Unapproved int `json:"unapproved"`
	Stale      int `json:"stale"`
	Missing    int `json:"missing"`
}

// Add accumulates other into s.
func (s *Summary) Add(other Summary) {
	s.Stories += other.Stories
	s.Total += other.Total
	s.Unapproved += other.Unapproved
	s.Stale += other.Stale
	s.Missing += other.Missing
}

// Approved returns the number of approved nodes.
func (s Summary) Approved() int { return s.Total - s.Unapproved }

func statusOf(v approval.Verdict) Status {
	return Status{
		Approved:       v.Approved,
		Stale:          v.Found && v.Stale,
		Reviewed:       v.Found,
		ContentMissing: v.Current.IsAbsent(),
	}
}

// Peek reports a node's status without writing.
func (e *Engine) Peek(ctx context.Context, storyID, nodeID string) (Status, error) {
	v, err := e.approvals.Check(ctx, storyID, nodeID)
	if err != nil {
		return Status{}, err
	}
	return statusOf(v), nil
}

// Summary counts the story's nodes. It never writes.
func (e *Engine) Summary(ctx context.Context, g *story.Graph) (Summary, error) {
	sum := Summary{Stories: 1}
	for _, id := range g.Order {
		st, err := e.Peek(ctx, g.StoryID, id)
		if err != nil {
			return Summary{}, err
		}
		sum.Total++
		if !st.Approved {
			sum.Unapproved++
		}
		if st.Stale {
			sum.Stale++
		}
		if st.ContentMissing {
			sum.Missing++
		}
	}
	return sum, nil
}

// SummaryAll sums Summary across every story the loader lists. Stories that
// fail to load are logged and skipped.
func (e *Engine) SummaryAll(ctx context.Context) (Summary, error) {
	ids, err := e.loader.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	var total Summary
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		g, err := e.Open(ctx, id)
		if err != nil {
			e.logger.Warn("skipping story in summary", "story", id, "error", err)
			continue
		}
		sum, err := e.Summary(ctx, g)
		if err != nil {
			return Summary{}, err
		}
		total.Add(sum)
	}
	return total, nil
}

// Unapproved lists the declared nodes that are not approved for their
// current text, in declaration order. It never writes.
func (e *Engine) Unapproved(ctx context.Context, g *story.Graph) ([]string, error) {
	var out []string
	for _, id := range g.Order {
		st, err := e.Peek(ctx, g.StoryID, id)
		if err != nil {
			return nil, err
		}
		if !st.Approved {
			out = append(out, id)
		}
	}
	return out, nil
}
