package review

import (
	"context"
	"errors"

	"github.com/dfbr/choose-your-own-adventure-world/internal/content"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// SnapshotNode is a node with its text materialized.
type SnapshotNode struct {
	Content string         `json:"content"`
	Choices []story.Choice `json:"choices"`
	Image   string         `json:"image,omitempty"`
	// Missing marks a node whose text could not be read.
	Missing bool `json:"-"`
}

// Snapshot is a story with every node's current text, ready to publish.
type Snapshot struct {
	StoryID  string                  `json:"storyId"`
	Metadata story.Metadata          `json:"-"`
	Nodes    map[string]SnapshotNode `json:"nodes"`
	// Order lists node ids in declaration order.
	Order []string `json:"-"`
}

// PublishSnapshot re-reads the current text of every declared node. Approval
// state is not consulted. Missing text is published as empty and logged.
func (e *Engine) PublishSnapshot(ctx context.Context, g *story.Graph) (*Snapshot, error) {
	snap := &Snapshot{
		StoryID:  g.StoryID,
		Metadata: g.Metadata,
		Nodes:    make(map[string]SnapshotNode, g.Len()),
		Order:    append([]string(nil), g.Order...),
	}
	for _, id := range g.Order {
		n := g.Nodes[id]
		sn := SnapshotNode{
			Choices: append([]story.Choice{}, n.Choices...),
			Image:   n.Image,
		}
		data, err := e.texts.Read(ctx, g.StoryID, id)
		switch {
		case errors.Is(err, content.ErrContentMissing):
			sn.Missing = true
			e.logger.Warn("publishing node without text", "story", g.StoryID, "node", id)
		case err != nil:
			return nil, err
		default:
			sn.Content = string(data)
		}
		snap.Nodes[id] = sn
	}
	return snap, nil
}

// MissingNodes lists nodes published without text, in declaration order.
func (s *Snapshot) MissingNodes() []string {
	var out []string
	for _, id := range s.Order {
		if s.Nodes[id].Missing {
			out = append(out, id)
		}
	}
	return out
}
