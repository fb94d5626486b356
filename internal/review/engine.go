// Package review orchestrates a proofreading session: it walks a story graph
// in review order, answers whether each node is approved for its current
// text, and records accept and reject decisions for single nodes, subtrees
// and whole stories.
package review

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dfbr/choose-your-own-adventure-world/internal/approval"
	"github.com/dfbr/choose-your-own-adventure-world/internal/content"
	"github.com/dfbr/choose-your-own-adventure-world/internal/fingerprint"
	"github.com/dfbr/choose-your-own-adventure-world/internal/logging"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// Loader resolves story ids to graphs.
type Loader interface {
	Load(ctx context.Context, storyID string) (*story.Graph, error)
	List(ctx context.Context) ([]string, error)
}

// Engine answers review queries for stories loaded through a Loader, with
// node text from a content store and decisions kept in an approval store.
type Engine struct {
	loader    Loader
	texts     content.Store
	fp        *fingerprint.Engine
	approvals *approval.Store

	maxDepth  int
	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth bounds traversals; non-positive values select
// story.DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) { e.maxDepth = depth }
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "review") }
}

// WithDecisionLogger records every accept and reject.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(e *Engine) { e.decisions = dl }
}

// New creates an engine. The approval store should fingerprint through the
// same content store as texts.
func New(loader Loader, texts content.Store, approvals *approval.Store, opts ...Option) *Engine {
	e := &Engine{
		loader:    loader,
		texts:     texts,
		fp:        fingerprint.NewEngine(texts),
		approvals: approvals,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if l, ok := texts.(content.Locating); ok {
		l.SetLocator(e.textRefs)
	}
	return e
}

// textRefs loads a story's manifest for its text locators, so approvals of
// stories nobody has opened yet still fingerprint the right files.
func (e *Engine) textRefs(ctx context.Context, storyID string) (map[string]string, error) {
	g, err := e.loader.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return g.TextRefs(), nil
}

// Approvals returns the underlying approval store.
func (e *Engine) Approvals() *approval.Store { return e.approvals }

// Open loads a story and registers its text locators with the content store.
func (e *Engine) Open(ctx context.Context, storyID string) (*story.Graph, error) {
	g, err := e.loader.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if b, ok := e.texts.(content.Binder); ok {
		b.Bind(storyID, g.TextRefs())
	}
	e.logger.Debug("story opened", "story", storyID, "nodes", g.Len())
	return g, nil
}

// Stories lists the stories available to the loader.
func (e *Engine) Stories(ctx context.Context) ([]string, error) {
	return e.loader.List(ctx)
}

// SessionOrder is the breadth-first review order from the story root. A
// story whose root is missing yields an empty order.
func (e *Engine) SessionOrder(g *story.Graph) []string {
	order, err := story.Traverse(g, g.Root, e.maxDepth)
	if errors.Is(err, story.ErrRootMissing) {
		e.logger.Warn("story has no root node", "story", g.StoryID, "root", g.Root)
	}
	return order
}

// Text returns a node's current text. Missing text fails with
// content.ErrContentMissing.
func (e *Engine) Text(ctx context.Context, storyID, nodeID string) ([]byte, error) {
	return e.texts.Read(ctx, storyID, nodeID)
}

// Validate reports structural issues in g using the engine's depth bound.
func (e *Engine) Validate(g *story.Graph) []story.Issue {
	return story.Validate(g, e.maxDepth)
}

// Status is the review state of one node.
type Status struct {
	// Approved is true only when the node was approved for its current text.
	Approved bool `json:"approved"`
	// Stale is true when the stored fingerprint differs from current text,
	// whatever the stored decision.
	Stale bool `json:"stale"`
	// Reviewed is true when any decision is on record.
	Reviewed bool `json:"reviewed"`
	// ContentMissing is true when the node has no text.
	ContentMissing bool `json:"content_missing"`
}

// Label names the status for display.
func (s Status) Label() string {
	switch {
	case s.ContentMissing:
		return "missing"
	case s.Approved:
		return "approved"
	case s.Stale:
		return "stale"
	case s.Reviewed:
		return "rejected"
	default:
		return "unreviewed"
	}
}

// Status reports a node's review state. May write: a legacy entry is bound
// and a stale approval is demoted and persisted, as by
// approval.Store.EffectiveApproval. Staleness is measured before demotion.
func (e *Engine) Status(ctx context.Context, storyID, nodeID string) (Status, error) {
	current, err := e.fp.Fingerprint(ctx, storyID, nodeID)
	if err != nil {
		return Status{}, err
	}
	if _, _, err := e.approvals.Get(ctx, storyID, nodeID); err != nil {
		return Status{}, err
	}
	stale, err := e.approvals.IsStale(ctx, storyID, nodeID)
	if err != nil {
		return Status{}, err
	}
	approved, err := e.approvals.EffectiveApproval(ctx, storyID, nodeID)
	if err != nil {
		return Status{}, err
	}
	_, reviewed := e.approvals.Lookup(storyID, nodeID)
	if stale {
		e.logger.Debug("stale review", "story", storyID, "node", nodeID)
	}
	return Status{
		Approved:       approved,
		Stale:          stale,
		Reviewed:       reviewed,
		ContentMissing: current.IsAbsent(),
	}, nil
}

// Accept approves a node's current text.
func (e *Engine) Accept(ctx context.Context, storyID, nodeID string) error {
	return e.decide(ctx, "accept", storyID, []string{nodeID}, true)
}

// Reject records a node's current text as not approved.
func (e *Engine) Reject(ctx context.Context, storyID, nodeID string) error {
	return e.decide(ctx, "reject", storyID, []string{nodeID}, false)
}

// AcceptSubtree approves from and every node reachable from it with one
// write, returning the affected ids in traversal order.
func (e *Engine) AcceptSubtree(ctx context.Context, g *story.Graph, from string) ([]string, error) {
	return e.subtree(ctx, "accept_subtree", g, from, true)
}

// RejectSubtree is AcceptSubtree with the opposite decision.
func (e *Engine) RejectSubtree(ctx context.Context, g *story.Graph, from string) ([]string, error) {
	return e.subtree(ctx, "reject_subtree", g, from, false)
}

func (e *Engine) subtree(ctx context.Context, event string, g *story.Graph, from string, approved bool) ([]string, error) {
	if !g.Has(from) {
		return nil, &story.NotFoundError{StoryID: g.StoryID, NodeID: from}
	}
	nodes := story.Reachable(g, from, e.maxDepth)
	if err := e.decide(ctx, event, g.StoryID, nodes, approved); err != nil {
		return nil, err
	}
	return nodes, nil
}

// AcceptStory approves every node the manifest declares, reachable or not,
// with one write.
func (e *Engine) AcceptStory(ctx context.Context, g *story.Graph) ([]string, error) {
	return e.wholeStory(ctx, "accept_story", g, true)
}

// RejectStory is AcceptStory with the opposite decision.
func (e *Engine) RejectStory(ctx context.Context, g *story.Graph) ([]string, error) {
	return e.wholeStory(ctx, "reject_story", g, false)
}

func (e *Engine) wholeStory(ctx context.Context, event string, g *story.Graph, approved bool) ([]string, error) {
	nodes := append([]string(nil), g.Order...)
	if err := e.decide(ctx, event, g.StoryID, nodes, approved); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (e *Engine) decide(ctx context.Context, event, storyID string, nodes []string, approved bool) error {
	if err := e.approvals.BulkSet(ctx, storyID, nodes, approved); err != nil {
		return err
	}
	e.logger.Info("review decision", "event", event, "story", storyID, "nodes", len(nodes), "approved", approved)
	ev := logging.Event{Event: event, Story: storyID, Approved: logging.Flag(approved)}
	if len(nodes) == 1 {
		ev.Node = nodes[0]
	} else {
		ev.Nodes = nodes
	}
	e.decisions.Record(ev)
	return nil
}

// Reconcile heals every manifest node of g in one write: approvals whose
// text changed are withdrawn and unbound entries are bound to the current
// text. It returns how many records changed.
func (e *Engine) Reconcile(ctx context.Context, g *story.Graph) (int, error) {
	n, err := e.approvals.Reconcile(ctx, g.StoryID, g.Order)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("reconciled approvals", "story", g.StoryID, "changed", n)
	}
	return n, nil
}
