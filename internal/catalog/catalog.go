// Package catalog publishes reviewed stories to the public story index.
//
// Publishing materializes every node's current text (see
// review.Engine.PublishSnapshot) and upserts the story keyed by its id into
// a Publisher: the JSON index the reader site loads, or a SQLite database.
// Approval is not required unless Options.RequireApproval is set.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dfbr/choose-your-own-adventure-world/internal/logging"
	"github.com/dfbr/choose-your-own-adventure-world/internal/review"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// ErrNotApproved is matched when publishing is gated on approval and some
// nodes are not approved.
var ErrNotApproved = errors.New("story has unapproved nodes")

// NotApprovedError lists the nodes blocking a gated publish.
type NotApprovedError struct {
	StoryID string
	Nodes   []string
}

func (e *NotApprovedError) Error() string {
	const shown = 5
	nodes := e.Nodes
	suffix := ""
	if len(nodes) > shown {
		suffix = fmt.Sprintf(" and %d more", len(nodes)-shown)
		nodes = nodes[:shown]
	}
	return fmt.Sprintf("story %q has %d unapproved nodes: %s%s", e.StoryID, len(e.Nodes), strings.Join(nodes, ", "), suffix)
}

func (e *NotApprovedError) Is(target error) bool { return target == ErrNotApproved }

// Entry is one story in the public index.
type Entry struct {
	StoryID     string   `json:"storyId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Created     string   `json:"created"`
	Categories  []string `json:"categories,omitempty"`
	StartNode   string   `json:"startNode"`
}

// Publisher upserts stories keyed by story id.
type Publisher interface {
	Publish(ctx context.Context, entry Entry, snap *review.Snapshot) error
	List(ctx context.Context) ([]Entry, error)
}

var titleCaser = cases.Title(language.English)

// TitleFromID derives a display title from a story id:
// "amulets-guardian" becomes "Amulets Guardian".
func TitleFromID(storyID string) string {
	words := strings.FieldsFunc(storyID, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	return titleCaser.String(strings.Join(words, " "))
}

// EntryFor builds the index entry for a snapshot. A missing title is
// derived from the story id.
func EntryFor(snap *review.Snapshot) Entry {
	meta := snap.Metadata
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = TitleFromID(snap.StoryID)
	}
	return Entry{
		StoryID:     snap.StoryID,
		Title:       title,
		Description: meta.Description,
		Author:      meta.Author,
		Created:     meta.Created,
		Categories:  meta.Categories,
		StartNode:   story.DefaultRoot,
	}
}

// Options controls a publish.
type Options struct {
	// RequireApproval refuses to publish while any declared node is not
	// approved for its current text.
	RequireApproval bool
	// Recorder, when set, commits the published files.
	Recorder *GitRecorder
	Logger   *slog.Logger
}

// Result describes a completed publish.
type Result struct {
	Entry   Entry
	Missing []string
	// Commit is the recorded commit hash, empty when nothing was committed.
	Commit string
}

// Publish snapshots g through eng and hands it to pub.
func Publish(ctx context.Context, eng *review.Engine, g *story.Graph, pub Publisher, opts Options) (*Result, error) {
	logger := logging.NewComponentLogger(opts.Logger, "catalog")

	if opts.RequireApproval {
		pending, err := eng.Unapproved(ctx, g)
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			return nil, &NotApprovedError{StoryID: g.StoryID, Nodes: pending}
		}
	}

	snap, err := eng.PublishSnapshot(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("snapshot %q: %w", g.StoryID, err)
	}
	entry := EntryFor(snap)
	if err := pub.Publish(ctx, entry, snap); err != nil {
		return nil, fmt.Errorf("publish %q: %w", g.StoryID, err)
	}

	res := &Result{Entry: entry, Missing: snap.MissingNodes()}
	logger.Info("story published", "story", g.StoryID, "nodes", len(snap.Nodes), "missing", len(res.Missing))

	if opts.Recorder != nil {
		hash, err := opts.Recorder.Record(ctx, fmt.Sprintf("Publish %s", entry.Title))
		if err != nil {
			return nil, err
		}
		res.Commit = hash
		if hash != "" {
			logger.Info("publish committed", "story", g.StoryID, "commit", hash)
		}
	}
	return res, nil
}
