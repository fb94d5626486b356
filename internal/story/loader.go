package story

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/dfbr/choose-your-own-adventure-world/internal/pathutil"
	"github.com/dfbr/choose-your-own-adventure-world/internal/utils"
)

// ManifestFile is the manifest filename inside each story directory.
const ManifestFile = "story.json"

// Loader reads story manifests from <dir>/<storyID>/story.json.
// It never caches: every Load reads the manifest afresh.
type Loader struct {
	dir string
}

// NewLoader creates a loader for the given stories directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir returns the stories directory.
func (l *Loader) Dir() string { return l.dir }

// ManifestPath returns the manifest location for a story.
func (l *Loader) ManifestPath(storyID string) string {
	return filepath.Join(l.dir, storyID, ManifestFile)
}

// Load parses a story's manifest into a graph.
func (l *Loader) Load(ctx context.Context, storyID string) (*Graph, error) {
	if err := pathutil.ValidateID("story", storyID); err != nil {
		return nil, err
	}
	path := l.ManifestPath(storyID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{StoryID: storyID, Path: pathutil.RedactPath(path)}
		}
		return nil, fmt.Errorf("read manifest for %q: %w", storyID, err)
	}
	return Parse(storyID, data)
}

// List returns the identifiers of stories that have a manifest, sorted.
// A missing stories directory yields an empty list.
func (l *Loader) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list stories: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(l.ManifestPath(e.Name())); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// manifestNode is the on-disk shape of a node.
type manifestNode struct {
	TextFile string           `json:"textFile"`
	Choices  []manifestChoice `json:"choices"`
	Image    string           `json:"image"`
}

type manifestChoice struct {
	Text     string `json:"text"`
	NextNode string `json:"nextNode"`
}

// Parse decodes manifest bytes into a graph. Node declaration order is kept.
func Parse(storyID string, data []byte) (*Graph, error) {
	var doc struct {
		StoryID  string          `json:"storyId"`
		Metadata json.RawMessage `json:"metadata"`
		Nodes    json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedError{StoryID: storyID, Reason: "invalid JSON document", Err: err}
	}

	g := NewGraph(storyID)

	meta, err := parseMetadata(doc.Metadata)
	if err != nil {
		return nil, &MalformedError{StoryID: storyID, Reason: "metadata must be an object", Err: err}
	}
	g.Metadata = meta

	if err := decodeNodes(g, doc.Nodes); err != nil {
		return nil, err
	}
	return g, nil
}

func parseMetadata(raw json.RawMessage) (Metadata, error) {
	var meta Metadata
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta.Raw); err != nil {
		return meta, err
	}
	meta.Title = utils.GetString(meta.Raw, "title", "")
	meta.Description = utils.GetString(meta.Raw, "description", "")
	meta.Author = utils.GetString(meta.Raw, "author", "")
	meta.Created = utils.GetString(meta.Raw, "created", "")
	meta.Categories = utils.GetStringSlice(meta.Raw, "categories")
	return meta, nil
}

// decodeNodes walks the nodes object token by token so declaration order
// survives decoding.
func decodeNodes(g *Graph, raw json.RawMessage) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return &MalformedError{StoryID: g.StoryID, Reason: "invalid nodes", Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &MalformedError{StoryID: g.StoryID, Reason: "nodes must be an object keyed by node id"}
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return &MalformedError{StoryID: g.StoryID, Reason: "invalid nodes", Err: err}
		}
		id, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return &MalformedError{StoryID: g.StoryID, Reason: fmt.Sprintf("node %q", id), Err: err}
		}
		if trimmed := bytes.TrimSpace(value); len(trimmed) == 0 || trimmed[0] != '{' {
			return &MalformedError{StoryID: g.StoryID, Reason: fmt.Sprintf("node %q must be an object", id)}
		}

		var mn manifestNode
		if err := json.Unmarshal(value, &mn); err != nil {
			return &MalformedError{StoryID: g.StoryID, Reason: fmt.Sprintf("node %q", id), Err: err}
		}

		node := &Node{ID: id, TextRef: mn.TextFile, Image: mn.Image}
		if len(mn.Choices) > 0 {
			node.Choices = make([]Choice, len(mn.Choices))
			for i, c := range mn.Choices {
				node.Choices[i] = Choice{Text: c.Text, NextNode: c.NextNode}
			}
		}
		g.AddNode(node)
	}

	if _, err := dec.Token(); err != nil {
		return &MalformedError{StoryID: g.StoryID, Reason: "invalid nodes", Err: err}
	}
	return nil
}
