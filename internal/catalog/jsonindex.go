package catalog

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
	"sync"

	"github.com/dfbr/choose-your-own-adventure-world/internal/review"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
	"github.com/dfbr/choose-your-own-adventure-world/internal/utils"
)

// IndexFile is the index file name inside the stories directory.
const IndexFile = "index.json"

// JSONIndex publishes into the stories directory itself: node text is
// written into each node of <dir>/<storyID>/story.json as "text", and the
// story's entry is upserted into <dir>/index.json.
type JSONIndex struct {
	mu  sync.Mutex
	dir string
}

// NewJSONIndex creates a publisher for a stories directory.
func NewJSONIndex(storiesDir string) *JSONIndex {
	return &JSONIndex{dir: storiesDir}
}

// IndexPath returns the index file location.
func (x *JSONIndex) IndexPath() string {
	return filepath.Join(x.dir, IndexFile)
}

func (x *JSONIndex) Publish(ctx context.Context, entry Entry, snap *review.Snapshot) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.materialize(snap); err != nil {
		return err
	}

	entries, err := x.read()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.StoryID != entry.StoryID {
			kept = append(kept, e)
		}
	}
	kept = append(kept, entry)
	return x.write(kept)
}

// List returns the index entries sorted by story id.
func (x *JSONIndex) List(ctx context.Context) ([]Entry, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	entries, err := x.read()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StoryID < entries[j].StoryID })
	return entries, nil
}

// read loads the index. A missing index is empty.
func (x *JSONIndex) read() ([]Entry, error) {
	data, err := os.ReadFile(x.IndexPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read story index: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse story index: %w", err)
	}
	return entries, nil
}

func (x *JSONIndex) write(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := marshalIndent(entries)
	if err != nil {
		return fmt.Errorf("encode story index: %w", err)
	}
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return fmt.Errorf("create stories directory: %w", err)
	}
	return utils.WriteFileAtomic(x.IndexPath(), data, 0o644)
}

// materialize writes each node's text into the manifest, keeping the
// manifest's node order and any fields it does not know about.
func (x *JSONIndex) materialize(snap *review.Snapshot) error {
	path := filepath.Join(x.dir, snap.StoryID, story.ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &story.NotFoundError{StoryID: snap.StoryID, Path: path}
		}
		return fmt.Errorf("read manifest: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return &story.MalformedError{StoryID: snap.StoryID, Reason: "invalid JSON document", Err: err}
	}
	var nodes map[string]map[string]json.RawMessage
	if raw, ok := top["nodes"]; ok {
		if err := json.Unmarshal(raw, &nodes); err != nil {
			return &story.MalformedError{StoryID: snap.StoryID, Reason: "nodes must be an object keyed by node id", Err: err}
		}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(key string, value []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}

	for _, key := range []string{"storyId", "metadata"} {
		if raw, ok := top[key]; ok {
			field(key, raw)
		}
	}

	var nodesBuf bytes.Buffer
	nodesBuf.WriteByte('{')
	wrote := false
	for _, id := range snap.Order {
		n, ok := nodes[id]
		if !ok {
			continue
		}
		if n == nil {
			n = make(map[string]json.RawMessage)
		}
		if sn := snap.Nodes[id]; !sn.Missing {
			text, err := marshalCompact(sn.Content)
			if err != nil {
				return fmt.Errorf("encode text of node %q: %w", id, err)
			}
			n["text"] = text
		}
		value, err := marshalCompact(n)
		if err != nil {
			return fmt.Errorf("encode node %q: %w", id, err)
		}
		if wrote {
			nodesBuf.WriteByte(',')
		}
		wrote = true
		k, _ := json.Marshal(id)
		nodesBuf.Write(k)
		nodesBuf.WriteByte(':')
		nodesBuf.Write(value)
	}
	nodesBuf.WriteByte('}')
	field("nodes", nodesBuf.Bytes())

	var rest []string
	for key := range top {
		if key != "storyId" && key != "metadata" && key != "nodes" {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		field(key, top[key])
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("format manifest: %w", err)
	}
	out.WriteByte('\n')
	return utils.WriteFileAtomic(path, out.Bytes(), 0o644)
}

// marshalCompact encodes v without escaping HTML characters, which story
// text uses freely.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
