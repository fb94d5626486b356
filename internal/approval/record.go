package approval

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dfbr/choose-your-own-adventure-world/internal/fingerprint"
)

// Record is the review decision for one node: whether it was approved and
// the fingerprint of the text the decision was made against.
type Record struct {
	Approved    bool                    `json:"approved"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`

	// unbound records carry a decision with no fingerprint yet. They come
	// from documents written before fingerprints existed and are bound to
	// the node's current text the first time they are read.
	unbound bool
}

// MarshalJSON writes bound records as objects. Unbound records keep their
// original boolean form until they are bound.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.unbound {
		return json.Marshal(r.Approved)
	}
	return json.Marshal(struct {
		Approved    bool   `json:"approved"`
		Fingerprint string `json:"fingerprint"`
	}{r.Approved, string(r.Fingerprint)})
}

// entry is one persisted value: either a bare boolean or a record object.
type entry struct {
	legacy *bool
	record *Record
}

func (e *entry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty entry")
	}
	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		e.legacy = &b
		return nil
	case '{':
		var raw struct {
			Approved    bool   `json:"approved"`
			Fingerprint string `json:"fingerprint"`
		}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		e.record = &Record{Approved: raw.Approved, Fingerprint: fingerprint.Fingerprint(raw.Fingerprint)}
		return nil
	default:
		return fmt.Errorf("entry must be a boolean or an object, got %s", trimmed)
	}
}

// normalize turns the decoded union into a Record.
func (e entry) normalize() Record {
	if e.legacy != nil {
		return Record{Approved: *e.legacy, unbound: true}
	}
	return *e.record
}

// document maps story id to node id to record.
type document map[string]map[string]Record

func decodeDocument(data []byte) (document, error) {
	doc := make(document)
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	var raw map[string]map[string]entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for storyID, nodes := range raw {
		records := make(map[string]Record, len(nodes))
		for nodeID, e := range nodes {
			records[nodeID] = e.normalize()
		}
		doc[storyID] = records
	}
	return doc, nil
}

// Inspect decodes a state document without opening a store, reporting how
// many stories and decisions it holds. Errors match ErrCorrupt.
func Inspect(data []byte) (stories, nodes int, err error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	for _, records := range doc {
		nodes += len(records)
	}
	return len(doc), nodes, nil
}

func (d document) encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (d document) clone() document {
	out := make(document, len(d))
	for storyID, nodes := range d {
		records := make(map[string]Record, len(nodes))
		for nodeID, r := range nodes {
			records[nodeID] = r
		}
		out[storyID] = records
	}
	return out
}

func (d document) get(storyID, nodeID string) (Record, bool) {
	r, ok := d[storyID][nodeID]
	return r, ok
}

func (d document) put(storyID, nodeID string, r Record) {
	nodes, ok := d[storyID]
	if !ok {
		nodes = make(map[string]Record)
		d[storyID] = nodes
	}
	nodes[nodeID] = r
}
