// Package approval persists per-node review decisions keyed by the
// fingerprint of the text they were made against.
//
// The state document maps story id to node id to a record
// {"approved": bool, "fingerprint": string}. Documents written before
// fingerprints existed hold a bare boolean instead; such entries are bound to
// the node's current text the first time they are read and written back.
//
// Methods that may write say so. Every write replaces the whole document,
// and a failed write leaves the in-memory state untouched.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dfbr/choose-your-own-adventure-world/internal/fingerprint"
	"github.com/dfbr/choose-your-own-adventure-world/internal/logging"
)

// Fingerprinter reports the fingerprint of a node's current text.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, storyID, nodeID string) (fingerprint.Fingerprint, error)
}

// Store holds the approval state document for a review session.
type Store struct {
	mu        sync.Mutex
	persister Persister
	fp        Fingerprinter
	doc       document

	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logging.NewComponentLogger(logger, "approval") }
}

// WithDecisionLogger records heal and migrate events.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(s *Store) { s.decisions = dl }
}

// Open loads the document through p. A missing document yields an empty
// store; an undecodable one fails with ErrCorrupt.
func Open(ctx context.Context, p Persister, fp Fingerprinter, opts ...Option) (*Store, error) {
	s := &Store{
		persister: p,
		fp:        fp,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	s.doc = doc
	return s, nil
}

// save encodes next and hands it to the persister. On success next becomes
// the current document.
func (s *Store) save(ctx context.Context, op string, next document) error {
	data, err := next.encode()
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	if err := s.persister.Save(ctx, data); err != nil {
		s.logger.Error("approval state write failed", "op", op, "error", err)
		return &PersistenceError{Op: op, Err: err}
	}
	s.doc = next
	return nil
}

// Get returns the node's record. An unbound legacy entry is bound to the
// current fingerprint and the document is written back before returning;
// later reads do not write.
func (s *Store) Get(ctx context.Context, storyID, nodeID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, storyID, nodeID)
}

func (s *Store) getLocked(ctx context.Context, storyID, nodeID string) (Record, bool, error) {
	rec, ok := s.doc.get(storyID, nodeID)
	if !ok || !rec.unbound {
		return rec, ok, nil
	}

	current, err := s.fp.Fingerprint(ctx, storyID, nodeID)
	if err != nil {
		return Record{}, false, err
	}
	bound := Record{Approved: rec.Approved, Fingerprint: current}

	next := s.doc.clone()
	next.put(storyID, nodeID, bound)
	if err := s.save(ctx, "migrate", next); err != nil {
		return Record{}, false, err
	}
	s.logger.Debug("bound legacy approval", "story", storyID, "node", nodeID, "approved", bound.Approved)
	s.decisions.Record(logging.Event{
		Event:       "migrate",
		Story:       storyID,
		Node:        nodeID,
		Approved:    logging.Flag(bound.Approved),
		Fingerprint: string(current),
	})
	return bound, true, nil
}

// Lookup returns the stored record without binding or writing. An unbound
// record is reported with an empty fingerprint.
func (s *Store) Lookup(storyID, nodeID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.get(storyID, nodeID)
	rec.unbound = false
	return rec, ok
}

// IsStale reports whether a bound record exists whose fingerprint differs
// from the node's current text. It never writes.
func (s *Store) IsStale(ctx context.Context, storyID, nodeID string) (bool, error) {
	s.mu.Lock()
	rec, ok := s.doc.get(storyID, nodeID)
	s.mu.Unlock()
	if !ok || rec.unbound {
		return false, nil
	}

	current, err := s.fp.Fingerprint(ctx, storyID, nodeID)
	if err != nil {
		return false, err
	}
	return rec.Fingerprint != current, nil
}

// Verdict is the read-only evaluation of one node.
type Verdict struct {
	Record  Record
	Found   bool
	Current fingerprint.Fingerprint
	// Approved is what EffectiveApproval would return.
	Approved bool
	// Stale is what IsStale would return once the record is bound.
	Stale bool
}

// Check evaluates a node against its current text without writing.
// Unbound entries are judged as if bound to the current text.
func (s *Store) Check(ctx context.Context, storyID, nodeID string) (Verdict, error) {
	current, err := s.fp.Fingerprint(ctx, storyID, nodeID)
	if err != nil {
		return Verdict{}, err
	}
	s.mu.Lock()
	rec, ok := s.doc.get(storyID, nodeID)
	s.mu.Unlock()

	v := Verdict{Found: ok, Current: current}
	if !ok {
		return v, nil
	}
	if rec.unbound {
		rec = Record{Approved: rec.Approved, Fingerprint: current}
	}
	v.Record = rec
	v.Approved = valid(rec, current)
	v.Stale = rec.Fingerprint != current
	return v, nil
}

// valid reports whether rec still approves content with fingerprint current.
// Approvals never hold for missing content.
func valid(rec Record, current fingerprint.Fingerprint) bool {
	return rec.Approved && !current.IsAbsent() && rec.Fingerprint == current
}

// healed returns the record a stale or content-less entry is rewritten to,
// and whether it differs from rec.
func healed(rec Record, current fingerprint.Fingerprint) (Record, bool) {
	if rec.Fingerprint == current && (!rec.Approved || !current.IsAbsent()) {
		return rec, false
	}
	return Record{Approved: false, Fingerprint: current}, true
}

// EffectiveApproval reports whether the node is approved for its current
// text. May write: a record whose fingerprint no longer matches is replaced
// by {approved: false, fingerprint: current} and persisted.
func (s *Store) EffectiveApproval(ctx context.Context, storyID, nodeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.getLocked(ctx, storyID, nodeID)
	if err != nil || !ok {
		return false, err
	}

	current, err := s.fp.Fingerprint(ctx, storyID, nodeID)
	if err != nil {
		return false, err
	}
	if valid(rec, current) {
		return true, nil
	}

	fixed, changed := healed(rec, current)
	if !changed {
		return false, nil
	}
	next := s.doc.clone()
	next.put(storyID, nodeID, fixed)
	if err := s.save(ctx, "heal", next); err != nil {
		return false, err
	}
	s.logger.Info("approval invalidated by content change", "story", storyID, "node", nodeID)
	s.decisions.Record(logging.Event{
		Event:       "heal",
		Story:       storyID,
		Node:        nodeID,
		Approved:    logging.Flag(false),
		Fingerprint: string(current),
		Previous:    string(rec.Fingerprint),
	})
	return false, nil
}

// Reconcile applies the healing rule of EffectiveApproval to every listed
// node, binding unbound entries on the way, with at most one write. It
// returns how many records changed.
func (s *Store) Reconcile(ctx context.Context, storyID string, nodeIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	changed := 0
	for _, nodeID := range nodeIDs {
		rec, ok := next.get(storyID, nodeID)
		if !ok {
			continue
		}
		current, err := s.fp.Fingerprint(ctx, storyID, nodeID)
		if err != nil {
			return 0, err
		}
		touched := rec.unbound
		if rec.unbound {
			rec = Record{Approved: rec.Approved, Fingerprint: current}
		}
		if fixed, ok := healed(rec, current); ok {
			rec, touched = fixed, true
		}
		if touched {
			next.put(storyID, nodeID, rec)
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.save(ctx, "reconcile", next); err != nil {
		return 0, err
	}
	s.decisions.Record(logging.Event{Event: "reconcile", Story: storyID, Changed: changed})
	return changed, nil
}

// Set records a decision against the node's current text and persists it.
func (s *Store) Set(ctx context.Context, storyID, nodeID string, approved bool) error {
	return s.BulkSet(ctx, storyID, []string{nodeID}, approved)
}

// BulkSet records the same decision for every listed node with one write.
// Fingerprints are computed before anything changes, so either all records
// are updated and persisted or none are.
func (s *Store) BulkSet(ctx context.Context, storyID string, nodeIDs []string, approved bool) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	records := make(map[string]Record, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		current, err := s.fp.Fingerprint(ctx, storyID, nodeID)
		if err != nil {
			return err
		}
		if approved && current.IsAbsent() {
			s.logger.Warn("approving node without content", "story", storyID, "node", nodeID)
		}
		records[nodeID] = Record{Approved: approved, Fingerprint: current}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	for nodeID, rec := range records {
		next.put(storyID, nodeID, rec)
	}
	op := "set"
	if len(nodeIDs) > 1 {
		op = "bulk_set"
	}
	return s.save(ctx, op, next)
}

// Migrate binds every unbound entry in the document with one write and
// returns how many were bound.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	bound := 0
	for storyID, nodes := range next {
		for nodeID, rec := range nodes {
			if !rec.unbound {
				continue
			}
			current, err := s.fp.Fingerprint(ctx, storyID, nodeID)
			if err != nil {
				return 0, err
			}
			nodes[nodeID] = Record{Approved: rec.Approved, Fingerprint: current}
			bound++
		}
	}
	if bound == 0 {
		return 0, nil
	}
	if err := s.save(ctx, "migrate", next); err != nil {
		return 0, err
	}
	s.logger.Info("bound legacy approvals", "count", bound)
	return bound, nil
}

// Unbound returns how many entries still await binding.
func (s *Store) Unbound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, nodes := range s.doc {
		for _, rec := range nodes {
			if rec.unbound {
				n++
			}
		}
	}
	return n
}

// Stories returns the story ids present in the document, sorted.
func (s *Store) Stories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.doc))
	for id := range s.doc {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Nodes returns the node ids with a record for storyID, sorted.
func (s *Store) Nodes(storyID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.doc[storyID]))
	for id := range s.doc[storyID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
