package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dfbr/choose-your-own-adventure-world/internal/approval"
	"github.com/dfbr/choose-your-own-adventure-world/internal/content"
	"github.com/dfbr/choose-your-own-adventure-world/internal/fingerprint"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

const diamondManifest = `{
  "storyId": "diamond",
  "metadata": {"title": "Diamond"},
  "nodes": {
    "start": {"textFile": "nodes/start.txt", "choices": [{"text": "A", "nextNode": "A"}, {"text": "B", "nextNode": "B"}]},
    "A": {"textFile": "nodes/A.txt", "choices": [{"text": "on", "nextNode": "end"}]},
    "B": {"textFile": "nodes/B.txt", "choices": [{"text": "on", "nextNode": "end"}]},
    "end": {"textFile": "nodes/end.txt", "choices": []}
  }
}`

type harness struct {
	ctx       context.Context
	dir       string
	texts     *content.FileStore
	persister *approval.MemoryPersister
	engine    *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctx:       context.Background(),
		dir:       t.TempDir(),
		persister: approval.NewMemoryPersister(nil),
	}
	h.texts = content.NewFileStore(h.dir)
	h.reopen(t)
	return h
}

// reopen rebuilds the engine from the persisted document.
func (h *harness) reopen(t *testing.T) {
	t.Helper()
	approvals, err := approval.Open(h.ctx, h.persister, fingerprint.NewEngine(h.texts))
	if err != nil {
		t.Fatalf("approval.Open() error = %v", err)
	}
	h.engine = New(story.NewLoader(h.dir), h.texts, approvals)
}

func (h *harness) writeFile(t *testing.T, rel, data string) {
	t.Helper()
	path := filepath.Join(h.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) diamond(t *testing.T) *story.Graph {
	t.Helper()
	h.writeFile(t, "diamond/story.json", diamondManifest)
	for _, id := range []string{"start", "A", "B", "end"} {
		h.writeFile(t, "diamond/nodes/"+id+".txt", "Text of "+id+".")
	}
	g, err := h.engine.Open(h.ctx, "diamond")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return g
}

func (h *harness) status(t *testing.T, nodeID string) Status {
	t.Helper()
	st, err := h.engine.Status(h.ctx, "diamond", nodeID)
	if err != nil {
		t.Fatalf("Status(%s) error = %v", nodeID, err)
	}
	return st
}

func TestSessionOrder(t *testing.T) {
	h := newHarness(t)
	g := h.diamond(t)

	if got, want := h.engine.SessionOrder(g), []string{"start", "A", "B", "end"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SessionOrder() = %v, want %v", got, want)
	}

	g.Root = "prologue"
	if got := h.engine.SessionOrder(g); len(got) != 0 {
		t.Errorf("SessionOrder() without root = %v, want empty", got)
	}
}

func TestStatus_EditAfterAcceptIsStale(t *testing.T) {
	h := newHarness(t)
	h.diamond(t)

	if st := h.status(t, "start"); st.Label() != "unreviewed" {
		t.Errorf("initial status = %+v (%s)", st, st.Label())
	}

	if err := h.engine.Accept(h.ctx, "diamond", "start"); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if st := h.status(t, "start"); !st.Approved || st.Stale || st.Label() != "approved" {
		t.Errorf("status after accept = %+v", st)
	}

	if err := h.texts.Write(h.ctx, "diamond", "start", []byte("Text of start, revised.")); err != nil {
		t.Fatal(err)
	}
	st := h.status(t, "start")
	if st.Approved || !st.Stale {
		t.Errorf("status after edit = %+v, want approved=false stale=true", st)
	}

	// The demotion was persisted without any explicit reject.
	h.reopen(t)
	if ok, _ := h.engine.Approvals().EffectiveApproval(h.ctx, "diamond", "start"); ok {
		t.Error("stale approval survived reload")
	}
}

func TestStatus_RejectAndMissing(t *testing.T) {
	h := newHarness(t)
	h.diamond(t)

	if err := h.engine.Reject(h.ctx, "diamond", "B"); err != nil {
		t.Fatal(err)
	}
	if st := h.status(t, "B"); st.Approved || !st.Reviewed || st.Label() != "rejected" {
		t.Errorf("status after reject = %+v (%s)", st, st.Label())
	}

	if err := os.Remove(filepath.Join(h.dir, "diamond", "nodes", "end.txt")); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Accept(h.ctx, "diamond", "end"); err != nil {
		t.Fatal(err)
	}
	st := h.status(t, "end")
	if st.Approved || !st.ContentMissing || st.Label() != "missing" {
		t.Errorf("status of node without text = %+v (%s)", st, st.Label())
	}
}

func TestAcceptSubtree(t *testing.T) {
	h := newHarness(t)
	g := h.diamond(t)

	got, err := h.engine.AcceptSubtree(h.ctx, g, "A")
	if err != nil {
		t.Fatalf("AcceptSubtree() error = %v", err)
	}
	if want := []string{"A", "end"}; !reflect.DeepEqual(got, want) {
		t.Errorf("AcceptSubtree() = %v, want %v", got, want)
	}
	if h.persister.Saves() != 1 {
		t.Errorf("AcceptSubtree() wrote %d times, want 1", h.persister.Saves())
	}

	for id, want := range map[string]bool{"A": true, "end": true, "B": false, "start": false} {
		st, err := h.engine.Peek(h.ctx, "diamond", id)
		if err != nil {
			t.Fatal(err)
		}
		if st.Approved != want {
			t.Errorf("%s approved = %v, want %v", id, st.Approved, want)
		}
		if !want && st.Reviewed {
			t.Errorf("%s was touched by the subtree operation", id)
		}
	}

	rejected, err := h.engine.RejectSubtree(h.ctx, g, "start")
	if err != nil {
		t.Fatal(err)
	}
	if len(rejected) != 4 {
		t.Errorf("RejectSubtree(start) = %v, want all four nodes", rejected)
	}

	_, err = h.engine.AcceptSubtree(h.ctx, g, "nowhere")
	if !errors.Is(err, story.ErrNotFound) {
		t.Errorf("AcceptSubtree(nowhere) error = %v, want ErrNotFound", err)
	}
}

func TestAcceptSubtree_FailedWriteChangesNothing(t *testing.T) {
	h := newHarness(t)
	g := h.diamond(t)
	h.persister.SetSaveError(errors.New("read-only filesystem"))

	if _, err := h.engine.AcceptSubtree(h.ctx, g, "start"); !errors.Is(err, approval.ErrPersistence) {
		t.Fatalf("AcceptSubtree() error = %v, want ErrPersistence", err)
	}
	for _, id := range g.Order {
		if st, _ := h.engine.Peek(h.ctx, "diamond", id); st.Reviewed {
			t.Errorf("%s reviewed in memory after failed write", id)
		}
	}

	h.persister.SetSaveError(nil)
	h.reopen(t)
	if stories := h.engine.Approvals().Stories(); len(stories) != 0 {
		t.Errorf("reloaded document has stories %v, want none", stories)
	}
}

func TestAcceptStory_IncludesOrphans(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "orphans/story.json", `{"nodes": {
		"start": {"choices": [{"text": "x", "nextNode": "end"}]},
		"end": {"choices": []},
		"draft": {"choices": [{"text": "x", "nextNode": "end"}]}
	}}`)
	for _, id := range []string{"start", "end", "draft"} {
		h.writeFile(t, "orphans/nodes/"+id+".txt", id)
	}
	g, err := h.engine.Open(h.ctx, "orphans")
	if err != nil {
		t.Fatal(err)
	}

	nodes, err := h.engine.AcceptStory(h.ctx, g)
	if err != nil {
		t.Fatalf("AcceptStory() error = %v", err)
	}
	if want := []string{"start", "end", "draft"}; !reflect.DeepEqual(nodes, want) {
		t.Errorf("AcceptStory() = %v, want %v", nodes, want)
	}
	sum, _ := h.engine.Summary(h.ctx, g)
	if sum.Unapproved != 0 {
		t.Errorf("Summary() after AcceptStory = %+v", sum)
	}

	if _, err := h.engine.RejectStory(h.ctx, g); err != nil {
		t.Fatal(err)
	}
	sum, _ = h.engine.Summary(h.ctx, g)
	if sum.Unapproved != 3 {
		t.Errorf("Summary() after RejectStory = %+v", sum)
	}
}

func TestOpen_BindsTextLocators(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "custom/story.json", `{"nodes": {"start": {"textFile": "text/opening.md", "choices": []}}}`)
	h.writeFile(t, "custom/text/opening.md", "Custom location.")

	g, err := h.engine.Open(h.ctx, "custom")
	if err != nil {
		t.Fatal(err)
	}
	snap, err := h.engine.PublishSnapshot(h.ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Nodes["start"].Content; got != "Custom location." {
		t.Errorf("content = %q, want text from declared locator", got)
	}

	if _, err := h.engine.Open(h.ctx, "absent"); !errors.Is(err, story.ErrNotFound) {
		t.Errorf("Open(absent) error = %v, want ErrNotFound", err)
	}
}

func TestSummary(t *testing.T) {
	h := newHarness(t)
	g := h.diamond(t)

	if _, err := h.engine.AcceptSubtree(h.ctx, g, "A"); err != nil {
		t.Fatal(err)
	}
	if err := h.texts.Write(h.ctx, "diamond", "A", []byte("changed")); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(h.dir, "diamond", "nodes", "B.txt")); err != nil {
		t.Fatal(err)
	}
	saves := h.persister.Saves()

	sum, err := h.engine.Summary(h.ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	want := Summary{Stories: 1, Total: 4, Unapproved: 3, Stale: 1, Missing: 1}
	if sum != want {
		t.Errorf("Summary() = %+v, want %+v", sum, want)
	}
	if sum.Approved() != 1 {
		t.Errorf("Approved() = %d, want 1", sum.Approved())
	}
	if h.persister.Saves() != saves {
		t.Error("Summary() wrote the document")
	}

	unapproved, _ := h.engine.Unapproved(h.ctx, g)
	if want := []string{"start", "A", "B"}; !reflect.DeepEqual(unapproved, want) {
		t.Errorf("Unapproved() = %v, want %v", unapproved, want)
	}

	h.writeFile(t, "broken/story.json", `{"nodes": [`)
	h.writeFile(t, "single/story.json", `{"nodes": {"start": {"choices": []}}}`)
	all, err := h.engine.SummaryAll(h.ctx)
	if err != nil {
		t.Fatalf("SummaryAll() error = %v", err)
	}
	wantAll := Summary{Stories: 2, Total: 5, Unapproved: 4, Stale: 1, Missing: 2}
	if all != wantAll {
		t.Errorf("SummaryAll() = %+v, want %+v", all, wantAll)
	}
}

func TestPublishSnapshot_IgnoresApproval(t *testing.T) {
	h := newHarness(t)
	g := h.diamond(t)
	if err := os.Remove(filepath.Join(h.dir, "diamond", "nodes", "end.txt")); err != nil {
		t.Fatal(err)
	}

	snap, err := h.engine.PublishSnapshot(h.ctx, g)
	if err != nil {
		t.Fatalf("PublishSnapshot() error = %v", err)
	}
	if snap.StoryID != "diamond" || snap.Metadata.Title != "Diamond" {
		t.Errorf("snapshot header = %q %+v", snap.StoryID, snap.Metadata)
	}
	if got := snap.Nodes["A"].Content; got != "Text of A." {
		t.Errorf("A content = %q", got)
	}
	if got := snap.Nodes["start"].Choices; len(got) != 2 || got[1].NextNode != "B" {
		t.Errorf("start choices = %+v", got)
	}
	if got, want := snap.MissingNodes(), []string{"end"}; !reflect.DeepEqual(got, want) {
		t.Errorf("MissingNodes() = %v, want %v", got, want)
	}
	if h.persister.Saves() != 0 {
		t.Error("PublishSnapshot() touched approval state")
	}
}

func TestTree(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "loop/story.json", `{"nodes": {
		"start": {"choices": [{"text": "a", "nextNode": "A"}, {"text": "x", "nextNode": "ghost"}]},
		"A": {"choices": [{"text": "back", "nextNode": "start"}]},
		"draft": {"choices": []}
	}}`)
	h.writeFile(t, "loop/nodes/start.txt", "s")
	h.writeFile(t, "loop/nodes/A.txt", "a")
	g, err := h.engine.Open(h.ctx, "loop")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Accept(h.ctx, "loop", "A"); err != nil {
		t.Fatal(err)
	}

	forest, err := h.engine.Tree(h.ctx, g)
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}

	var lines []string
	WalkTree(forest, func(n *TreeNode, depth int) {
		label := n.Label()
		if n.Cycle {
			label += ",cycle"
		}
		lines = append(lines, strings.Repeat(" ", depth)+n.ID+" "+label)
	})

	want := []string{
		"start unreviewed",
		" A approved",
		"  start unreviewed,cycle",
		" ghost dangling",
		"draft missing",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Tree() =\n%s\nwant\n%s", strings.Join(lines, "\n"), strings.Join(want, "\n"))
	}
}

func TestStatus_UnopenedStoryUsesDeclaredTextFile(t *testing.T) {
	h := newHarness(t)
	h.writeFile(t, "custom/story.json", `{"nodes": {"start": {"textFile": "text/opening.md", "choices": []}}}`)
	h.writeFile(t, "custom/text/opening.md", "A custom opening.")

	if err := h.engine.Accept(h.ctx, "custom", "start"); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	rec, ok := h.engine.Approvals().Lookup("custom", "start")
	if !ok || rec.Fingerprint != fingerprint.Of([]byte("A custom opening.")) {
		t.Fatalf("record = %+v, %v; want bound to the declared text file", rec, ok)
	}

	st, err := h.engine.Peek(h.ctx, "custom", "start")
	if err != nil {
		t.Fatalf("Peek() error = %v", err)
	}
	if !st.Approved || st.Stale || st.ContentMissing {
		t.Errorf("status = %+v, want approved", st)
	}
}
