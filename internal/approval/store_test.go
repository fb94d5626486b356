package approval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dfbr/choose-your-own-adventure-world/internal/content"
	"github.com/dfbr/choose-your-own-adventure-world/internal/fingerprint"
)

type fixture struct {
	ctx       context.Context
	texts     *content.MemoryStore
	persister *MemoryPersister
	store     *Store
}

func newFixture(t *testing.T, doc string, texts map[string]string) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := content.NewMemoryStore()
	for node, text := range texts {
		if err := mem.Write(ctx, "tale", node, []byte(text)); err != nil {
			t.Fatal(err)
		}
	}
	var data []byte
	if doc != "" {
		data = []byte(doc)
	}
	p := NewMemoryPersister(data)
	s, err := Open(ctx, p, fingerprint.NewEngine(mem))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return &fixture{ctx: ctx, texts: mem, persister: p, store: s}
}

// persisted decodes the last saved document into plain JSON values.
func (f *fixture) persisted(t *testing.T) map[string]map[string]any {
	t.Helper()
	var out map[string]map[string]any
	if err := json.Unmarshal(f.persister.Data(), &out); err != nil {
		t.Fatalf("persisted document is not JSON: %v", err)
	}
	return out
}

func (f *fixture) edit(t *testing.T, node, text string) {
	t.Helper()
	if err := f.texts.Write(f.ctx, "tale", node, []byte(text)); err != nil {
		t.Fatal(err)
	}
}

func TestStore_SetAndEffectiveApproval(t *testing.T) {
	f := newFixture(t, "", map[string]string{"start": "It was dark."})

	if ok, err := f.store.EffectiveApproval(f.ctx, "tale", "start"); err != nil || ok {
		t.Fatalf("EffectiveApproval() before review = %v, %v; want false, nil", ok, err)
	}
	if f.persister.Saves() != 0 {
		t.Errorf("querying an absent record wrote %d times", f.persister.Saves())
	}

	if err := f.store.Set(f.ctx, "tale", "start", true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	ok, err := f.store.EffectiveApproval(f.ctx, "tale", "start")
	if err != nil || !ok {
		t.Fatalf("EffectiveApproval() after accept = %v, %v; want true, nil", ok, err)
	}

	rec, found, err := f.store.Get(f.ctx, "tale", "start")
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v, %v", rec, found, err)
	}
	want := Record{Approved: true, Fingerprint: fingerprint.Of([]byte("It was dark."))}
	if rec != want {
		t.Errorf("Get() = %+v, want %+v", rec, want)
	}

	entry := f.persisted(t)["tale"]["start"].(map[string]any)
	if entry["approved"] != true || entry["fingerprint"] != string(want.Fingerprint) {
		t.Errorf("persisted entry = %v", entry)
	}
}

func TestStore_StaleApprovalHeals(t *testing.T) {
	f := newFixture(t, "", map[string]string{"start": "v1"})
	if err := f.store.Set(f.ctx, "tale", "start", true); err != nil {
		t.Fatal(err)
	}
	saves := f.persister.Saves()

	f.edit(t, "start", "v2")

	stale, err := f.store.IsStale(f.ctx, "tale", "start")
	if err != nil || !stale {
		t.Fatalf("IsStale() = %v, %v; want true, nil", stale, err)
	}
	if f.persister.Saves() != saves {
		t.Error("IsStale() wrote the document")
	}

	ok, err := f.store.EffectiveApproval(f.ctx, "tale", "start")
	if err != nil || ok {
		t.Fatalf("EffectiveApproval() after edit = %v, %v; want false, nil", ok, err)
	}
	if f.persister.Saves() != saves+1 {
		t.Errorf("saves = %d, want %d", f.persister.Saves(), saves+1)
	}

	rec, _ := f.store.Lookup("tale", "start")
	want := Record{Approved: false, Fingerprint: fingerprint.Of([]byte("v2"))}
	if rec != want {
		t.Errorf("healed record = %+v, want %+v", rec, want)
	}

	// Healing is a one-off: the rewritten record is consistent.
	if _, err := f.store.EffectiveApproval(f.ctx, "tale", "start"); err != nil {
		t.Fatal(err)
	}
	if f.persister.Saves() != saves+1 {
		t.Error("EffectiveApproval() rewrote an already healed record")
	}
}

func TestStore_LegacyMigration(t *testing.T) {
	f := newFixture(t, `{"tale": {"start": true, "left": false}}`, map[string]string{
		"start": "Begin.",
		"left":  "Left.",
	})

	if got := f.store.Unbound(); got != 2 {
		t.Fatalf("Unbound() = %d, want 2", got)
	}

	rec, found, err := f.store.Get(f.ctx, "tale", "start")
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v, %v", rec, found, err)
	}
	want := Record{Approved: true, Fingerprint: fingerprint.Of([]byte("Begin."))}
	if rec != want {
		t.Errorf("Get() = %+v, want %+v", rec, want)
	}
	if f.persister.Saves() != 1 {
		t.Fatalf("saves after first read = %d, want 1", f.persister.Saves())
	}

	doc := f.persisted(t)
	if _, ok := doc["tale"]["start"].(map[string]any); !ok {
		t.Errorf("start not upgraded on disk: %v", doc["tale"]["start"])
	}
	if doc["tale"]["left"] != false {
		t.Errorf("unread legacy entry changed on disk: %v", doc["tale"]["left"])
	}

	again, _, err := f.store.Get(f.ctx, "tale", "start")
	if err != nil || again != rec {
		t.Errorf("second Get() = %+v, %v; want %+v", again, err, rec)
	}
	if f.persister.Saves() != 1 {
		t.Errorf("second read wrote the document")
	}

	n, err := f.store.Migrate(f.ctx)
	if err != nil || n != 1 {
		t.Fatalf("Migrate() = %d, %v; want 1, nil", n, err)
	}
	if f.store.Unbound() != 0 {
		t.Errorf("Unbound() after Migrate = %d", f.store.Unbound())
	}
	if n, _ := f.store.Migrate(f.ctx); n != 0 {
		t.Errorf("second Migrate() = %d, want 0", n)
	}
}

func TestStore_LegacyApprovalWithoutContent(t *testing.T) {
	f := newFixture(t, `{"tale": {"ghost": true}}`, nil)

	stale, err := f.store.IsStale(f.ctx, "tale", "ghost")
	if err != nil || stale {
		t.Errorf("IsStale() unbound = %v, %v; want false, nil", stale, err)
	}

	ok, err := f.store.EffectiveApproval(f.ctx, "tale", "ghost")
	if err != nil || ok {
		t.Fatalf("EffectiveApproval() = %v, %v; want false, nil", ok, err)
	}
	rec, _ := f.store.Lookup("tale", "ghost")
	if rec != (Record{Approved: false, Fingerprint: fingerprint.Absent}) {
		t.Errorf("record = %+v, want rejected with absent fingerprint", rec)
	}
}

func TestStore_BulkSetAtomic(t *testing.T) {
	f := newFixture(t, "", map[string]string{"a": "A", "b": "B", "c": "C"})
	if err := f.store.Set(f.ctx, "tale", "a", false); err != nil {
		t.Fatal(err)
	}
	before := f.persister.Data()

	boom := errors.New("disk full")
	f.persister.SetSaveError(boom)

	err := f.store.BulkSet(f.ctx, "tale", []string{"a", "b", "c"}, true)
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, boom) {
		t.Fatalf("BulkSet() error = %v, want ErrPersistence wrapping %v", err, boom)
	}
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "bulk_set" {
		t.Errorf("error = %#v, want *PersistenceError for bulk_set", err)
	}

	if rec, _ := f.store.Lookup("tale", "a"); rec.Approved {
		t.Error("in-memory record changed by failed bulk write")
	}
	for _, id := range []string{"b", "c"} {
		if _, ok := f.store.Lookup("tale", id); ok {
			t.Errorf("in-memory record %s created by failed bulk write", id)
		}
	}
	if string(f.persister.Data()) != string(before) {
		t.Error("persisted document changed by failed bulk write")
	}

	f.persister.SetSaveError(nil)
	if err := f.store.BulkSet(f.ctx, "tale", []string{"a", "b", "c"}, true); err != nil {
		t.Fatalf("retry BulkSet() error = %v", err)
	}
	reopened, err := Open(f.ctx, f.persister, fingerprint.NewEngine(f.texts))
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if ok, _ := reopened.EffectiveApproval(f.ctx, "tale", id); !ok {
			t.Errorf("node %s not approved after reload", id)
		}
	}
}

func TestStore_Reconcile(t *testing.T) {
	f := newFixture(t, `{"tale": {"old": true}}`, map[string]string{"a": "A", "b": "B", "old": "O"})
	if err := f.store.BulkSet(f.ctx, "tale", []string{"a", "b"}, true); err != nil {
		t.Fatal(err)
	}
	f.edit(t, "a", "A2")
	saves := f.persister.Saves()

	n, err := f.store.Reconcile(f.ctx, "tale", []string{"a", "b", "old", "unknown"})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Reconcile() changed %d, want 2 (heal a, bind old)", n)
	}
	if f.persister.Saves() != saves+1 {
		t.Errorf("Reconcile() wrote %d times, want 1", f.persister.Saves()-saves)
	}
	if rec, _ := f.store.Lookup("tale", "a"); rec.Approved {
		t.Error("stale approval of a survived Reconcile")
	}
	if rec, _ := f.store.Lookup("tale", "old"); !rec.Approved || rec.Fingerprint != fingerprint.Of([]byte("O")) {
		t.Errorf("old = %+v, want bound approval", rec)
	}
	if _, ok := f.store.Lookup("tale", "unknown"); ok {
		t.Error("Reconcile() created a record")
	}
}

func TestStore_Enumeration(t *testing.T) {
	f := newFixture(t, `{"zeta": {"n2": true, "n1": false}, "alpha": {}}`, nil)

	if got, want := f.store.Stories(), []string{"alpha", "zeta"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Stories() = %v, want %v", got, want)
	}
	if got, want := f.store.Nodes("zeta"), []string{"n1", "n2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Nodes() = %v, want %v", got, want)
	}
	if got := f.store.Nodes("missing"); len(got) != 0 {
		t.Errorf("Nodes(missing) = %v", got)
	}
}

func TestOpen_Corrupt(t *testing.T) {
	docs := []string{
		`{"tale": {"start": "yes"}}`,
		`{"tale": {"start": null}}`,
		`{"tale": [true]}`,
		`[1, 2]`,
		`{"tale": `,
	}
	for _, doc := range docs {
		_, err := Open(context.Background(), NewMemoryPersister([]byte(doc)), fingerprint.NewEngine(content.NewMemoryStore()))
		if !errors.Is(err, ErrCorrupt) {
			t.Errorf("Open(%s) error = %v, want ErrCorrupt", doc, err)
		}
	}

	s, err := Open(context.Background(), NewMemoryPersister([]byte("  \n")), nil)
	if err != nil || len(s.Stories()) != 0 {
		t.Errorf("Open(blank) = %v, %v; want empty store", s, err)
	}
}

func TestFilePersister(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "approvals.json")
	p := NewFilePersister(path)

	data, err := p.Load(ctx)
	if err != nil || data != nil {
		t.Fatalf("Load() before save = %q, %v; want nil, nil", data, err)
	}

	mem := content.NewMemoryStore()
	if err := mem.Write(ctx, "tale", "start", []byte("x")); err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, p, fingerprint.NewEngine(mem))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.BulkSet(ctx, "tale", []string{"start", "end"}, true); err != nil {
		t.Fatalf("BulkSet() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	if !strings.HasPrefix(text, "{\n  \"tale\": {\n    \"end\": {") {
		t.Errorf("document not indented with sorted keys:\n%s", text)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	reopened, err := Open(ctx, NewFilePersister(path), fingerprint.NewEngine(mem))
	if err != nil {
		t.Fatal(err)
	}
	if rec, ok := reopened.Lookup("tale", "start"); !ok || !rec.Approved {
		t.Errorf("reloaded start = %+v, %v", rec, ok)
	}
}

func TestFilePersister_Lock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approvals.json")
	first := NewFilePersister(path)
	second := NewFilePersister(path)

	if err := first.Lock(); err != nil {
		t.Fatalf("first Lock() error = %v", err)
	}
	if err := second.Lock(); !errors.Is(err, ErrLocked) {
		t.Errorf("second Lock() error = %v, want ErrLocked", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := second.Lock(); err != nil {
		t.Errorf("Lock() after release error = %v", err)
	}
	second.Unlock()
}

func TestStore_CheckDoesNotWrite(t *testing.T) {
	f := newFixture(t, `{"tale": {"legacy": true}}`, map[string]string{"a": "A", "legacy": "L"})
	if err := f.store.Set(f.ctx, "tale", "a", true); err != nil {
		t.Fatal(err)
	}
	f.edit(t, "a", "A2")
	saves := f.persister.Saves()

	tests := []struct {
		node  string
		found bool
		ok    bool
		stale bool
	}{
		{"a", true, false, true},
		{"legacy", true, true, false},
		{"fresh", false, false, false},
	}
	for _, tt := range tests {
		v, err := f.store.Check(f.ctx, "tale", tt.node)
		if err != nil {
			t.Fatalf("Check(%s) error = %v", tt.node, err)
		}
		if v.Found != tt.found || v.Approved != tt.ok || v.Stale != tt.stale {
			t.Errorf("Check(%s) = %+v, want found=%v approved=%v stale=%v", tt.node, v, tt.found, tt.ok, tt.stale)
		}
	}
	if f.persister.Saves() != saves {
		t.Error("Check() wrote the document")
	}
	if f.store.Unbound() != 1 {
		t.Error("Check() bound a legacy entry")
	}
}
