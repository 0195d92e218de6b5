package collab

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot"
	"notebookCollab/backend/internal/ot/operation"
)

type memSnapshots struct {
	mu    sync.Mutex
	saved map[string]*notebook.Notebook
	owner map[string]uint64
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{saved: map[string]*notebook.Notebook{}, owner: map[string]uint64{}}
}

func (m *memSnapshots) CreateNotebook(ctx context.Context, ownerID uint64, nb *notebook.Notebook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner[nb.ID] = ownerID
	m.saved[nb.ID] = nb
	return nil
}

func (m *memSnapshots) SaveNotebookSnapshot(ctx context.Context, nb *notebook.Notebook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[nb.ID] = nb
	return nil
}

func (m *memSnapshots) LatestNotebookSnapshot(ctx context.Context, id string) (*notebook.Notebook, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nb, ok := m.saved[id]
	return nb, ok, nil
}

type memLog struct {
	mu  sync.Mutex
	ops []AppliedOp
}

func (l *memLog) Append(ctx context.Context, notebookID string, op AppliedOp) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
	return nil
}

func (l *memLog) Since(ctx context.Context, notebookID string, from uint32, limit int) ([]AppliedOp, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []AppliedOp
	for _, op := range l.ops {
		if op.Revision > from {
			out = append(out, op)
		}
	}
	return out, nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (p *memPublisher) Enqueue(ctx context.Context, evt ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func newTestService(t *testing.T, opt Options, cells ...notebook.Cell) *InMemoryService {
	t.Helper()
	svc := NewInMemoryService(opt)
	_, err := svc.CreateNotebook(context.Background(), 1, &notebook.Notebook{ID: "nb", Title: "Incident", Cells: cells})
	if err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}
	return svc
}

func textOf(t *testing.T, svc Service, cellID string) string {
	t.Helper()
	nb, err := svc.Notebook(context.Background(), "nb")
	if err != nil {
		t.Fatalf("Notebook: %v", err)
	}
	c, ok := nb.CellByID(cellID)
	if !ok {
		t.Fatalf("cell %s missing", cellID)
	}
	s, _ := c.(notebook.ContentCell).TextContent()
	return s
}

func replaceText(t *testing.T, svc Service, cellID string, start, end int, text string) operation.ReplaceText {
	t.Helper()
	nb, err := svc.Notebook(context.Background(), "nb")
	if err != nil {
		t.Fatalf("Notebook: %v", err)
	}
	op, err := ot.NewReplaceText(nb, cellID, start, end, text, nil)
	if err != nil {
		t.Fatalf("NewReplaceText: %v", err)
	}
	return op
}

func TestSubmitAdvancesRevision(t *testing.T) {
	pub := &memPublisher{}
	oplog := &memLog{}
	svc := newTestService(t, Options{Publisher: pub, Log: oplog}, notebook.Text{ID: "c1", Content: "Hello world"})
	ctx := context.Background()

	before := testutil.ToFloat64(operationsApplied.WithLabelValues("replace_text"))
	applied, err := svc.Submit(ctx, "nb", 7, 0, "client-a", 1, replaceText(t, svc, "c1", 6, 11, "Rust"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if applied.Revision != 1 || applied.AuthorID != 7 || applied.OperationID == "" {
		t.Fatalf("applied = %+v", applied)
	}
	if got := textOf(t, svc, "c1"); got != "Hello Rust" {
		t.Fatalf("content = %q", got)
	}
	if rev, _ := svc.CurrentRevision(ctx, "nb"); rev != 1 {
		t.Fatalf("revision = %d", rev)
	}
	if len(applied.Changes) != 1 {
		t.Fatalf("changes = %v", applied.Changes)
	}
	if len(pub.events) != 1 || pub.events[0].NotebookID != "nb" || pub.events[0].Revision != 1 {
		t.Fatalf("events = %+v", pub.events)
	}
	if len(oplog.ops) != 1 || oplog.ops[0].OperationID != applied.OperationID {
		t.Fatalf("log = %+v", oplog.ops)
	}
	if got := testutil.ToFloat64(operationsApplied.WithLabelValues("replace_text")) - before; got != 1 {
		t.Fatalf("applied counter moved by %v", got)
	}
}

func TestSubmitTransformsConcurrentEdits(t *testing.T) {
	svc := newTestService(t, Options{}, notebook.Text{ID: "c1", Content: "world"})
	ctx := context.Background()

	// both clients edit revision 0
	first := replaceText(t, svc, "c1", 0, 0, "Hello ")
	second := replaceText(t, svc, "c1", 5, 5, "!")

	if _, err := svc.Submit(ctx, "nb", 1, 0, "a", 1, first); err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	applied, err := svc.Submit(ctx, "nb", 2, 0, "b", 1, second)
	if err != nil {
		t.Fatalf("Submit second: %v", err)
	}
	if got := textOf(t, svc, "c1"); got != "Hello world!" {
		t.Fatalf("content = %q", got)
	}
	rt, ok := applied.Operation.Op.(operation.ReplaceText)
	if !ok || rt.Start != 11 || rt.End != 11 {
		t.Fatalf("transformed = %#v", applied.Operation.Op)
	}
}

func TestSubmitDropsEditOfRemovedCell(t *testing.T) {
	svc := newTestService(t, Options{}, notebook.Text{ID: "c1", Content: "gone"}, notebook.Text{ID: "c2", Content: "kept"})
	ctx := context.Background()
	nb, _ := svc.Notebook(ctx, "nb")

	edit := replaceText(t, svc, "c1", 0, 4, "still here")
	remove, err := ot.NewRemoveCells(nb, "c1")
	if err != nil {
		t.Fatalf("NewRemoveCells: %v", err)
	}
	if _, err := svc.Submit(ctx, "nb", 1, 0, "a", 1, remove); err != nil {
		t.Fatalf("Submit remove: %v", err)
	}

	before := testutil.ToFloat64(operationsDropped.WithLabelValues("replace_text"))
	if _, err := svc.Submit(ctx, "nb", 2, 0, "b", 1, edit); !errors.Is(err, ErrOperationDropped) {
		t.Fatalf("err = %v, want ErrOperationDropped", err)
	}
	if got := testutil.ToFloat64(operationsDropped.WithLabelValues("replace_text")) - before; got != 1 {
		t.Fatalf("dropped counter moved by %v", got)
	}
	if rev, _ := svc.CurrentRevision(ctx, "nb"); rev != 1 {
		t.Fatalf("revision = %d", rev)
	}
}

func TestSubmitRejects(t *testing.T) {
	svc := newTestService(t, Options{}, notebook.Text{ID: "c1", Content: "abc"})
	ctx := context.Background()
	title := func(s string) operation.Operation {
		return operation.UpdateNotebookTitle{Title: s, OldTitle: "Incident"}
	}

	if _, err := svc.Submit(ctx, "nb", 1, 0, "a", 2, title("one")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cases := []struct {
		name     string
		notebook string
		base     uint32
		seq      uint64
		op       operation.Operation
		want     error
	}{
		{"duplicate seq", "nb", 1, 2, title("two"), ErrDuplicateOrOutOfOrder},
		{"older seq", "nb", 1, 1, title("two"), ErrDuplicateOrOutOfOrder},
		{"future base", "nb", 5, 3, title("two"), ErrRevisionConflict},
		{"unknown notebook", "missing", 0, 3, title("two"), ErrNotebookNotFound},
		{"engine error", "nb", 1, 3, operation.RemoveLabel{Label: notebook.Label{Key: "nope"}}, notebook.ErrLabelNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tc.notebook, 1, tc.base, "a", tc.seq, tc.op)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSubmitBaseOlderThanRing(t *testing.T) {
	svc := newTestService(t, Options{RingCapacity: 2}, notebook.Text{ID: "c1", Content: ""})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		op := operation.UpdateNotebookTitle{Title: string(rune('a' + i))}
		if _, err := svc.Submit(ctx, "nb", 1, uint32(i), "", 0, op); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	// ring keeps revisions 2 and 3 only
	_, err := svc.Submit(ctx, "nb", 1, 0, "", 0, operation.AddLabel{Label: notebook.Label{Key: "x"}})
	if !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Submit(ctx, "nb", 1, 1, "", 0, operation.AddLabel{Label: notebook.Label{Key: "x"}}); err != nil {
		t.Fatalf("Submit at oldest kept base: %v", err)
	}
}

func TestOpsSince(t *testing.T) {
	oplog := &memLog{}
	svc := newTestService(t, Options{RingCapacity: 2, Log: oplog}, notebook.Text{ID: "c1", Content: ""})
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := svc.Submit(ctx, "nb", 1, uint32(i), "", 0, operation.UpdateNotebookTitle{Title: "t"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	ops, err := svc.OpsSince(ctx, "nb", 2, 0)
	if err != nil || len(ops) != 2 || ops[0].Revision != 3 {
		t.Fatalf("OpsSince(2) = %+v, %v", ops, err)
	}
	ops, err = svc.OpsSince(ctx, "nb", 2, 1)
	if err != nil || len(ops) != 1 {
		t.Fatalf("OpsSince(2, limit 1) = %+v, %v", ops, err)
	}
	// older than the ring, served by the log
	ops, err = svc.OpsSince(ctx, "nb", 0, 0)
	if err != nil || len(ops) != 4 || ops[0].Revision != 1 {
		t.Fatalf("OpsSince(0) = %+v, %v", ops, err)
	}
	ops, err = svc.OpsSince(ctx, "nb", 4, 0)
	if err != nil || len(ops) != 0 {
		t.Fatalf("OpsSince(4) = %+v, %v", ops, err)
	}
}

func TestCreateNotebook(t *testing.T) {
	snaps := newMemSnapshots()
	svc := NewInMemoryService(Options{Snapshots: snaps})
	ctx := context.Background()

	nb, err := svc.CreateNotebook(ctx, 9, &notebook.Notebook{Title: "fresh"})
	if err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}
	if nb.ID == "" || snaps.owner[nb.ID] != 9 {
		t.Fatalf("created %+v, owners %v", nb, snaps.owner)
	}
	if _, err := svc.CreateNotebook(ctx, 9, nb); !errors.Is(err, ErrNotebookExists) {
		t.Fatalf("second create err = %v", err)
	}

	dup := &notebook.Notebook{ID: "dup", Cells: []notebook.Cell{notebook.Divider{ID: "x"}, notebook.Divider{ID: "x"}}}
	if _, err := svc.CreateNotebook(ctx, 9, dup); !errors.Is(err, notebook.ErrDuplicateID) {
		t.Fatalf("duplicate cells err = %v", err)
	}
	bad := &notebook.Notebook{ID: "bad", Cells: []notebook.Cell{notebook.Text{
		ID: "t", Content: "ab", Formatting: notebook.Formatting{notebook.At(5, notebook.StartOf(notebook.SpanBold))},
	}}}
	if _, err := svc.CreateNotebook(ctx, 9, bad); !errors.Is(err, notebook.ErrInvalidTextOffset) {
		t.Fatalf("bad formatting err = %v", err)
	}
}

func TestLabelOrderSurvivesUndo(t *testing.T) {
	ctx := context.Background()
	snaps := newMemSnapshots()
	svc := NewInMemoryService(Options{Snapshots: snaps})
	created, err := svc.CreateNotebook(ctx, 1, &notebook.Notebook{ID: "nb", Labels: []notebook.Label{{Key: "z"}, {Key: "a"}}})
	if err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}
	want := []notebook.Label{{Key: "a"}, {Key: "z"}}
	if !reflect.DeepEqual(created.Labels, want) {
		t.Fatalf("labels = %v", created.Labels)
	}

	remove := operation.RemoveLabel{Label: notebook.Label{Key: "z"}}
	if _, err := svc.Submit(ctx, "nb", 1, 0, "", 0, remove); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Submit(ctx, "nb", 1, 1, "", 0, ot.Invert(remove)); err != nil {
		t.Fatalf("Submit undo: %v", err)
	}
	nb, _ := svc.Notebook(ctx, "nb")
	if !reflect.DeepEqual(nb.Labels, want) {
		t.Fatalf("labels after undo = %v", nb.Labels)
	}

	// 旧快照里的无序标签在加载时排好
	snaps.saved["old"] = &notebook.Notebook{ID: "old", Labels: []notebook.Label{{Key: "z"}, {Key: "a"}}}
	loaded, err := svc.Notebook(ctx, "old")
	if err != nil {
		t.Fatalf("Notebook: %v", err)
	}
	if !reflect.DeepEqual(loaded.Labels, want) {
		t.Fatalf("loaded labels = %v", loaded.Labels)
	}
	if snaps.saved["old"].Labels[0].Key != "z" {
		t.Fatalf("stored snapshot modified")
	}
}

func TestSnapshotAndReload(t *testing.T) {
	snaps := newMemSnapshots()
	svc := newTestService(t, Options{Snapshots: snaps}, notebook.Text{ID: "c1", Content: "draft"})
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "nb", 1, 0, "", 0, replaceText(t, svc, "c1", 0, 5, "final")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.SaveSnapshot(ctx, "nb"); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if snaps.saved["nb"].Revision != 1 {
		t.Fatalf("saved revision = %d", snaps.saved["nb"].Revision)
	}

	// a fresh process picks the snapshot up
	restarted := NewInMemoryService(Options{Snapshots: snaps})
	if err := restarted.Load(ctx, "nb"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := textOf(t, restarted, "c1"); got != "final" {
		t.Fatalf("content = %q", got)
	}
	if err := restarted.Load(ctx, "other"); !errors.Is(err, ErrNotebookNotFound) {
		t.Fatalf("Load(other) = %v", err)
	}
	if err := restarted.SaveSnapshot(ctx, "other"); !errors.Is(err, ErrNotebookNotFound) {
		t.Fatalf("SaveSnapshot(other) = %v", err)
	}
}
