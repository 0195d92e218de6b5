package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"notebookCollab/backend/internal/collab"
	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot/change"
	"notebookCollab/backend/internal/ot/operation"
)

// 需要 mysql 的测试从 NOTEBOOK_TEST_MYSQL_DSN 读取连接串，未设置或连不上时跳过
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("NOTEBOOK_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skip: NOTEBOOK_TEST_MYSQL_DSN not set")
	}
	return dsn
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("mysql", testDSN(t))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestOperationRecordRoundTrip(t *testing.T) {
	applied := collab.AppliedOp{
		OperationID: "op-1",
		Revision:    4,
		AuthorID:    2,
		ClientID:    "tab-1",
		ClientSeq:   9,
		Operation:   operation.Wire{Op: operation.MoveCells{CellIDs: []string{"a"}, FromIndex: 0, ToIndex: 2}},
		Changes:     []change.Change{change.MoveCells{CellIDs: []string{"a"}, Index: 2}},
		AppliedAt:   time.Unix(1700000000, 0).UTC(),
	}
	rec, err := newOperationRecord("nb", applied)
	if err != nil {
		t.Fatalf("newOperationRecord: %v", err)
	}
	if rec.Type != "move_cells" || rec.NotebookID != "nb" || rec.Revision != 4 {
		t.Fatalf("record = %+v", rec)
	}
	got, err := rec.AppliedOp()
	if err != nil {
		t.Fatalf("AppliedOp: %v", err)
	}
	if !reflect.DeepEqual(got, applied) {
		t.Fatalf("AppliedOp = %#v\nwant %#v", got, applied)
	}
}

func TestOperationRecordWithoutChanges(t *testing.T) {
	rec, err := newOperationRecord("nb", collab.AppliedOp{Operation: operation.Wire{Op: operation.UpdateNotebookTitle{Title: "x"}}})
	if err != nil {
		t.Fatalf("newOperationRecord: %v", err)
	}
	if rec.Changes != "[]" {
		t.Fatalf("changes = %s", rec.Changes)
	}
	got, err := rec.AppliedOp()
	if err != nil || len(got.Changes) != 0 {
		t.Fatalf("AppliedOp = %+v, %v", got, err)
	}

	rec.Operation = `{"type":"nope"}`
	if _, err := rec.AppliedOp(); err == nil {
		t.Fatalf("corrupt operation accepted")
	}
}

func TestNotebookStore(t *testing.T) {
	db := openDB(t)
	s := NewNotebookStore(db)
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	id := uniqueID("nb")
	t.Cleanup(func() {
		db.Exec(`DELETE FROM notebook_snapshots WHERE notebook_id = ?`, id)
		db.Exec(`DELETE FROM notebooks WHERE id = ?`, id)
	})
	nb := &notebook.Notebook{ID: id, Title: "draft", Cells: []notebook.Cell{notebook.Text{ID: "c", Content: "hi"}}}
	if err := s.CreateNotebook(ctx, 5, nb); err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}
	if err := s.CreateNotebook(ctx, 5, nb); !errors.Is(err, collab.ErrNotebookExists) {
		t.Fatalf("second CreateNotebook = %v", err)
	}

	next := nb.Clone()
	next.Revision = 3
	next.Title = "final"
	if err := s.SaveNotebookSnapshot(ctx, next); err != nil {
		t.Fatalf("SaveNotebookSnapshot: %v", err)
	}
	// 同一版本再存一次不报错
	if err := s.SaveNotebookSnapshot(ctx, next); err != nil {
		t.Fatalf("SaveNotebookSnapshot again: %v", err)
	}

	got, ok, err := s.LatestNotebookSnapshot(ctx, id)
	if err != nil || !ok {
		t.Fatalf("LatestNotebookSnapshot = %v, %v", ok, err)
	}
	if got.Revision != 3 || got.Title != "final" || len(got.Cells) != 1 {
		t.Fatalf("latest = %+v", got)
	}
	if owner, err := s.OwnerID(ctx, id); err != nil || owner != 5 {
		t.Fatalf("OwnerID = %d, %v", owner, err)
	}

	if _, ok, err := s.LatestNotebookSnapshot(ctx, uniqueID("missing")); ok || err != nil {
		t.Fatalf("missing notebook = %v, %v", ok, err)
	}
	if _, err := s.OwnerID(ctx, uniqueID("missing")); !errors.Is(err, collab.ErrNotebookNotFound) {
		t.Fatalf("OwnerID(missing) = %v", err)
	}
}

func TestOperationLog(t *testing.T) {
	dsn := testDSN(t)
	db, err := InitMySQL(dsn)
	if err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}
	l := NewOperationLog(db)
	if err := l.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	id := uniqueID("nb")
	t.Cleanup(func() { db.Where("notebook_id = ?", id).Delete(&OperationRecord{}) })

	ctx := context.Background()
	for rev := uint32(1); rev <= 3; rev++ {
		op := collab.AppliedOp{
			OperationID: uniqueID("op"),
			Revision:    rev,
			Operation:   operation.Wire{Op: operation.UpdateNotebookTitle{Title: fmt.Sprint(rev)}},
			Changes:     []change.Change{change.UpdateNotebookTitle{Title: fmt.Sprint(rev)}},
			AppliedAt:   time.Now().UTC().Truncate(time.Second),
		}
		if err := l.Append(ctx, id, op); err != nil {
			t.Fatalf("Append %d: %v", rev, err)
		}
	}

	ops, err := l.Since(ctx, id, 1, 0)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(ops) != 2 || ops[0].Revision != 2 || ops[1].Revision != 3 {
		t.Fatalf("Since(1) = %+v", ops)
	}
	if title, ok := ops[1].Operation.Op.(operation.UpdateNotebookTitle); !ok || title.Title != "3" {
		t.Fatalf("operation = %#v", ops[1].Operation.Op)
	}
	if ops, err := l.Since(ctx, id, 0, 1); err != nil || len(ops) != 1 {
		t.Fatalf("Since(0, 1) = %+v, %v", ops, err)
	}
}
