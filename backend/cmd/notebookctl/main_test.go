package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"notebookCollab/backend/internal/httpapi/middleware"
	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot/operation"
)

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

const testNotebook = `{"id":"nb","title":"Incident","timeRange":{"from":"2024-01-01T00:00:00Z","to":"2024-01-02T00:00:00Z"},
"cells":[{"type":"text","id":"c1","content":"Hello world!"}]}`

func TestApplyCmd(t *testing.T) {
	dir := t.TempDir()
	nbPath := createTestFile(t, dir, "nb.json", testNotebook)
	opPath := createTestFile(t, dir, "op.json", `{"type":"replace_text","cellId":"c1","start":6,"end":11,"newText":"Rust","oldText":"world"}`)

	var out bytes.Buffer
	if err := (&ApplyCmd{Notebook: nbPath, Op: opPath}).Run(&out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var nb notebook.Notebook
	if err := json.Unmarshal(out.Bytes(), &nb); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	text, ok := nb.Cells[0].(notebook.Text)
	if !ok || text.Content != "Hello Rust!" || nb.Revision != 1 {
		t.Fatalf("notebook = %+v", nb)
	}

	out.Reset()
	if err := (&ApplyCmd{Notebook: nbPath, Op: opPath, Changes: true}).Run(&out); err != nil {
		t.Fatalf("Run --changes: %v", err)
	}
	if !strings.Contains(out.String(), `"changes"`) || !strings.Contains(out.String(), `"update_cell"`) {
		t.Fatalf("output without changes: %s", out.String())
	}
}

func TestApplyCmdReportsEngineError(t *testing.T) {
	dir := t.TempDir()
	nbPath := createTestFile(t, dir, "nb.json", testNotebook)
	opPath := createTestFile(t, dir, "op.json", `{"type":"replace_text","cellId":"zz","start":0,"end":0,"newText":"x"}`)

	err := (&ApplyCmd{Notebook: nbPath, Op: opPath}).Run(&bytes.Buffer{})
	if !errors.Is(err, notebook.ErrCellNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestTransformCmd(t *testing.T) {
	dir := t.TempDir()
	nbPath := createTestFile(t, dir, "nb.json", testNotebook)
	pred := createTestFile(t, dir, "pred.json", `{"type":"replace_text","cellId":"c1","start":0,"end":5,"newText":"Goodbye","oldText":"Hello"}`)
	succ := createTestFile(t, dir, "succ.json", `{"type":"replace_text","cellId":"c1","start":11,"end":12,"newText":"?","oldText":"!"}`)

	var out bytes.Buffer
	if err := (&TransformCmd{Notebook: nbPath, Successor: succ, Predecessor: pred}).Run(&out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var got operation.Wire
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	rt, ok := got.Op.(operation.ReplaceText)
	if !ok || rt.Start != 13 || rt.End != 14 {
		t.Fatalf("transformed = %#v", got.Op)
	}

	// 前驱删除了单元格，后继被丢弃
	remove := createTestFile(t, dir, "remove.json", `{"type":"remove_cells","removedCells":[{"cell":{"type":"text","id":"c1","content":"Hello world!"},"index":0}]}`)
	out.Reset()
	if err := (&TransformCmd{Notebook: nbPath, Successor: succ, Predecessor: remove}).Run(&out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(out.String()) != "null" {
		t.Fatalf("dropped operation printed %s", out.String())
	}
}

func TestInvertAndRelevantCmd(t *testing.T) {
	dir := t.TempDir()
	opPath := createTestFile(t, dir, "op.json", `{"type":"move_cells","cellIds":["a","b"],"fromIndex":0,"toIndex":2}`)

	var out bytes.Buffer
	if err := (&InvertCmd{Op: opPath}).Run(&out); err != nil {
		t.Fatalf("Invert: %v", err)
	}
	var inv operation.Wire
	if err := json.Unmarshal(out.Bytes(), &inv); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if mv, ok := inv.Op.(operation.MoveCells); !ok || mv.FromIndex != 2 || mv.ToIndex != 0 {
		t.Fatalf("inverse = %#v", inv.Op)
	}

	out.Reset()
	if err := (&RelevantCmd{Op: opPath}).Run(&out); err != nil {
		t.Fatalf("Relevant: %v", err)
	}
	var ids []string
	if err := json.Unmarshal(out.Bytes(), &ids); err != nil || len(ids) != 2 || ids[0] != "a" {
		t.Fatalf("ids = %v, %v", ids, err)
	}
}

func TestTokenCmd(t *testing.T) {
	var out bytes.Buffer
	if err := (&TokenCmd{Secret: "s", UserID: 7, Username: "ada", TTL: time.Hour}).Run(&out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	claims, err := middleware.ParseToken("s", strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "ada" || claims.Type != middleware.TokenAccess {
		t.Fatalf("claims = %+v", claims)
	}
}
