package operation

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"notebookCollab/backend/internal/notebook"
)

func TestEncodeTagsType(t *testing.T) {
	b, err := Encode(ReplaceText{CellID: "c1", Start: 1, End: 2, NewText: "x", OldText: "y"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"type":"replace_text","cellId":"c1","start":1,"end":2,"newText":"x","oldText":"y"}`
	if string(b) != want {
		t.Fatalf("Encode = %s, want %s", b, want)
	}
}

func TestDecode(t *testing.T) {
	bold := notebook.Formatting{
		notebook.At(0, notebook.StartOf(notebook.SpanBold)),
		notebook.At(2, notebook.EndOf(notebook.SpanBold)),
	}
	ops := []Operation{
		AddCells{
			Cells:    []notebook.CellWithIndex{{Cell: notebook.Text{ID: "a", Content: "hi", Formatting: bold}, Index: 1}},
			Position: &CellPosition{ReferenceID: "b", Side: After},
		},
		RemoveCells{
			RemovedCells:     []notebook.CellWithIndex{{Cell: notebook.Divider{ID: "d"}, Index: 0}},
			ReferencingCells: []notebook.CellWithIndex{{Cell: notebook.Graph{ID: "g", SourceIDs: []string{"d"}}, Index: 1}},
		},
		MoveCells{CellIDs: []string{"a", "b"}, FromIndex: 2, ToIndex: 0},
		MergeCells{TargetCellID: "a", SourceCellID: "b", GlueText: " ", TargetContentLength: 3, SourceCell: notebook.Heading{ID: "b", HeadingType: notebook.H1, Content: "x"}},
		SplitCell{CellID: "a", Cursor: Cursor{Anchor: 4, Focus: 2}, NewCellID: "n", RemovedText: "ab", RemovedFormatting: bold},
		SplitCell{CellID: "a", NewCellID: "n", NewCell: notebook.Code{ID: "n", Syntax: "go"}},
		UpdateCell{UpdatedCell: notebook.Checkbox{ID: "c", Checked: true}, OldCell: notebook.Checkbox{ID: "c"}},
		UpdateNotebookTitle{Title: "new", OldTitle: "old"},
		AddDataSource{Name: "prod", DataSource: notebook.DataSourceRef{ProviderType: "prometheus"}},
		SetSelectedDataSource{ProviderType: "prometheus", NewSelectedDataSource: "prod"},
		ReplaceLabel{OldLabel: notebook.Label{Key: "env"}, NewLabel: notebook.Label{Key: "env", Value: "prod"}},
		RemoveLabel{Label: notebook.Label{Key: "team"}},
	}
	for _, op := range ops {
		t.Run(string(op.OpType()), func(t *testing.T) {
			b, err := Encode(op)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode(%s): %v", b, err)
			}
			if !reflect.DeepEqual(got, op) {
				t.Fatalf("Decode = %#v, want %#v", got, op)
			}
		})
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"rewrite_everything"}`)); err == nil || !strings.Contains(err.Error(), "rewrite_everything") {
		t.Fatalf("err = %v", err)
	}
	if _, err := Decode([]byte(`{"cellId":"a"}`)); err == nil {
		t.Fatalf("operation without type accepted")
	}
	if _, err := Decode([]byte(`{"type":"update_cell","updatedCell":{"type":"sparkline","id":"x"}}`)); err == nil {
		t.Fatalf("unknown cell type accepted")
	}
}

func TestWire(t *testing.T) {
	var msg struct {
		Op Wire `json:"operation"`
	}
	if err := json.Unmarshal([]byte(`{"operation":{"type":"add_label","label":{"key":"env","value":"prod"}}}`), &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := AddLabel{Label: notebook.Label{Key: "env", Value: "prod"}}
	if !reflect.DeepEqual(msg.Op.Op, want) {
		t.Fatalf("Op = %#v", msg.Op.Op)
	}

	if err := json.Unmarshal([]byte(`{"operation":null}`), &msg); err != nil || msg.Op.Op != nil {
		t.Fatalf("null operation = %#v, %v", msg.Op.Op, err)
	}
	b, err := json.Marshal(msg)
	if err != nil || string(b) != `{"operation":null}` {
		t.Fatalf("Marshal = %s, %v", b, err)
	}
}

func TestCellIDs(t *testing.T) {
	cells := []notebook.CellWithIndex{{Cell: notebook.Divider{ID: "a"}}, {Cell: notebook.Text{ID: "b"}}}
	if got := CellIDs(cells); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("CellIDs = %v", got)
	}
}
