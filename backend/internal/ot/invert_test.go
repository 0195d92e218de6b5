package ot

import (
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot/formatting"
	"notebookCollab/backend/internal/ot/operation"
)

// genNotebook draws a notebook of text cells, some of them bold, optionally followed by a graph
// that shows the first cell.
func genNotebook(t *rapid.T) *notebook.Notebook {
	nb := &notebook.Notebook{ID: "nb", Title: "t"}
	n := rapid.IntRange(1, 4).Draw(t, "cells")
	for i := 0; i < n; i++ {
		c := notebook.Text{
			ID:      fmt.Sprintf("c%d", i),
			Content: rapid.StringMatching(`[a-zé ]{0,8}`).Draw(t, "content"),
		}
		if l := notebook.CharCount(c.Content); l > 0 && rapid.Bool().Draw(t, "bold") {
			from := rapid.IntRange(0, l-1).Draw(t, "from")
			to := rapid.IntRange(from+1, l).Draw(t, "to")
			c.Formatting = notebook.Formatting{
				notebook.At(from, notebook.StartOf(notebook.SpanBold)),
				notebook.At(to, notebook.EndOf(notebook.SpanBold)),
			}
		}
		nb.Cells = append(nb.Cells, c)
	}
	if rapid.Bool().Draw(t, "graph") {
		nb.Cells = append(nb.Cells, notebook.Graph{ID: "g", SourceIDs: []string{"c0"}})
	}
	if rapid.Bool().Draw(t, "label") {
		nb.Labels = []notebook.Label{{Key: "m"}}
	}
	return nb
}

// genOperation draws an operation that applies to nb, built the way a client would build it.
func genOperation(t *rapid.T, nb *notebook.Notebook) operation.Operation {
	var texts []notebook.Cell
	for _, c := range nb.Cells {
		if _, ok := c.(notebook.ContentCell); ok {
			texts = append(texts, c)
		}
	}
	pickText := func() (string, int) {
		c := rapid.SampledFrom(texts).Draw(t, "cell")
		s, _ := c.(notebook.ContentCell).TextContent()
		return c.CellID(), notebook.CharCount(s)
	}
	n := len(nb.Cells)

	switch rapid.IntRange(0, 7).Draw(t, "kind") {
	case 0:
		id, l := pickText()
		start := rapid.IntRange(0, l).Draw(t, "start")
		end := rapid.IntRange(start, l).Draw(t, "end")
		ins := rapid.StringMatching(`[xyø]{0,4}`).Draw(t, "text")
		var f notebook.Formatting
		if m := notebook.CharCount(ins); m > 0 && rapid.Bool().Draw(t, "italic") {
			f = notebook.Formatting{
				notebook.At(0, notebook.StartOf(notebook.SpanItalics)),
				notebook.At(m, notebook.EndOf(notebook.SpanItalics)),
			}
		}
		op, err := NewReplaceText(nb, id, start, end, ins, f)
		if err != nil {
			t.Fatalf("NewReplaceText: %v", err)
		}
		return op
	case 1:
		id, l := pickText()
		anchor := rapid.IntRange(0, l).Draw(t, "anchor")
		focus := rapid.IntRange(0, l).Draw(t, "focus")
		op, err := NewSplitCell(nb, id, operation.Cursor{Anchor: anchor, Focus: focus}, "new")
		if err != nil {
			t.Fatalf("NewSplitCell: %v", err)
		}
		return op
	case 2:
		if len(texts) < 2 {
			return operation.UpdateNotebookTitle{Title: "merged", OldTitle: nb.Title}
		}
		// text cells come first, so neighbours are adjacent
		i := rapid.IntRange(0, len(texts)-2).Draw(t, "target")
		glue := rapid.SampledFrom([]string{"", " ", "\n"}).Draw(t, "glue")
		op, err := NewMergeCells(nb, texts[i].CellID(), texts[i+1].CellID(), glue, nil)
		if err != nil {
			t.Fatalf("NewMergeCells: %v", err)
		}
		return op
	case 3:
		var ids []string
		for _, c := range nb.Cells {
			if rapid.Bool().Draw(t, "remove_"+c.CellID()) {
				ids = append(ids, c.CellID())
			}
		}
		if len(ids) == 0 {
			ids = []string{nb.Cells[0].CellID()}
		}
		op, err := NewRemoveCells(nb, ids...)
		if err != nil {
			t.Fatalf("NewRemoveCells: %v", err)
		}
		return op
	case 4:
		k := rapid.IntRange(1, n).Draw(t, "block")
		from := rapid.IntRange(0, n-k).Draw(t, "from")
		var ids []string
		for _, c := range nb.Cells[from : from+k] {
			ids = append(ids, c.CellID())
		}
		return operation.MoveCells{CellIDs: ids, FromIndex: from, ToIndex: rapid.IntRange(0, n-k).Draw(t, "to")}
	case 5:
		cell := notebook.Code{ID: "new", Content: "x := 1", Syntax: "go"}
		if rapid.Bool().Draw(t, "anchored") {
			ref := rapid.IntRange(0, n-1).Draw(t, "ref")
			side := rapid.SampledFrom([]operation.Side{operation.Before, operation.After}).Draw(t, "side")
			at := ref
			if side == operation.After {
				at++
			}
			return operation.AddCells{
				Cells:    []notebook.CellWithIndex{{Cell: cell, Index: at}},
				Position: &operation.CellPosition{ReferenceID: nb.Cells[ref].CellID(), Side: side},
			}
		}
		return operation.AddCells{Cells: []notebook.CellWithIndex{{Cell: cell, Index: rapid.IntRange(0, n).Draw(t, "index")}}}
	case 6:
		return operation.UpdateNotebookTitle{Title: rapid.StringMatching(`[A-Z][a-z]{0,6}`).Draw(t, "title"), OldTitle: nb.Title}
	default:
		if _, ok := nb.LabelByKey("m"); ok {
			return operation.ReplaceLabel{OldLabel: notebook.Label{Key: "m"}, NewLabel: notebook.Label{Key: "a", Value: "1"}}
		}
		return operation.AddLabel{Label: notebook.Label{Key: "z", Value: "2"}}
	}
}

func TestApplyInvertProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nb := genNotebook(t)
		op := genOperation(t, nb)
		before := encode(nb)

		next, err := Apply(nb, op)
		if err != nil {
			t.Fatalf("Apply %s: %v", op.OpType(), err)
		}
		if next.Revision != nb.Revision+1 {
			t.Fatalf("revision %d after %d", next.Revision, nb.Revision)
		}
		if encode(nb) != before {
			t.Fatalf("input modified by %s", op.OpType())
		}
		for _, c := range next.Cells {
			if cc, ok := c.(notebook.ContentCell); ok {
				s, f := cc.TextContent()
				if err := formatting.Validate(s, f); err != nil {
					t.Fatalf("cell %s invalid after %s: %v", c.CellID(), op.OpType(), err)
				}
			}
		}

		back, err := Apply(next, Invert(op))
		if err != nil {
			t.Fatalf("Apply inverse of %s: %v", op.OpType(), err)
		}
		if got := encode(back); got != before {
			t.Fatalf("undo of %s\nwant %s\ngot  %s", op.OpType(), before, got)
		}
	})
}

// A transformed operation still applies after its predecessor and still undoes cleanly.
func TestTransformProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nb := genNotebook(t)
		pred := genOperation(t, nb)
		succ := genOperation(t, nb)

		got, err := Transform(StateFromNotebook(nb), succ, pred)
		if err != nil {
			t.Fatalf("Transform %s after %s: %v", succ.OpType(), pred.OpType(), err)
		}
		if got == nil {
			return
		}
		post, err := Apply(nb, pred)
		if err != nil {
			t.Fatalf("Apply %s: %v", pred.OpType(), err)
		}
		final, err := Apply(post, got)
		if err != nil {
			t.Fatalf("Apply %s after %s: %v\n%#v", succ.OpType(), pred.OpType(), err, got)
		}
		back, err := Apply(final, Invert(got))
		if err != nil {
			t.Fatalf("undo %s: %v", got.OpType(), err)
		}
		if encode(back) != encode(post) {
			t.Fatalf("undo of transformed %s after %s\nwant %s\ngot  %s", got.OpType(), pred.OpType(), encode(post), encode(back))
		}
	})
}

// relevantState holds only the cells RelevantCellIDs names for ops, at their real indexes.
func relevantState(nb *notebook.Notebook, ops ...operation.Operation) State {
	var cells []notebook.CellWithIndex
	seen := map[string]bool{}
	for _, op := range ops {
		for _, id := range RelevantCellIDs(op) {
			i := nb.CellIndex(id)
			if i < 0 || seen[id] {
				continue
			}
			seen[id] = true
			cells = append(cells, notebook.CellWithIndex{Cell: nb.Cells[i], Index: i})
		}
	}
	return NewState(cells)
}

// Transform gives the same result whether it sees the whole notebook or only the relevant cells.
func TestTransformWithRelevantCellsOnly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nb := genNotebook(t)
		pred := genOperation(t, nb)
		succ := genOperation(t, nb)

		want, err := Transform(StateFromNotebook(nb), succ, pred)
		if err != nil {
			t.Fatalf("Transform %s after %s: %v", succ.OpType(), pred.OpType(), err)
		}
		got, err := Transform(relevantState(nb, pred, succ), succ, pred)
		if err != nil {
			t.Fatalf("Transform %s after %s with relevant cells: %v", succ.OpType(), pred.OpType(), err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s after %s\nwant %#v\ngot  %#v", succ.OpType(), pred.OpType(), want, got)
		}
	})
}
