package ot

import (
	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot/formatting"
	"notebookCollab/backend/internal/ot/operation"
)

// The builders below read the current notebook to fill in the prior state an operation carries,
// so the result is always invertible against nb.

func NewReplaceText(nb *notebook.Notebook, cellID string, start, end int, text string, f notebook.Formatting) (operation.ReplaceText, error) {
	_, cell, err := contentCell(nb, cellID)
	if err != nil {
		return operation.ReplaceText{}, err
	}
	content, current := cell.TextContent()
	r, err := formatting.ReplaceText(content, current, start, end, text, f)
	if err != nil {
		return operation.ReplaceText{}, withCell(err, cellID)
	}
	return operation.ReplaceText{
		CellID:        cellID,
		Start:         start,
		End:           end,
		NewText:       text,
		NewFormatting: f,
		OldText:       r.OldText,
		OldFormatting: r.OldFormatting,
	}, nil
}

// NewRemoveCells removes the given cells and records every remaining cell that displays data of
// one of them.
func NewRemoveCells(nb *notebook.Notebook, ids ...string) (operation.RemoveCells, error) {
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if nb.CellIndex(id) < 0 {
			return operation.RemoveCells{}, notebook.CellNotFound(id)
		}
		removed[id] = true
	}
	var op operation.RemoveCells
	for i, c := range nb.Cells {
		if removed[c.CellID()] {
			op.RemovedCells = append(op.RemovedCells, notebook.CellWithIndex{Cell: c, Index: i})
		}
	}
	op.ReferencingCells = referencing(nb, removed)
	return op, nil
}

func referencing(nb *notebook.Notebook, ids map[string]bool) []notebook.CellWithIndex {
	var out []notebook.CellWithIndex
	for i, c := range nb.Cells {
		if ids[c.CellID()] {
			continue
		}
		for id := range ids {
			if notebook.References(c, id) {
				out = append(out, notebook.CellWithIndex{Cell: c, Index: i})
				break
			}
		}
	}
	return out
}

// NewSplitCell splits cellID at the cursor. The new cell copies the type and attributes of the
// split cell.
func NewSplitCell(nb *notebook.Notebook, cellID string, cursor operation.Cursor, newCellID string) (operation.SplitCell, error) {
	_, cell, err := contentCell(nb, cellID)
	if err != nil {
		return operation.SplitCell{}, err
	}
	if nb.CellIndex(newCellID) >= 0 {
		return operation.SplitCell{}, notebook.DuplicateID(newCellID)
	}
	content, f := cell.TextContent()
	lo, hi := cursor.Bounds()
	_, middle, tail, err := formatting.Split(content, f, lo, hi)
	if err != nil {
		return operation.SplitCell{}, withCell(err, cellID)
	}
	newCell := cell.WithTextContent(tail.Content, tail.Formatting).WithID(newCellID)
	return operation.SplitCell{
		CellID:            cellID,
		Cursor:            cursor,
		NewCellID:         newCellID,
		NewCell:           newCell,
		RemovedText:       middle.Content,
		RemovedFormatting: middle.Formatting,
	}, nil
}

// NewMergeCells merges sourceID into the cell right before it.
func NewMergeCells(nb *notebook.Notebook, targetID, sourceID, glue string, glueFormatting notebook.Formatting) (operation.MergeCells, error) {
	ti, target, err := contentCell(nb, targetID)
	if err != nil {
		return operation.MergeCells{}, err
	}
	si, _, err := contentCell(nb, sourceID)
	if err != nil {
		return operation.MergeCells{}, err
	}
	if si != ti+1 {
		return operation.MergeCells{}, notebook.InvalidInsertIndex(si)
	}
	content, _ := target.TextContent()
	return operation.MergeCells{
		TargetCellID:        targetID,
		SourceCellID:        sourceID,
		GlueText:            glue,
		GlueFormatting:      glueFormatting,
		TargetContentLength: notebook.CharCount(content),
		SourceCell:          nb.Cells[si],
		ReferencingCells:    referencing(nb, map[string]bool{sourceID: true}),
	}, nil
}

func NewUpdateCell(nb *notebook.Notebook, updated notebook.Cell) (operation.UpdateCell, error) {
	old, ok := nb.CellByID(updated.CellID())
	if !ok {
		return operation.UpdateCell{}, notebook.CellNotFound(updated.CellID())
	}
	return operation.UpdateCell{UpdatedCell: updated, OldCell: old}, nil
}
