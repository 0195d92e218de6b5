package ot

import (
	"errors"
	"sort"

	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot/change"
	"notebookCollab/backend/internal/ot/formatting"
	"notebookCollab/backend/internal/ot/operation"
)

// Apply executes op against nb and returns the next revision of the notebook.
// nb is left untouched whether or not the operation succeeds.
func Apply(nb *notebook.Notebook, op operation.Operation) (*notebook.Notebook, error) {
	next, _, err := ApplyWithChanges(nb, op)
	return next, err
}

// ApplyWithChanges is Apply that also reports the resolved changes, in the order they happened.
func ApplyWithChanges(nb *notebook.Notebook, op operation.Operation) (*notebook.Notebook, []change.Change, error) {
	if nb == nil {
		return nil, nil, notebook.InternalError("no notebook")
	}
	if op == nil {
		return nil, nil, notebook.InternalError("no operation")
	}
	next := nb.Clone()
	var (
		changes []change.Change
		err     error
	)
	switch o := op.(type) {
	case operation.AddCells:
		changes, err = applyAddCells(next, o)
	case operation.RemoveCells:
		changes, err = applyRemoveCells(next, o)
	case operation.MoveCells:
		changes, err = applyMoveCells(next, o)
	case operation.MergeCells:
		changes, err = applyMergeCells(next, o)
	case operation.ReplaceText:
		changes, err = applyReplaceText(next, o)
	case operation.SplitCell:
		changes, err = applySplitCell(next, o)
	case operation.UpdateCell:
		changes, err = applyUpdateCell(next, o)
	case operation.UpdateNotebookTimeRange:
		next.TimeRange = o.TimeRange
		changes = []change.Change{change.UpdateNotebookTimeRange{TimeRange: o.TimeRange}}
	case operation.UpdateNotebookTitle:
		next.Title = o.Title
		changes = []change.Change{change.UpdateNotebookTitle{Title: o.Title}}
	case operation.AddDataSource:
		changes, err = applyAddDataSource(next, o)
	case operation.UpdateDataSource:
		changes, err = applyUpdateDataSource(next, o)
	case operation.RemoveDataSource:
		changes, err = applyRemoveDataSource(next, o)
	case operation.SetSelectedDataSource:
		changes, err = applySetSelectedDataSource(next, o)
	case operation.AddLabel:
		changes, err = applyAddLabel(next, o)
	case operation.ReplaceLabel:
		changes, err = applyReplaceLabel(next, o)
	case operation.RemoveLabel:
		changes, err = applyRemoveLabel(next, o)
	default:
		err = notebook.InternalError("unsupported operation %T", op)
	}
	if err != nil {
		return nil, nil, err
	}
	next.Revision = nb.Revision + 1
	normalize(next)
	return next, changes, nil
}

// normalize stores empty containers as nil so equal notebooks compare equal.
func normalize(nb *notebook.Notebook) {
	if len(nb.Cells) == 0 {
		nb.Cells = nil
	}
	if len(nb.Labels) == 0 {
		nb.Labels = nil
	}
	if len(nb.DataSources) == 0 {
		nb.DataSources = nil
	}
	if len(nb.SelectedDataSources) == 0 {
		nb.SelectedDataSources = nil
	}
}

// withCell fills in the cell id of offset errors raised by the formatting engine.
func withCell(err error, id string) error {
	var e *notebook.Error
	if errors.As(err, &e) && e.CellID == "" && e.Kind == notebook.KindInvalidTextOffset {
		return notebook.InvalidTextOffset(id, e.Offset)
	}
	return err
}

func insertCell(nb *notebook.Notebook, index int, c notebook.Cell) {
	nb.Cells = append(nb.Cells, nil)
	copy(nb.Cells[index+1:], nb.Cells[index:])
	nb.Cells[index] = c
}

func removeCell(nb *notebook.Notebook, index int) {
	nb.Cells = append(nb.Cells[:index], nb.Cells[index+1:]...)
}

func contentCell(nb *notebook.Notebook, id string) (int, notebook.ContentCell, error) {
	idx := nb.CellIndex(id)
	if idx < 0 {
		return -1, nil, notebook.CellNotFound(id)
	}
	cc, ok := nb.Cells[idx].(notebook.ContentCell)
	if !ok {
		return -1, nil, notebook.NoTextCell(id)
	}
	return idx, cc, nil
}

// byIndex returns a copy of cells sorted by Index, keeping the given order for equal indexes.
func byIndex(cells []notebook.CellWithIndex) []notebook.CellWithIndex {
	out := append([]notebook.CellWithIndex(nil), cells...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// replaceReferencing overwrites referencing cells by id, dropping the ids in strip from their
// sources first.
func replaceReferencing(nb *notebook.Notebook, refs []notebook.CellWithIndex, strip map[string]bool) ([]change.Change, error) {
	var changes []change.Change
	for _, r := range refs {
		if r.Cell == nil {
			return nil, notebook.InternalError("referencing cell without content")
		}
		id := r.Cell.CellID()
		if strip[id] {
			continue
		}
		idx := nb.CellIndex(id)
		if idx < 0 {
			return nil, notebook.CellNotFound(id)
		}
		c := r.Cell
		if len(strip) > 0 {
			c = notebook.WithoutSources(c, strip)
		}
		nb.Cells[idx] = c
		changes = append(changes, change.UpdateCell{Cell: c})
	}
	return changes, nil
}

// replaceContent, splitContent and mergeContent compute cell content only, so Transform can use
// them on the cells it knows without a notebook.

func replaceContent(cell notebook.ContentCell, o operation.ReplaceText) (notebook.Cell, error) {
	text, f := cell.TextContent()
	n := notebook.CharCount(text)
	if o.Start < 0 || o.Start > n {
		return nil, notebook.InvalidTextOffset(o.CellID, o.Start)
	}
	if o.End < o.Start || o.End > n {
		return nil, notebook.InvalidTextOffset(o.CellID, o.End)
	}
	r, err := formatting.ReplaceText(text, f, o.Start, o.End, o.NewText, o.NewFormatting)
	if err != nil {
		return nil, withCell(err, o.CellID)
	}
	return cell.WithTextContent(r.Content, r.Formatting), nil
}

// splitContent returns the shortened cell and the new cell holding the tail.
func splitContent(cell notebook.ContentCell, o operation.SplitCell) (notebook.Cell, notebook.Cell, error) {
	if o.NewCellID == "" {
		return nil, nil, notebook.InternalError("split of %s without a new cell id", o.CellID)
	}
	text, f := cell.TextContent()
	lo, hi := o.Cursor.Bounds()
	n := notebook.CharCount(text)
	if lo < 0 || lo > n {
		return nil, nil, notebook.InvalidTextOffset(o.CellID, lo)
	}
	if hi > n {
		return nil, nil, notebook.InvalidTextOffset(o.CellID, hi)
	}

	head, _, tail, err := formatting.Split(text, f, lo, hi)
	if err != nil {
		return nil, nil, withCell(err, o.CellID)
	}
	var template notebook.Cell = cell
	if o.NewCell != nil {
		template = o.NewCell
	}
	tc, ok := template.(notebook.ContentCell)
	if !ok {
		return nil, nil, notebook.NoTextCell(o.NewCellID)
	}
	newCell := tc.WithTextContent(tail.Content, tail.Formatting).WithID(o.NewCellID)
	return cell.WithTextContent(head.Content, head.Formatting), newCell, nil
}

func mergeContent(target, source notebook.ContentCell, o operation.MergeCells) (notebook.Cell, error) {
	if err := formatting.Validate(o.GlueText, o.GlueFormatting); err != nil {
		return nil, withCell(err, o.TargetCellID)
	}
	tText, tFormatting := target.TextContent()
	sText, sFormatting := source.TextContent()
	tLen := notebook.CharCount(tText)
	gLen := notebook.CharCount(o.GlueText)
	f := formatting.Concat(formatting.Concat(tFormatting, tLen, o.GlueFormatting), tLen+gLen, sFormatting)
	return target.WithTextContent(tText+o.GlueText+sText, f), nil
}

func applyAddCells(nb *notebook.Notebook, o operation.AddCells) ([]change.Change, error) {
	seen := make(map[string]bool, len(nb.Cells)+len(o.Cells))
	for _, c := range nb.Cells {
		seen[c.CellID()] = true
	}
	for _, c := range o.Cells {
		if c.Cell == nil {
			return nil, notebook.InternalError("added cell without content")
		}
		if seen[c.Cell.CellID()] {
			return nil, notebook.DuplicateID(c.Cell.CellID())
		}
		seen[c.Cell.CellID()] = true
	}

	var changes []change.Change
	cells := byIndex(o.Cells)
	if o.Position != nil {
		anchor := nb.CellIndex(o.Position.ReferenceID)
		if anchor < 0 {
			return nil, notebook.CellNotFound(o.Position.ReferenceID)
		}
		at := anchor
		switch o.Position.Side {
		case operation.Before:
		case operation.After:
			at = anchor + 1
		default:
			return nil, notebook.InternalError("unknown side %q", o.Position.Side)
		}
		// Index 记录落点, Invert 得到的 RemoveCells 依赖它
		for i, c := range cells {
			if c.Index != at+i {
				return nil, notebook.InvalidInsertIndex(c.Index)
			}
			insertCell(nb, at+i, c.Cell)
			changes = append(changes, change.InsertCell{Cell: c.Cell, Index: at + i})
		}
	} else {
		for _, c := range cells {
			if c.Index < 0 || c.Index > len(nb.Cells) {
				return nil, notebook.InvalidInsertIndex(c.Index)
			}
			insertCell(nb, c.Index, c.Cell)
			changes = append(changes, change.InsertCell{Cell: c.Cell, Index: c.Index})
		}
	}

	refs, err := replaceReferencing(nb, o.ReferencingCells, nil)
	if err != nil {
		return nil, err
	}
	return append(changes, refs...), nil
}

func applyRemoveCells(nb *notebook.Notebook, o operation.RemoveCells) ([]change.Change, error) {
	removed := make(map[string]bool, len(o.RemovedCells))
	for _, c := range o.RemovedCells {
		if c.Cell == nil {
			return nil, notebook.InternalError("removed cell without content")
		}
		id := c.Cell.CellID()
		idx := nb.CellIndex(id)
		if idx < 0 {
			return nil, notebook.CellNotFound(id)
		}
		if c.Index != idx {
			return nil, notebook.InvalidInsertIndex(c.Index)
		}
		removed[id] = true
	}

	var changes []change.Change
	kept := make([]notebook.Cell, 0, len(nb.Cells))
	for _, c := range nb.Cells {
		if removed[c.CellID()] {
			changes = append(changes, change.DeleteCell{CellID: c.CellID()})
			continue
		}
		kept = append(kept, c)
	}
	nb.Cells = kept

	refs, err := replaceReferencing(nb, o.ReferencingCells, removed)
	if err != nil {
		return nil, err
	}
	return append(changes, refs...), nil
}

func applyMoveCells(nb *notebook.Notebook, o operation.MoveCells) ([]change.Change, error) {
	k := len(o.CellIDs)
	if k == 0 {
		return nil, nil
	}
	first := nb.CellIndex(o.CellIDs[0])
	if first >= 0 && first != o.FromIndex {
		return nil, notebook.InvalidInsertIndex(o.FromIndex)
	}
	for i, id := range o.CellIDs {
		idx := nb.CellIndex(id)
		if idx < 0 {
			return nil, notebook.CellNotFound(id)
		}
		if idx != first+i {
			// not a contiguous block in the given order
			return nil, notebook.InvalidInsertIndex(o.FromIndex)
		}
	}
	if o.ToIndex < 0 || o.ToIndex > len(nb.Cells)-k {
		return nil, notebook.InvalidInsertIndex(o.ToIndex)
	}

	block := append([]notebook.Cell(nil), nb.Cells[first:first+k]...)
	rest := make([]notebook.Cell, 0, len(nb.Cells))
	rest = append(rest, nb.Cells[:first]...)
	rest = append(rest, nb.Cells[first+k:]...)

	cells := make([]notebook.Cell, 0, len(nb.Cells))
	cells = append(cells, rest[:o.ToIndex]...)
	cells = append(cells, block...)
	cells = append(cells, rest[o.ToIndex:]...)
	nb.Cells = cells

	return []change.Change{change.MoveCells{CellIDs: append([]string(nil), o.CellIDs...), Index: o.ToIndex}}, nil
}

func applyMergeCells(nb *notebook.Notebook, o operation.MergeCells) ([]change.Change, error) {
	ti, target, err := contentCell(nb, o.TargetCellID)
	if err != nil {
		return nil, err
	}
	si, source, err := contentCell(nb, o.SourceCellID)
	if err != nil {
		return nil, err
	}
	if si != ti+1 {
		return nil, notebook.InvalidInsertIndex(si)
	}
	merged, err := mergeContent(target, source, o)
	if err != nil {
		return nil, err
	}
	nb.Cells[ti] = merged
	removeCell(nb, si)

	changes := []change.Change{
		change.UpdateCell{Cell: merged},
		change.DeleteCell{CellID: o.SourceCellID},
	}
	refs, err := replaceReferencing(nb, o.ReferencingCells, map[string]bool{o.SourceCellID: true})
	if err != nil {
		return nil, err
	}
	return append(changes, refs...), nil
}

func applyReplaceText(nb *notebook.Notebook, o operation.ReplaceText) ([]change.Change, error) {
	idx, cell, err := contentCell(nb, o.CellID)
	if err != nil {
		return nil, err
	}
	updated, err := replaceContent(cell, o)
	if err != nil {
		return nil, err
	}
	nb.Cells[idx] = updated
	return []change.Change{change.UpdateCell{Cell: updated}}, nil
}

func applySplitCell(nb *notebook.Notebook, o operation.SplitCell) ([]change.Change, error) {
	idx, cell, err := contentCell(nb, o.CellID)
	if err != nil {
		return nil, err
	}
	if nb.CellIndex(o.NewCellID) >= 0 {
		return nil, notebook.DuplicateID(o.NewCellID)
	}
	updated, newCell, err := splitContent(cell, o)
	if err != nil {
		return nil, err
	}
	nb.Cells[idx] = updated
	insertCell(nb, idx+1, newCell)

	changes := []change.Change{
		change.UpdateCell{Cell: updated},
		change.InsertCell{Cell: newCell, Index: idx + 1},
	}
	refs, err := replaceReferencing(nb, o.ReferencingCells, nil)
	if err != nil {
		return nil, err
	}
	return append(changes, refs...), nil
}

func applyUpdateCell(nb *notebook.Notebook, o operation.UpdateCell) ([]change.Change, error) {
	if o.UpdatedCell == nil {
		return nil, notebook.InternalError("update without a cell")
	}
	idx := nb.CellIndex(o.UpdatedCell.CellID())
	if idx < 0 {
		return nil, notebook.CellNotFound(o.UpdatedCell.CellID())
	}
	nb.Cells[idx] = o.UpdatedCell
	return []change.Change{change.UpdateCell{Cell: o.UpdatedCell}}, nil
}

func applyAddDataSource(nb *notebook.Notebook, o operation.AddDataSource) ([]change.Change, error) {
	if _, ok := nb.DataSources[o.Name]; ok {
		return nil, notebook.DuplicateID(o.Name)
	}
	if nb.DataSources == nil {
		nb.DataSources = map[string]notebook.DataSourceRef{}
	}
	nb.DataSources[o.Name] = o.DataSource
	return []change.Change{change.AddDataSource{Name: o.Name, DataSource: o.DataSource}}, nil
}

func applyUpdateDataSource(nb *notebook.Notebook, o operation.UpdateDataSource) ([]change.Change, error) {
	if _, ok := nb.DataSources[o.Name]; !ok {
		return nil, notebook.DataSourceNotFound(o.Name)
	}
	nb.DataSources[o.Name] = o.DataSource
	return []change.Change{change.UpdateDataSource{Name: o.Name, DataSource: o.DataSource}}, nil
}

func applyRemoveDataSource(nb *notebook.Notebook, o operation.RemoveDataSource) ([]change.Change, error) {
	if _, ok := nb.DataSources[o.Name]; !ok {
		return nil, notebook.DataSourceNotFound(o.Name)
	}
	delete(nb.DataSources, o.Name)
	return []change.Change{change.DeleteDataSource{Name: o.Name}}, nil
}

func applySetSelectedDataSource(nb *notebook.Notebook, o operation.SetSelectedDataSource) ([]change.Change, error) {
	if o.NewSelectedDataSource == "" {
		delete(nb.SelectedDataSources, o.ProviderType)
	} else {
		if _, ok := nb.DataSources[o.NewSelectedDataSource]; !ok {
			return nil, notebook.DataSourceNotFound(o.NewSelectedDataSource)
		}
		if nb.SelectedDataSources == nil {
			nb.SelectedDataSources = map[string]string{}
		}
		nb.SelectedDataSources[o.ProviderType] = o.NewSelectedDataSource
	}
	return []change.Change{change.SetSelectedDataSource{ProviderType: o.ProviderType, Name: o.NewSelectedDataSource}}, nil
}

func labelIndex(nb *notebook.Notebook, key string) int {
	for i, l := range nb.Labels {
		if l.Key == key {
			return i
		}
	}
	return -1
}

// Labels are kept sorted by key and new ones are inserted in key order, so removing and
// re-adding a label restores the original sequence.
func applyAddLabel(nb *notebook.Notebook, o operation.AddLabel) ([]change.Change, error) {
	if labelIndex(nb, o.Label.Key) >= 0 {
		return nil, notebook.DuplicateID(o.Label.Key)
	}
	at := len(nb.Labels)
	for i, l := range nb.Labels {
		if l.Key > o.Label.Key {
			at = i
			break
		}
	}
	nb.Labels = append(nb.Labels, notebook.Label{})
	copy(nb.Labels[at+1:], nb.Labels[at:])
	nb.Labels[at] = o.Label
	return []change.Change{change.AddLabel{Label: o.Label}}, nil
}

func applyReplaceLabel(nb *notebook.Notebook, o operation.ReplaceLabel) ([]change.Change, error) {
	idx := labelIndex(nb, o.OldLabel.Key)
	if idx < 0 {
		return nil, notebook.LabelNotFound(o.OldLabel.Key)
	}
	if o.NewLabel.Key != o.OldLabel.Key && labelIndex(nb, o.NewLabel.Key) >= 0 {
		return nil, notebook.DuplicateID(o.NewLabel.Key)
	}
	nb.Labels[idx] = o.NewLabel
	return []change.Change{change.ReplaceLabel{Key: o.OldLabel.Key, Label: o.NewLabel}}, nil
}

func applyRemoveLabel(nb *notebook.Notebook, o operation.RemoveLabel) ([]change.Change, error) {
	idx := labelIndex(nb, o.Label.Key)
	if idx < 0 {
		return nil, notebook.LabelNotFound(o.Label.Key)
	}
	nb.Labels = append(nb.Labels[:idx], nb.Labels[idx+1:]...)
	return []change.Change{change.RemoveLabel{Key: o.Label.Key}}, nil
}
