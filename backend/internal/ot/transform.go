package ot

import (
	"reflect"
	"sort"

	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot/formatting"
	"notebookCollab/backend/internal/ot/operation"
)

// Transform rewrites successor so that it can be applied after predecessor. Both operations were
// created against the notebook described by state. A nil result means the successor no longer has
// any effect and should be dropped.
//
// When both operations insert at the same place the predecessor wins and its content comes first.
func Transform(state State, successor, predecessor operation.Operation) (operation.Operation, error) {
	if successor == nil || predecessor == nil {
		return nil, notebook.InternalError("transform needs two operations")
	}
	switch p := predecessor.(type) {
	case operation.AddCells, operation.RemoveCells, operation.MoveCells, operation.MergeCells,
		operation.ReplaceText, operation.SplitCell, operation.UpdateCell:
		return transformAfterCellOp(state, successor, predecessor)
	case operation.UpdateNotebookTimeRange:
		if _, ok := successor.(operation.UpdateNotebookTimeRange); ok {
			return nil, nil
		}
	case operation.UpdateNotebookTitle:
		if _, ok := successor.(operation.UpdateNotebookTitle); ok {
			return nil, nil
		}
	case operation.AddDataSource:
		if s, ok := successor.(operation.AddDataSource); ok && s.Name == p.Name {
			return nil, nil
		}
	case operation.UpdateDataSource:
		switch s := successor.(type) {
		case operation.UpdateDataSource:
			if s.Name == p.Name {
				return nil, nil
			}
		case operation.RemoveDataSource:
			if s.Name == p.Name {
				s.DataSource = p.DataSource
				return s, nil
			}
		}
	case operation.RemoveDataSource:
		switch s := successor.(type) {
		case operation.UpdateDataSource:
			if s.Name == p.Name {
				return nil, nil
			}
		case operation.RemoveDataSource:
			if s.Name == p.Name {
				return nil, nil
			}
		case operation.SetSelectedDataSource:
			if s.NewSelectedDataSource == p.Name {
				return nil, nil
			}
		}
	case operation.SetSelectedDataSource:
		if s, ok := successor.(operation.SetSelectedDataSource); ok && s.ProviderType == p.ProviderType {
			if s.NewSelectedDataSource != p.NewSelectedDataSource {
				return nil, nil
			}
			s.OldSelectedDataSource = p.NewSelectedDataSource
			return s, nil
		}
	case operation.AddLabel:
		switch s := successor.(type) {
		case operation.AddLabel:
			if s.Label.Key == p.Label.Key {
				return nil, nil
			}
		case operation.ReplaceLabel:
			if s.NewLabel.Key == p.Label.Key && s.OldLabel.Key != p.Label.Key {
				return nil, nil
			}
		}
	case operation.ReplaceLabel:
		touched := func(key string) bool { return key == p.OldLabel.Key || key == p.NewLabel.Key }
		switch s := successor.(type) {
		case operation.AddLabel:
			if s.Label.Key == p.NewLabel.Key {
				return nil, nil
			}
		case operation.ReplaceLabel:
			if touched(s.OldLabel.Key) || touched(s.NewLabel.Key) {
				return nil, nil
			}
		case operation.RemoveLabel:
			if touched(s.Label.Key) {
				return nil, nil
			}
		}
	case operation.RemoveLabel:
		switch s := successor.(type) {
		case operation.RemoveLabel:
			if s.Label.Key == p.Label.Key {
				return nil, nil
			}
		case operation.ReplaceLabel:
			if s.OldLabel.Key == p.Label.Key {
				return nil, nil
			}
		}
	default:
		return nil, notebook.InternalError("unsupported operation %T", predecessor)
	}
	return successor, nil
}

// cellTransform describes what a cell predecessor did. It is worked out from the predecessor's own
// fields and the cells in State, never from a whole notebook.
type cellTransform struct {
	pred  operation.Operation
	state State
	shift cellShift
	// removed 与 inserted 是前驱删掉和新建的 cell, inserted 记录新下标
	removed  map[string]bool
	inserted map[string]int
	// content after the predecessor of every cell it rewrote or created
	updated map[string]notebook.Cell
}

// cellShift maps cell indexes from before the predecessor to after it. At most one kind of
// shift is set.
type cellShift struct {
	// indexes the inserted cells hold afterwards, ascending
	inserted []int
	// indexes the removed cells held before, ascending
	removed []int
	move    *blockMove
}

type blockMove struct{ from, size, to int }

// structural reports whether the predecessor changed the order or the set of cells.
func (s cellShift) structural() bool {
	if s.move != nil {
		return s.move.from != s.move.to
	}
	return len(s.inserted) > 0 || len(s.removed) > 0
}

// gap maps the position just before the cell at index g. Cells inserted at that position end up
// before it, and the position of a removed cell falls to the next one that survives.
func (s cellShift) gap(g int) int {
	if g < 0 {
		g = 0
	}
	if m := s.move; m != nil {
		if g >= m.from && g < m.from+m.size {
			return m.to + g - m.from
		}
		r := g
		if g >= m.from+m.size {
			r -= m.size
		}
		if r >= m.to {
			r += m.size
		}
		return r
	}
	out := g
	for _, r := range s.removed {
		if r < g {
			out--
		}
	}
	for _, p := range s.inserted {
		if p <= out {
			out++
		}
	}
	return out
}

func transformAfterCellOp(state State, successor, predecessor operation.Operation) (operation.Operation, error) {
	switch successor.(type) {
	case operation.UpdateNotebookTimeRange, operation.UpdateNotebookTitle,
		operation.AddDataSource, operation.UpdateDataSource, operation.RemoveDataSource,
		operation.SetSelectedDataSource,
		operation.AddLabel, operation.ReplaceLabel, operation.RemoveLabel:
		return successor, nil
	}

	t, err := newCellTransform(state, predecessor)
	if err != nil {
		return nil, err
	}
	switch s := successor.(type) {
	case operation.AddCells:
		return t.addCells(s), nil
	case operation.RemoveCells:
		return t.removeCells(s), nil
	case operation.MoveCells:
		return t.moveCells(s), nil
	case operation.MergeCells:
		return t.mergeCells(s), nil
	case operation.ReplaceText:
		return t.replaceText(s)
	case operation.SplitCell:
		return t.splitCell(s)
	case operation.UpdateCell:
		return t.updateCell(s), nil
	default:
		return nil, notebook.InternalError("unsupported operation %T", successor)
	}
}

func newCellTransform(state State, pred operation.Operation) (*cellTransform, error) {
	t := &cellTransform{
		pred:     pred,
		state:    state,
		removed:  map[string]bool{},
		inserted: map[string]int{},
		updated:  map[string]notebook.Cell{},
	}
	switch p := pred.(type) {
	case operation.AddCells:
		at := -1
		if p.Position != nil {
			ref, ok := state.CellIndex(p.Position.ReferenceID)
			if !ok {
				return nil, notebook.CellNotFound(p.Position.ReferenceID)
			}
			at = ref
			if p.Position.Side == operation.After {
				at++
			}
		}
		for k, c := range byIndex(p.Cells) {
			if c.Cell == nil {
				return nil, notebook.InternalError("added cell without content")
			}
			i := c.Index
			if at >= 0 {
				i = at + k
			}
			t.insert(c.Cell, i)
		}
		t.rewrite(p.ReferencingCells, nil)
	case operation.RemoveCells:
		for _, c := range p.RemovedCells {
			if c.Cell == nil {
				return nil, notebook.InternalError("removed cell without content")
			}
			t.remove(c.Cell.CellID(), c.Index)
		}
		t.rewrite(p.ReferencingCells, t.removed)
	case operation.MoveCells:
		if len(p.CellIDs) > 0 {
			from, ok := state.CellIndex(p.CellIDs[0])
			if !ok {
				from = p.FromIndex
			}
			t.shift.move = &blockMove{from: from, size: len(p.CellIDs), to: p.ToIndex}
		}
	case operation.MergeCells:
		target, err := t.content(p.TargetCellID)
		if err != nil {
			return nil, err
		}
		source, err := t.content(p.SourceCellID)
		if err != nil {
			return nil, err
		}
		merged, err := mergeContent(target, source, p)
		if err != nil {
			return nil, err
		}
		t.updated[p.TargetCellID] = merged
		t.remove(p.SourceCellID, -1)
		t.rewrite(p.ReferencingCells, map[string]bool{p.SourceCellID: true})
	case operation.ReplaceText:
		cell, err := t.content(p.CellID)
		if err != nil {
			return nil, err
		}
		updated, err := replaceContent(cell, p)
		if err != nil {
			return nil, err
		}
		t.updated[p.CellID] = updated
	case operation.SplitCell:
		cell, err := t.content(p.CellID)
		if err != nil {
			return nil, err
		}
		head, tail, err := splitContent(cell, p)
		if err != nil {
			return nil, err
		}
		i, _ := state.CellIndex(p.CellID)
		t.updated[p.CellID] = head
		t.insert(tail, i+1)
		t.rewrite(p.ReferencingCells, nil)
	case operation.UpdateCell:
		if p.UpdatedCell == nil {
			return nil, notebook.InternalError("update without a cell")
		}
		t.updated[p.UpdatedCell.CellID()] = p.UpdatedCell
	}
	sort.Ints(t.shift.inserted)
	sort.Ints(t.shift.removed)
	return t, nil
}

func (t *cellTransform) insert(c notebook.Cell, i int) {
	t.inserted[c.CellID()] = i
	t.updated[c.CellID()] = c
	t.shift.inserted = append(t.shift.inserted, i)
}

// remove 优先用 State 里的下标, 不认识的 cell 才用操作里记录的
func (t *cellTransform) remove(id string, recorded int) {
	i, ok := t.state.CellIndex(id)
	if !ok {
		i = recorded
	}
	t.removed[id] = true
	t.shift.removed = append(t.shift.removed, i)
}

func (t *cellTransform) rewrite(refs []notebook.CellWithIndex, strip map[string]bool) {
	for _, r := range refs {
		if r.Cell == nil || strip[r.Cell.CellID()] {
			continue
		}
		c := r.Cell
		if len(strip) > 0 {
			c = notebook.WithoutSources(c, strip)
		}
		t.updated[c.CellID()] = c
	}
}

func (t *cellTransform) content(id string) (notebook.ContentCell, error) {
	c, ok := t.state.Cell(id)
	if !ok {
		return nil, notebook.CellNotFound(id)
	}
	cc, ok := c.(notebook.ContentCell)
	if !ok {
		return nil, notebook.NoTextCell(id)
	}
	return cc, nil
}

// postIndex is the index of the cell after the predecessor. recorded stands in for a cell the
// State does not hold; -1 means there is nothing to fall back on.
func (t *cellTransform) postIndex(id string, recorded int) (int, bool) {
	if t.removed[id] {
		return 0, false
	}
	if i, ok := t.inserted[id]; ok {
		return i, true
	}
	i, ok := t.state.CellIndex(id)
	if !ok {
		if recorded < 0 {
			return 0, false
		}
		i = recorded
	}
	return t.shift.gap(i), true
}

func (t *cellTransform) exists(id string) bool {
	_, ok := t.postIndex(id, -1)
	return ok
}

func (t *cellTransform) postCell(id string) (notebook.Cell, bool) {
	if t.removed[id] {
		return nil, false
	}
	if c, ok := t.updated[id]; ok {
		return c, true
	}
	return t.state.Cell(id)
}

// changed reports whether the predecessor touched the cell, including removing it.
func (t *cellTransform) changed(id string) bool {
	if t.removed[id] {
		return true
	}
	after, ok := t.updated[id]
	if !ok {
		return false
	}
	before, ok := t.state.Cell(id)
	return !ok || !reflect.DeepEqual(before, after)
}

// refresh keeps the cells that still exist, with their current content and position.
func (t *cellTransform) refresh(cells []notebook.CellWithIndex) []notebook.CellWithIndex {
	structural := t.shift.structural()
	var out []notebook.CellWithIndex
	for _, c := range cells {
		if c.Cell == nil {
			continue
		}
		id := c.Cell.CellID()
		i, ok := t.postIndex(id, c.Index)
		if !ok {
			continue
		}
		if t.changed(id) {
			if after, ok := t.postCell(id); ok {
				c.Cell = after
			}
		}
		if structural {
			c.Index = i
		}
		out = append(out, c)
	}
	return out
}

func (t *cellTransform) addCells(s operation.AddCells) operation.Operation {
	structural := t.shift.structural()
	out := s
	cells := byIndex(s.Cells)
	if s.Position != nil {
		if !t.exists(s.Position.ReferenceID) {
			return nil
		}
		if structural {
			// pinned to indexes so the cells order against cells the predecessor inserted
			at, _ := t.state.CellIndex(s.Position.ReferenceID)
			if s.Position.Side == operation.After {
				at++
			}
			for k := range cells {
				cells[k].Index = at + k
			}
			out.Position = nil
		}
	}

	type placed struct {
		cell notebook.CellWithIndex
		gap  int
	}
	var kept []placed
	for k, c := range cells {
		if c.Cell == nil {
			continue
		}
		if _, taken := t.inserted[c.Cell.CellID()]; taken {
			continue
		}
		kept = append(kept, placed{cell: c, gap: t.shift.gap(c.Index - k)})
	}
	if len(kept) == 0 {
		return nil
	}

	out.Cells = make([]notebook.CellWithIndex, len(kept))
	if out.Position != nil || !structural {
		for i, p := range kept {
			out.Cells[i] = p.cell
		}
	} else {
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].gap < kept[j].gap })
		for i, p := range kept {
			p.cell.Index = p.gap + i
			out.Cells[i] = p.cell
		}
	}
	out.ReferencingCells = t.refresh(s.ReferencingCells)
	return out
}

func (t *cellTransform) removeCells(s operation.RemoveCells) operation.Operation {
	removed := t.refresh(s.RemovedCells)
	if len(removed) == 0 {
		return nil
	}
	if t.shift.structural() {
		removed = byIndex(removed)
	}
	out := s
	out.RemovedCells = removed
	out.ReferencingCells = t.refresh(s.ReferencingCells)
	return out
}

func (t *cellTransform) moveCells(s operation.MoveCells) operation.Operation {
	k := len(s.CellIDs)
	if k == 0 {
		return nil
	}
	first, ok := t.postIndex(s.CellIDs[0], -1)
	if !ok {
		return nil
	}
	for i, id := range s.CellIDs {
		idx, ok := t.postIndex(id, -1)
		if !ok || idx != first+i {
			return nil
		}
	}
	if !t.shift.structural() {
		return s
	}

	// ToIndex 是去掉被移动块之后的下标, 先换成完整下标再映射
	from, ok := t.state.CellIndex(s.CellIDs[0])
	if !ok {
		from = s.FromIndex
	}
	g := max(s.ToIndex, 0)
	if g >= from {
		g += k
	}
	to := t.shift.gap(g)
	switch {
	case to >= first+k:
		to -= k
	case to > first:
		to = first
	}

	out := s
	out.CellIDs = append([]string(nil), s.CellIDs...)
	out.FromIndex = first
	out.ToIndex = to
	return out
}

func (t *cellTransform) mergeCells(s operation.MergeCells) operation.Operation {
	ti, ok := t.postIndex(s.TargetCellID, -1)
	if !ok {
		return nil
	}
	si, ok := t.postIndex(s.SourceCellID, -1)
	if !ok || si != ti+1 {
		return nil
	}
	after, _ := t.postCell(s.TargetCellID)
	target, ok := after.(notebook.ContentCell)
	if !ok {
		return nil
	}
	source, _ := t.postCell(s.SourceCellID)
	if _, ok := source.(notebook.ContentCell); !ok {
		return nil
	}

	out := s
	if t.changed(s.TargetCellID) {
		text, _ := target.TextContent()
		out.TargetContentLength = notebook.CharCount(text)
	}
	if t.changed(s.SourceCellID) {
		out.SourceCell = source
	}
	out.ReferencingCells = t.refresh(s.ReferencingCells)
	return out
}

// mapText moves a text range of a successor over the predecessor. cursor selects position
// semantics: the ends of the range move independently instead of the range being trimmed around
// a concurrent replacement.
func (t *cellTransform) mapText(cellID string, start, end int, cursor bool) (string, int, int, bool) {
	switch p := t.pred.(type) {
	case operation.ReplaceText:
		if p.CellID != cellID {
			break
		}
		inserted := notebook.CharCount(p.NewText)
		if cursor {
			return cellID,
				formatting.TransformOffset(start, p.Start, p.End, inserted),
				formatting.TransformOffset(end, p.Start, p.End, inserted),
				true
		}
		s, e, ok := transformRange(start, end, p.Start, p.End, inserted)
		return cellID, s, e, ok
	case operation.SplitCell:
		if p.CellID != cellID {
			break
		}
		lo, hi := p.Cursor.Bounds()
		switch {
		case end <= lo:
			return cellID, start, end, true
		case start >= hi:
			return p.NewCellID, start - hi, end - hi, true
		default:
			return "", 0, 0, false
		}
	case operation.MergeCells:
		if p.SourceCellID != cellID {
			break
		}
		target, err := t.content(p.TargetCellID)
		if err != nil {
			return "", 0, 0, false
		}
		text, _ := target.TextContent()
		shift := notebook.CharCount(text) + notebook.CharCount(p.GlueText)
		return p.TargetCellID, start + shift, end + shift, true
	case operation.UpdateCell:
		if p.UpdatedCell != nil && p.UpdatedCell.CellID() == cellID {
			return "", 0, 0, false
		}
	}
	if !t.exists(cellID) {
		return "", 0, 0, false
	}
	return cellID, start, end, true
}

// transformRange moves the successor range [s, e] over a replacement of [ps, pe] by pn
// characters. A successor range inside the replaced one has nothing left to act on.
func transformRange(s, e, ps, pe, pn int) (int, int, bool) {
	delta := pn - (pe - ps)
	switch {
	case s >= pe:
		return s + delta, e + delta, true
	case e <= ps:
		return s, e, true
	case s <= ps && e >= pe:
		return s, e + delta, true
	case s >= ps && e <= pe:
		return 0, 0, false
	case s < ps:
		return s, ps, true
	default:
		return ps + pn, e + delta, true
	}
}

func (t *cellTransform) replaceText(s operation.ReplaceText) (operation.Operation, error) {
	id, start, end, ok := t.mapText(s.CellID, s.Start, s.End, false)
	if !ok {
		return nil, nil
	}
	out := s
	out.CellID, out.Start, out.End = id, start, end
	if id == s.CellID && !t.changed(id) {
		return out, nil
	}
	c, _ := t.postCell(id)
	cc, ok := c.(notebook.ContentCell)
	if !ok {
		return nil, nil
	}
	text, f := cc.TextContent()
	r, err := formatting.ReplaceText(text, f, start, end, s.NewText, s.NewFormatting)
	if err != nil {
		return nil, withCell(err, id)
	}
	out.OldText, out.OldFormatting = r.OldText, r.OldFormatting
	return out, nil
}

func (t *cellTransform) splitCell(s operation.SplitCell) (operation.Operation, error) {
	if t.exists(s.NewCellID) {
		return nil, nil
	}
	lo, hi := s.Cursor.Bounds()
	id, lo, hi, ok := t.mapText(s.CellID, lo, hi, true)
	if !ok {
		return nil, nil
	}
	out := s
	out.CellID = id
	if s.Cursor.Anchor <= s.Cursor.Focus {
		out.Cursor = operation.Cursor{Anchor: lo, Focus: hi}
	} else {
		out.Cursor = operation.Cursor{Anchor: hi, Focus: lo}
	}
	out.ReferencingCells = t.refresh(s.ReferencingCells)
	if id == s.CellID && !t.changed(id) {
		return out, nil
	}
	c, _ := t.postCell(id)
	cc, ok := c.(notebook.ContentCell)
	if !ok {
		return nil, nil
	}
	text, f := cc.TextContent()
	_, middle, _, err := formatting.Split(text, f, lo, hi)
	if err != nil {
		return nil, withCell(err, id)
	}
	out.RemovedText, out.RemovedFormatting = middle.Content, middle.Formatting
	return out, nil
}

func (t *cellTransform) updateCell(s operation.UpdateCell) operation.Operation {
	if s.UpdatedCell == nil {
		return s
	}
	id := s.UpdatedCell.CellID()
	if p, ok := t.pred.(operation.UpdateCell); ok && p.UpdatedCell != nil && p.UpdatedCell.CellID() == id {
		return nil
	}
	after, ok := t.postCell(id)
	if !ok {
		return nil
	}
	out := s
	if t.changed(id) {
		out.OldCell = after
	}
	return out
}
