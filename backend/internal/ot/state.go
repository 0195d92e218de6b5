package ot

import "notebookCollab/backend/internal/notebook"

// State is what Transform knows about the notebook just before the predecessor was applied:
// cells by id together with their index in the notebook. It does not need to hold every cell,
// the cells named by RelevantCellIDs of both operations are enough.
type State struct {
	cells map[string]notebook.Cell
	index map[string]int
}

// NewState builds a State from cells and their real notebook indexes.
func NewState(cells []notebook.CellWithIndex) State {
	s := State{
		cells: make(map[string]notebook.Cell, len(cells)),
		index: make(map[string]int, len(cells)),
	}
	for _, c := range cells {
		if c.Cell == nil {
			continue
		}
		s.cells[c.Cell.CellID()] = c.Cell
		s.index[c.Cell.CellID()] = c.Index
	}
	return s
}

func StateFromNotebook(nb *notebook.Notebook) State {
	return NewState(nb.CellsWithIndex())
}

func (s State) Cell(id string) (notebook.Cell, bool) {
	c, ok := s.cells[id]
	return c, ok
}

func (s State) CellIndex(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}
