package operation

import "notebookCollab/backend/internal/notebook"

type Type string

const (
	TypeAddCells                Type = "add_cells"
	TypeMergeCells              Type = "merge_cells"
	TypeMoveCells               Type = "move_cells"
	TypeRemoveCells             Type = "remove_cells"
	TypeReplaceText             Type = "replace_text"
	TypeSplitCell               Type = "split_cell"
	TypeUpdateCell              Type = "update_cell"
	TypeUpdateNotebookTimeRange Type = "update_notebook_time_range"
	TypeUpdateNotebookTitle     Type = "update_notebook_title"
	TypeAddDataSource           Type = "add_data_source"
	TypeUpdateDataSource        Type = "update_data_source"
	TypeRemoveDataSource        Type = "remove_data_source"
	TypeSetSelectedDataSource   Type = "set_selected_data_source"
	TypeAddLabel                Type = "add_label"
	TypeReplaceLabel            Type = "replace_label"
	TypeRemoveLabel             Type = "remove_label"
)

// Operation is a client intent against a notebook. It embeds the prior state needed to invert
// it. The set of implementations is closed.
type Operation interface {
	OpType() Type
	isOperation()
}

type Side string

const (
	Before Side = "before"
	After  Side = "after"
)

type CellPosition struct {
	ReferenceID string `json:"referenceId"`
	Side        Side   `json:"side"`
}

// AddCells inserts cells. Without Position every cell goes to its Index, applied in ascending
// order. With Position the cells are inserted next to the reference cell, ordered by Index.
// ReferencingCells are stored as they should read after the insert.
type AddCells struct {
	Cells            []notebook.CellWithIndex `json:"cells"`
	Position         *CellPosition            `json:"position,omitempty"`
	ReferencingCells []notebook.CellWithIndex `json:"referencingCells,omitempty"`
}

// RemoveCells deletes cells. ReferencingCells hold the cells that point at a removed cell, as
// they were before the removal; applying strips the removed ids from them.
type RemoveCells struct {
	RemovedCells     []notebook.CellWithIndex `json:"removedCells"`
	ReferencingCells []notebook.CellWithIndex `json:"referencingCells,omitempty"`
}

// MoveCells moves a contiguous block. ToIndex counts positions in the notebook without the block.
type MoveCells struct {
	CellIDs   []string `json:"cellIds"`
	FromIndex int      `json:"fromIndex"`
	ToIndex   int      `json:"toIndex"`
}

// MergeCells appends GlueText and the content of the source cell to the target cell and removes
// the source, which must directly follow the target.
type MergeCells struct {
	TargetCellID        string                   `json:"targetCellId"`
	SourceCellID        string                   `json:"sourceCellId"`
	GlueText            string                   `json:"glueText,omitempty"`
	GlueFormatting      notebook.Formatting      `json:"glueFormatting,omitempty"`
	TargetContentLength int                      `json:"targetContentLength"`
	SourceCell          notebook.Cell            `json:"sourceCell"`
	ReferencingCells    []notebook.CellWithIndex `json:"referencingCells,omitempty"`
}

type ReplaceText struct {
	CellID        string              `json:"cellId"`
	Start         int                 `json:"start"`
	End           int                 `json:"end"`
	NewText       string              `json:"newText"`
	NewFormatting notebook.Formatting `json:"newFormatting,omitempty"`
	OldText       string              `json:"oldText"`
	OldFormatting notebook.Formatting `json:"oldFormatting,omitempty"`
}

type Cursor struct {
	Anchor int `json:"anchor"`
	Focus  int `json:"focus"`
}

// Bounds returns the selection as an ordered range.
func (c Cursor) Bounds() (lo, hi int) {
	if c.Anchor <= c.Focus {
		return c.Anchor, c.Focus
	}
	return c.Focus, c.Anchor
}

// SplitCell splits a text cell at the cursor, dropping the selected text. The new cell is built
// from NewCell, or from a copy of the split cell when NewCell is nil, and inserted right after it.
// ReferencingCells are stored as they should read after the split.
type SplitCell struct {
	CellID            string                   `json:"cellId"`
	Cursor            Cursor                   `json:"cursor"`
	NewCellID         string                   `json:"newCellId"`
	NewCell           notebook.Cell            `json:"newCell,omitempty"`
	RemovedText       string                   `json:"removedText,omitempty"`
	RemovedFormatting notebook.Formatting      `json:"removedFormatting,omitempty"`
	ReferencingCells  []notebook.CellWithIndex `json:"referencingCells,omitempty"`
}

type UpdateCell struct {
	UpdatedCell notebook.Cell `json:"updatedCell"`
	OldCell     notebook.Cell `json:"oldCell"`
}

type UpdateNotebookTimeRange struct {
	TimeRange    notebook.TimeRange `json:"timeRange"`
	OldTimeRange notebook.TimeRange `json:"oldTimeRange"`
}

type UpdateNotebookTitle struct {
	Title    string `json:"title"`
	OldTitle string `json:"oldTitle"`
}

type AddDataSource struct {
	Name       string                 `json:"name"`
	DataSource notebook.DataSourceRef `json:"dataSource"`
}

type UpdateDataSource struct {
	Name          string                 `json:"name"`
	DataSource    notebook.DataSourceRef `json:"dataSource"`
	OldDataSource notebook.DataSourceRef `json:"oldDataSource"`
}

type RemoveDataSource struct {
	Name       string                 `json:"name"`
	DataSource notebook.DataSourceRef `json:"dataSource"`
}

// SetSelectedDataSource changes which data source is used for a provider type. An empty name
// clears the selection.
type SetSelectedDataSource struct {
	ProviderType          string `json:"providerType"`
	NewSelectedDataSource string `json:"newSelectedDataSource,omitempty"`
	OldSelectedDataSource string `json:"oldSelectedDataSource,omitempty"`
}

type AddLabel struct {
	Label notebook.Label `json:"label"`
}

type ReplaceLabel struct {
	OldLabel notebook.Label `json:"oldLabel"`
	NewLabel notebook.Label `json:"newLabel"`
}

type RemoveLabel struct {
	Label notebook.Label `json:"label"`
}

func (AddCells) OpType() Type                { return TypeAddCells }
func (MergeCells) OpType() Type              { return TypeMergeCells }
func (MoveCells) OpType() Type               { return TypeMoveCells }
func (RemoveCells) OpType() Type             { return TypeRemoveCells }
func (ReplaceText) OpType() Type             { return TypeReplaceText }
func (SplitCell) OpType() Type               { return TypeSplitCell }
func (UpdateCell) OpType() Type              { return TypeUpdateCell }
func (UpdateNotebookTimeRange) OpType() Type { return TypeUpdateNotebookTimeRange }
func (UpdateNotebookTitle) OpType() Type     { return TypeUpdateNotebookTitle }
func (AddDataSource) OpType() Type           { return TypeAddDataSource }
func (UpdateDataSource) OpType() Type        { return TypeUpdateDataSource }
func (RemoveDataSource) OpType() Type        { return TypeRemoveDataSource }
func (SetSelectedDataSource) OpType() Type   { return TypeSetSelectedDataSource }
func (AddLabel) OpType() Type                { return TypeAddLabel }
func (ReplaceLabel) OpType() Type            { return TypeReplaceLabel }
func (RemoveLabel) OpType() Type             { return TypeRemoveLabel }

func (AddCells) isOperation()                {}
func (MergeCells) isOperation()              {}
func (MoveCells) isOperation()               {}
func (RemoveCells) isOperation()             {}
func (ReplaceText) isOperation()             {}
func (SplitCell) isOperation()               {}
func (UpdateCell) isOperation()              {}
func (UpdateNotebookTimeRange) isOperation() {}
func (UpdateNotebookTitle) isOperation()     {}
func (AddDataSource) isOperation()           {}
func (UpdateDataSource) isOperation()        {}
func (RemoveDataSource) isOperation()        {}
func (SetSelectedDataSource) isOperation()   {}
func (AddLabel) isOperation()                {}
func (ReplaceLabel) isOperation()            {}
func (RemoveLabel) isOperation()             {}

// CellIDs lists the ids of cells.
func CellIDs(cells []notebook.CellWithIndex) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.Cell.CellID()
	}
	return out
}
