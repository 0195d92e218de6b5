package ot

import "notebookCollab/backend/internal/ot/operation"

// RelevantCellIDs lists the cells that must exist for op to apply and that a concurrent operation
// may conflict on. Metadata operations touch no cells.
func RelevantCellIDs(op operation.Operation) []string {
	switch o := op.(type) {
	case operation.AddCells:
		var ids []string
		if o.Position != nil {
			ids = append(ids, o.Position.ReferenceID)
		}
		return append(ids, operation.CellIDs(o.ReferencingCells)...)
	case operation.RemoveCells:
		return append(operation.CellIDs(o.RemovedCells), operation.CellIDs(o.ReferencingCells)...)
	case operation.MoveCells:
		return append([]string(nil), o.CellIDs...)
	case operation.MergeCells:
		return append([]string{o.TargetCellID, o.SourceCellID}, operation.CellIDs(o.ReferencingCells)...)
	case operation.ReplaceText:
		return []string{o.CellID}
	case operation.SplitCell:
		return append([]string{o.CellID}, operation.CellIDs(o.ReferencingCells)...)
	case operation.UpdateCell:
		if o.UpdatedCell == nil {
			return nil
		}
		return []string{o.UpdatedCell.CellID()}
	case operation.UpdateNotebookTimeRange, operation.UpdateNotebookTitle,
		operation.AddDataSource, operation.UpdateDataSource, operation.RemoveDataSource,
		operation.SetSelectedDataSource,
		operation.AddLabel, operation.ReplaceLabel, operation.RemoveLabel:
		return nil
	default:
		return nil
	}
}
