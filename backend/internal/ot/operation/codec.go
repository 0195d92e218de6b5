package operation

import (
	"encoding/json"
	"fmt"

	"notebookCollab/backend/internal/notebook"
)

func (o AddCells) MarshalJSON() ([]byte, error) {
	type plain AddCells
	return notebook.TagJSON(string(TypeAddCells), plain(o))
}

func (o MergeCells) MarshalJSON() ([]byte, error) {
	type plain MergeCells
	return notebook.TagJSON(string(TypeMergeCells), plain(o))
}

func (o MoveCells) MarshalJSON() ([]byte, error) {
	type plain MoveCells
	return notebook.TagJSON(string(TypeMoveCells), plain(o))
}

func (o RemoveCells) MarshalJSON() ([]byte, error) {
	type plain RemoveCells
	return notebook.TagJSON(string(TypeRemoveCells), plain(o))
}

func (o ReplaceText) MarshalJSON() ([]byte, error) {
	type plain ReplaceText
	return notebook.TagJSON(string(TypeReplaceText), plain(o))
}

func (o SplitCell) MarshalJSON() ([]byte, error) {
	type plain SplitCell
	return notebook.TagJSON(string(TypeSplitCell), plain(o))
}

func (o UpdateCell) MarshalJSON() ([]byte, error) {
	type plain UpdateCell
	return notebook.TagJSON(string(TypeUpdateCell), plain(o))
}

func (o UpdateNotebookTimeRange) MarshalJSON() ([]byte, error) {
	type plain UpdateNotebookTimeRange
	return notebook.TagJSON(string(TypeUpdateNotebookTimeRange), plain(o))
}

func (o UpdateNotebookTitle) MarshalJSON() ([]byte, error) {
	type plain UpdateNotebookTitle
	return notebook.TagJSON(string(TypeUpdateNotebookTitle), plain(o))
}

func (o AddDataSource) MarshalJSON() ([]byte, error) {
	type plain AddDataSource
	return notebook.TagJSON(string(TypeAddDataSource), plain(o))
}

func (o UpdateDataSource) MarshalJSON() ([]byte, error) {
	type plain UpdateDataSource
	return notebook.TagJSON(string(TypeUpdateDataSource), plain(o))
}

func (o RemoveDataSource) MarshalJSON() ([]byte, error) {
	type plain RemoveDataSource
	return notebook.TagJSON(string(TypeRemoveDataSource), plain(o))
}

func (o SetSelectedDataSource) MarshalJSON() ([]byte, error) {
	type plain SetSelectedDataSource
	return notebook.TagJSON(string(TypeSetSelectedDataSource), plain(o))
}

func (o AddLabel) MarshalJSON() ([]byte, error) {
	type plain AddLabel
	return notebook.TagJSON(string(TypeAddLabel), plain(o))
}

func (o ReplaceLabel) MarshalJSON() ([]byte, error) {
	type plain ReplaceLabel
	return notebook.TagJSON(string(TypeReplaceLabel), plain(o))
}

func (o RemoveLabel) MarshalJSON() ([]byte, error) {
	type plain RemoveLabel
	return notebook.TagJSON(string(TypeRemoveLabel), plain(o))
}

// optionalCell decodes a cell that may be absent or null.
func optionalCell(raw json.RawMessage) (notebook.Cell, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return notebook.UnmarshalCell(raw)
}

func (o *MergeCells) UnmarshalJSON(data []byte) error {
	type plain MergeCells
	var raw struct {
		plain
		SourceCell json.RawMessage `json:"sourceCell"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c, err := optionalCell(raw.SourceCell)
	if err != nil {
		return err
	}
	*o = MergeCells(raw.plain)
	o.SourceCell = c
	return nil
}

func (o *SplitCell) UnmarshalJSON(data []byte) error {
	type plain SplitCell
	var raw struct {
		plain
		NewCell json.RawMessage `json:"newCell"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c, err := optionalCell(raw.NewCell)
	if err != nil {
		return err
	}
	*o = SplitCell(raw.plain)
	o.NewCell = c
	return nil
}

func (o *UpdateCell) UnmarshalJSON(data []byte) error {
	var raw struct {
		UpdatedCell json.RawMessage `json:"updatedCell"`
		OldCell     json.RawMessage `json:"oldCell"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	updated, err := notebook.UnmarshalCell(raw.UpdatedCell)
	if err != nil {
		return err
	}
	old, err := optionalCell(raw.OldCell)
	if err != nil {
		return err
	}
	o.UpdatedCell, o.OldCell = updated, old
	return nil
}

// Decode reads an operation from its tagged JSON form.
func Decode(data []byte) (Operation, error) {
	t, err := notebook.PeekType(data)
	if err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	switch Type(t) {
	case TypeAddCells:
		return decodeAs[AddCells](data)
	case TypeMergeCells:
		return decodeAs[MergeCells](data)
	case TypeMoveCells:
		return decodeAs[MoveCells](data)
	case TypeRemoveCells:
		return decodeAs[RemoveCells](data)
	case TypeReplaceText:
		return decodeAs[ReplaceText](data)
	case TypeSplitCell:
		return decodeAs[SplitCell](data)
	case TypeUpdateCell:
		return decodeAs[UpdateCell](data)
	case TypeUpdateNotebookTimeRange:
		return decodeAs[UpdateNotebookTimeRange](data)
	case TypeUpdateNotebookTitle:
		return decodeAs[UpdateNotebookTitle](data)
	case TypeAddDataSource:
		return decodeAs[AddDataSource](data)
	case TypeUpdateDataSource:
		return decodeAs[UpdateDataSource](data)
	case TypeRemoveDataSource:
		return decodeAs[RemoveDataSource](data)
	case TypeSetSelectedDataSource:
		return decodeAs[SetSelectedDataSource](data)
	case TypeAddLabel:
		return decodeAs[AddLabel](data)
	case TypeReplaceLabel:
		return decodeAs[ReplaceLabel](data)
	case TypeRemoveLabel:
		return decodeAs[RemoveLabel](data)
	default:
		return nil, fmt.Errorf("decode operation: unknown type %q", t)
	}
}

func decodeAs[T Operation](data []byte) (Operation, error) {
	var op T
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("decode %s: %w", op.OpType(), err)
	}
	return op, nil
}

// Encode writes the tagged JSON form of op.
func Encode(op Operation) ([]byte, error) {
	return json.Marshal(op)
}

// Wire wraps an Operation for embedding in other JSON messages.
type Wire struct {
	Op Operation
}

func (w Wire) MarshalJSON() ([]byte, error) {
	if w.Op == nil {
		return []byte("null"), nil
	}
	return json.Marshal(w.Op)
}

func (w *Wire) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		w.Op = nil
		return nil
	}
	op, err := Decode(data)
	if err != nil {
		return err
	}
	w.Op = op
	return nil
}
