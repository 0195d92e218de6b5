package change

import (
	"encoding/json"
	"fmt"

	"notebookCollab/backend/internal/notebook"
)

type Type string

const (
	TypeInsertCell              Type = "insert_cell"
	TypeDeleteCell              Type = "delete_cell"
	TypeMoveCells               Type = "move_cells"
	TypeUpdateCell              Type = "update_cell"
	TypeUpdateNotebookTimeRange Type = "update_notebook_time_range"
	TypeUpdateNotebookTitle     Type = "update_notebook_title"
	TypeAddDataSource           Type = "add_data_source"
	TypeUpdateDataSource        Type = "update_data_source"
	TypeDeleteDataSource        Type = "delete_data_source"
	TypeSetSelectedDataSource   Type = "set_selected_data_source"
	TypeAddLabel                Type = "add_label"
	TypeReplaceLabel            Type = "replace_label"
	TypeRemoveLabel             Type = "remove_label"
)

// Change is the resolved effect of an applied operation, meant for observers that only mirror
// notebook state.
type Change interface {
	ChangeType() Type
	isChange()
}

type InsertCell struct {
	Cell  notebook.Cell `json:"cell"`
	Index int           `json:"index"`
}

type DeleteCell struct {
	CellID string `json:"cellId"`
}

type MoveCells struct {
	CellIDs []string `json:"cellIds"`
	Index   int      `json:"index"`
}

type UpdateCell struct {
	Cell notebook.Cell `json:"cell"`
}

type UpdateNotebookTimeRange struct {
	TimeRange notebook.TimeRange `json:"timeRange"`
}

type UpdateNotebookTitle struct {
	Title string `json:"title"`
}

type AddDataSource struct {
	Name       string                 `json:"name"`
	DataSource notebook.DataSourceRef `json:"dataSource"`
}

type UpdateDataSource struct {
	Name       string                 `json:"name"`
	DataSource notebook.DataSourceRef `json:"dataSource"`
}

type DeleteDataSource struct {
	Name string `json:"name"`
}

type SetSelectedDataSource struct {
	ProviderType string `json:"providerType"`
	Name         string `json:"name,omitempty"`
}

type AddLabel struct {
	Label notebook.Label `json:"label"`
}

type ReplaceLabel struct {
	Key   string         `json:"key"`
	Label notebook.Label `json:"label"`
}

type RemoveLabel struct {
	Key string `json:"key"`
}

func (InsertCell) ChangeType() Type              { return TypeInsertCell }
func (DeleteCell) ChangeType() Type              { return TypeDeleteCell }
func (MoveCells) ChangeType() Type               { return TypeMoveCells }
func (UpdateCell) ChangeType() Type              { return TypeUpdateCell }
func (UpdateNotebookTimeRange) ChangeType() Type { return TypeUpdateNotebookTimeRange }
func (UpdateNotebookTitle) ChangeType() Type     { return TypeUpdateNotebookTitle }
func (AddDataSource) ChangeType() Type           { return TypeAddDataSource }
func (UpdateDataSource) ChangeType() Type        { return TypeUpdateDataSource }
func (DeleteDataSource) ChangeType() Type        { return TypeDeleteDataSource }
func (SetSelectedDataSource) ChangeType() Type   { return TypeSetSelectedDataSource }
func (AddLabel) ChangeType() Type                { return TypeAddLabel }
func (ReplaceLabel) ChangeType() Type            { return TypeReplaceLabel }
func (RemoveLabel) ChangeType() Type             { return TypeRemoveLabel }

func (InsertCell) isChange()              {}
func (DeleteCell) isChange()              {}
func (MoveCells) isChange()               {}
func (UpdateCell) isChange()              {}
func (UpdateNotebookTimeRange) isChange() {}
func (UpdateNotebookTitle) isChange()     {}
func (AddDataSource) isChange()           {}
func (UpdateDataSource) isChange()        {}
func (DeleteDataSource) isChange()        {}
func (SetSelectedDataSource) isChange()   {}
func (AddLabel) isChange()                {}
func (ReplaceLabel) isChange()            {}
func (RemoveLabel) isChange()             {}

func (c InsertCell) MarshalJSON() ([]byte, error) {
	type plain InsertCell
	return notebook.TagJSON(string(TypeInsertCell), plain(c))
}

func (c DeleteCell) MarshalJSON() ([]byte, error) {
	type plain DeleteCell
	return notebook.TagJSON(string(TypeDeleteCell), plain(c))
}

func (c MoveCells) MarshalJSON() ([]byte, error) {
	type plain MoveCells
	return notebook.TagJSON(string(TypeMoveCells), plain(c))
}

func (c UpdateCell) MarshalJSON() ([]byte, error) {
	type plain UpdateCell
	return notebook.TagJSON(string(TypeUpdateCell), plain(c))
}

func (c UpdateNotebookTimeRange) MarshalJSON() ([]byte, error) {
	type plain UpdateNotebookTimeRange
	return notebook.TagJSON(string(TypeUpdateNotebookTimeRange), plain(c))
}

func (c UpdateNotebookTitle) MarshalJSON() ([]byte, error) {
	type plain UpdateNotebookTitle
	return notebook.TagJSON(string(TypeUpdateNotebookTitle), plain(c))
}

func (c AddDataSource) MarshalJSON() ([]byte, error) {
	type plain AddDataSource
	return notebook.TagJSON(string(TypeAddDataSource), plain(c))
}

func (c UpdateDataSource) MarshalJSON() ([]byte, error) {
	type plain UpdateDataSource
	return notebook.TagJSON(string(TypeUpdateDataSource), plain(c))
}

func (c DeleteDataSource) MarshalJSON() ([]byte, error) {
	type plain DeleteDataSource
	return notebook.TagJSON(string(TypeDeleteDataSource), plain(c))
}

func (c SetSelectedDataSource) MarshalJSON() ([]byte, error) {
	type plain SetSelectedDataSource
	return notebook.TagJSON(string(TypeSetSelectedDataSource), plain(c))
}

func (c AddLabel) MarshalJSON() ([]byte, error) {
	type plain AddLabel
	return notebook.TagJSON(string(TypeAddLabel), plain(c))
}

func (c ReplaceLabel) MarshalJSON() ([]byte, error) {
	type plain ReplaceLabel
	return notebook.TagJSON(string(TypeReplaceLabel), plain(c))
}

func (c RemoveLabel) MarshalJSON() ([]byte, error) {
	type plain RemoveLabel
	return notebook.TagJSON(string(TypeRemoveLabel), plain(c))
}

func Decode(data []byte) (Change, error) {
	t, err := notebook.PeekType(data)
	if err != nil {
		return nil, fmt.Errorf("decode change: %w", err)
	}
	switch Type(t) {
	case TypeInsertCell:
		var raw struct {
			Cell  json.RawMessage `json:"cell"`
			Index int             `json:"index"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		cell, err := notebook.UnmarshalCell(raw.Cell)
		if err != nil {
			return nil, err
		}
		return InsertCell{Cell: cell, Index: raw.Index}, nil
	case TypeUpdateCell:
		var raw struct {
			Cell json.RawMessage `json:"cell"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		cell, err := notebook.UnmarshalCell(raw.Cell)
		if err != nil {
			return nil, err
		}
		return UpdateCell{Cell: cell}, nil
	case TypeDeleteCell:
		return decodeAs[DeleteCell](data)
	case TypeMoveCells:
		return decodeAs[MoveCells](data)
	case TypeUpdateNotebookTimeRange:
		return decodeAs[UpdateNotebookTimeRange](data)
	case TypeUpdateNotebookTitle:
		return decodeAs[UpdateNotebookTitle](data)
	case TypeAddDataSource:
		return decodeAs[AddDataSource](data)
	case TypeUpdateDataSource:
		return decodeAs[UpdateDataSource](data)
	case TypeDeleteDataSource:
		return decodeAs[DeleteDataSource](data)
	case TypeSetSelectedDataSource:
		return decodeAs[SetSelectedDataSource](data)
	case TypeAddLabel:
		return decodeAs[AddLabel](data)
	case TypeReplaceLabel:
		return decodeAs[ReplaceLabel](data)
	case TypeRemoveLabel:
		return decodeAs[RemoveLabel](data)
	default:
		return nil, fmt.Errorf("decode change: unknown type %q", t)
	}
}

func decodeAs[T Change](data []byte) (Change, error) {
	var c T
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.ChangeType(), err)
	}
	return c, nil
}
