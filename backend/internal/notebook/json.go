package notebook

import (
	"encoding/json"
	"fmt"
)

// TagJSON encodes v (a struct without its own MarshalJSON) and prepends the "type" discriminant.
func TagJSON(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	t, _ := json.Marshal(tag)
	out := make([]byte, 0, len(body)+len(t)+10)
	out = append(out, `{"type":`...)
	out = append(out, t...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	out = append(out, body[1:]...)
	return out, nil
}

func (c Text) MarshalJSON() ([]byte, error) {
	type plain Text
	return TagJSON(string(CellTypeText), plain(c))
}

func (c Code) MarshalJSON() ([]byte, error) {
	type plain Code
	return TagJSON(string(CellTypeCode), plain(c))
}

func (c Heading) MarshalJSON() ([]byte, error) {
	type plain Heading
	return TagJSON(string(CellTypeHeading), plain(c))
}

func (c ListItem) MarshalJSON() ([]byte, error) {
	type plain ListItem
	return TagJSON(string(CellTypeListItem), plain(c))
}

func (c Checkbox) MarshalJSON() ([]byte, error) {
	type plain Checkbox
	return TagJSON(string(CellTypeCheckbox), plain(c))
}

func (c Table) MarshalJSON() ([]byte, error) {
	type plain Table
	return TagJSON(string(CellTypeTable), plain(c))
}

func (c Graph) MarshalJSON() ([]byte, error) {
	type plain Graph
	return TagJSON(string(CellTypeGraph), plain(c))
}

func (c Image) MarshalJSON() ([]byte, error) {
	type plain Image
	return TagJSON(string(CellTypeImage), plain(c))
}

func (c Divider) MarshalJSON() ([]byte, error) {
	type plain Divider
	return TagJSON(string(CellTypeDivider), plain(c))
}

func (c Provider) MarshalJSON() ([]byte, error) {
	type plain Provider
	return TagJSON(string(CellTypeProvider), plain(c))
}

func (c Log) MarshalJSON() ([]byte, error) {
	type plain Log
	return TagJSON(string(CellTypeLog), plain(c))
}

// PeekType reads the "type" discriminant of a tagged JSON object.
func PeekType(data []byte) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	if head.Type == "" {
		return "", fmt.Errorf("missing type field")
	}
	return head.Type, nil
}

func UnmarshalCell(data []byte) (Cell, error) {
	t, err := PeekType(data)
	if err != nil {
		return nil, fmt.Errorf("decode cell: %w", err)
	}
	switch CellType(t) {
	case CellTypeText:
		return decodeAs[Text](data)
	case CellTypeCode:
		return decodeAs[Code](data)
	case CellTypeHeading:
		return decodeAs[Heading](data)
	case CellTypeListItem:
		return decodeAs[ListItem](data)
	case CellTypeCheckbox:
		return decodeAs[Checkbox](data)
	case CellTypeTable:
		return decodeAs[Table](data)
	case CellTypeGraph:
		return decodeAs[Graph](data)
	case CellTypeImage:
		return decodeAs[Image](data)
	case CellTypeDivider:
		return decodeAs[Divider](data)
	case CellTypeProvider:
		return decodeAs[Provider](data)
	case CellTypeLog:
		return decodeAs[Log](data)
	default:
		return nil, fmt.Errorf("decode cell: unknown type %q", t)
	}
}

func decodeAs[T Cell](data []byte) (Cell, error) {
	var c T
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode %T: %w", c, err)
	}
	return c, nil
}

// UnmarshalCells decodes a JSON array of cells. A null or empty array yields nil.
func UnmarshalCells(raw []json.RawMessage) ([]Cell, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]Cell, 0, len(raw))
	for _, r := range raw {
		c, err := UnmarshalCell(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (c *CellWithIndex) UnmarshalJSON(data []byte) error {
	var raw struct {
		Cell  json.RawMessage `json:"cell"`
		Index int             `json:"index"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cell, err := UnmarshalCell(raw.Cell)
	if err != nil {
		return err
	}
	c.Cell, c.Index = cell, raw.Index
	return nil
}

func (n *Notebook) UnmarshalJSON(data []byte) error {
	type plain Notebook
	var raw struct {
		plain
		Cells []json.RawMessage `json:"cells"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cells, err := UnmarshalCells(raw.Cells)
	if err != nil {
		return err
	}
	*n = Notebook(raw.plain)
	n.Cells = cells
	return nil
}
