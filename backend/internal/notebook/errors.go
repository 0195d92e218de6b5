package notebook

import "fmt"

// ErrorKind 是错误的种类，同时也是线上 JSON 的 type 字段
type ErrorKind string

const (
	KindCellNotFound       ErrorKind = "cell_not_found"
	KindDuplicateID        ErrorKind = "duplicate_id"
	KindInternalError      ErrorKind = "internal_error"
	KindInvalidInsertIndex ErrorKind = "invalid_insert_index"
	KindInvalidTextOffset  ErrorKind = "invalid_text_offset"
	KindNoTextCell         ErrorKind = "no_text_cell"
	KindUnauthorized       ErrorKind = "unauthorized"
	// Not-found-by-name variants for data sources and labels.
	KindDataSourceNotFound ErrorKind = "data_source_not_found"
	KindLabelNotFound      ErrorKind = "label_not_found"
)

// Error is the only error type returned by the operation engine.
type Error struct {
	Kind   ErrorKind `json:"type"`
	CellID string    `json:"cellId,omitempty"`
	Name   string    `json:"name,omitempty"`
	Index  int       `json:"index,omitempty"`
	Offset int       `json:"offset,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Sentinels for errors.Is; matching is by kind only.
var (
	ErrCellNotFound       = &Error{Kind: KindCellNotFound}
	ErrDuplicateID        = &Error{Kind: KindDuplicateID}
	ErrInternal           = &Error{Kind: KindInternalError}
	ErrInvalidInsertIndex = &Error{Kind: KindInvalidInsertIndex}
	ErrInvalidTextOffset  = &Error{Kind: KindInvalidTextOffset}
	ErrNoTextCell         = &Error{Kind: KindNoTextCell}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrDataSourceNotFound = &Error{Kind: KindDataSourceNotFound}
	ErrLabelNotFound      = &Error{Kind: KindLabelNotFound}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindCellNotFound:
		return fmt.Sprintf("cell not found: %s", e.CellID)
	case KindDuplicateID:
		return fmt.Sprintf("duplicate id: %s", e.CellID)
	case KindInternalError:
		return fmt.Sprintf("internal error: %s", e.Reason)
	case KindInvalidInsertIndex:
		return fmt.Sprintf("invalid insert index: %d", e.Index)
	case KindInvalidTextOffset:
		return fmt.Sprintf("invalid text offset %d in cell %s", e.Offset, e.CellID)
	case KindNoTextCell:
		return fmt.Sprintf("cell has no text content: %s", e.CellID)
	case KindUnauthorized:
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	case KindDataSourceNotFound:
		return fmt.Sprintf("data source not found: %s", e.Name)
	case KindLabelNotFound:
		return fmt.Sprintf("label not found: %s", e.Name)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func CellNotFound(id string) *Error {
	return &Error{Kind: KindCellNotFound, CellID: id}
}

// DuplicateID is used for cell ids, data source names and label keys alike.
func DuplicateID(id string) *Error {
	return &Error{Kind: KindDuplicateID, CellID: id}
}

func InternalError(format string, args ...any) *Error {
	return &Error{Kind: KindInternalError, Reason: fmt.Sprintf(format, args...)}
}

func InvalidInsertIndex(index int) *Error {
	return &Error{Kind: KindInvalidInsertIndex, Index: index}
}

func InvalidTextOffset(cellID string, offset int) *Error {
	return &Error{Kind: KindInvalidTextOffset, CellID: cellID, Offset: offset}
}

func NoTextCell(id string) *Error {
	return &Error{Kind: KindNoTextCell, CellID: id}
}

// Unauthorized is never produced by the engine itself; policy layers in front of it use it so
// clients see a single error vocabulary.
func Unauthorized(reason string) *Error {
	return &Error{Kind: KindUnauthorized, Reason: reason}
}

func DataSourceNotFound(name string) *Error {
	return &Error{Kind: KindDataSourceNotFound, Name: name}
}

func LabelNotFound(key string) *Error {
	return &Error{Kind: KindLabelNotFound, Name: key}
}
