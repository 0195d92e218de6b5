package notebook

type CellType string

const (
	CellTypeText     CellType = "text"
	CellTypeCode     CellType = "code"
	CellTypeHeading  CellType = "heading"
	CellTypeListItem CellType = "list_item"
	CellTypeCheckbox CellType = "checkbox"
	CellTypeTable    CellType = "table"
	CellTypeGraph    CellType = "graph"
	CellTypeImage    CellType = "image"
	CellTypeDivider  CellType = "divider"
	CellTypeProvider CellType = "provider"
	CellTypeLog      CellType = "log"
)

// Cell is a closed set: only the types in this file implement it.
// Cell values are immutable once they are part of a Notebook; every change builds a new value.
type Cell interface {
	CellID() string
	CellType() CellType
	IsReadOnly() bool
	// WithID returns a copy of the cell carrying a different id.
	WithID(id string) Cell
	isCell()
}

// ContentCell is implemented by the cells that carry rich text.
type ContentCell interface {
	Cell
	TextContent() (string, Formatting)
	WithTextContent(content string, formatting Formatting) Cell
}

// SourceCell is implemented by cells that display data of other cells.
type SourceCell interface {
	Cell
	Sources() []string
	WithSources(ids []string) Cell
}

type Text struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Formatting Formatting `json:"formatting,omitempty"`
	ReadOnly   bool       `json:"readOnly,omitempty"`
}

type Code struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Formatting Formatting `json:"formatting,omitempty"`
	Syntax     string     `json:"syntax,omitempty"`
	ReadOnly   bool       `json:"readOnly,omitempty"`
}

type HeadingType string

const (
	H1 HeadingType = "h1"
	H2 HeadingType = "h2"
	H3 HeadingType = "h3"
)

type Heading struct {
	ID          string      `json:"id"`
	HeadingType HeadingType `json:"headingType"`
	Content     string      `json:"content"`
	Formatting  Formatting  `json:"formatting,omitempty"`
	ReadOnly    bool        `json:"readOnly,omitempty"`
}

type ListType string

const (
	Ordered   ListType = "ordered"
	Unordered ListType = "unordered"
)

type ListItem struct {
	ID          string     `json:"id"`
	ListType    ListType   `json:"listType"`
	Level       int        `json:"level,omitempty"`
	StartNumber int        `json:"startNumber,omitempty"`
	Content     string     `json:"content"`
	Formatting  Formatting `json:"formatting,omitempty"`
	ReadOnly    bool       `json:"readOnly,omitempty"`
}

type Checkbox struct {
	ID         string     `json:"id"`
	Checked    bool       `json:"checked"`
	Level      int        `json:"level,omitempty"`
	Content    string     `json:"content"`
	Formatting Formatting `json:"formatting,omitempty"`
	ReadOnly   bool       `json:"readOnly,omitempty"`
}

type Table struct {
	ID        string     `json:"id"`
	SourceIDs []string   `json:"sourceIds,omitempty"`
	Columns   []string   `json:"columns,omitempty"`
	Rows      [][]string `json:"rows,omitempty"`
	ReadOnly  bool       `json:"readOnly,omitempty"`
}

type Graph struct {
	ID        string   `json:"id"`
	Title     string   `json:"title,omitempty"`
	GraphType string   `json:"graphType,omitempty"`
	Stacked   bool     `json:"stacked,omitempty"`
	SourceIDs []string `json:"sourceIds,omitempty"`
	ReadOnly  bool     `json:"readOnly,omitempty"`
}

type Image struct {
	ID       string `json:"id"`
	URL      string `json:"url,omitempty"`
	FileID   string `json:"fileId,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	ReadOnly bool   `json:"readOnly,omitempty"`
}

type Divider struct {
	ID       string `json:"id"`
	ReadOnly bool   `json:"readOnly,omitempty"`
}

// Provider cells hold a query against a data source; their results are rendered elsewhere.
type Provider struct {
	ID        string `json:"id"`
	Intent    string `json:"intent"`
	QueryData string `json:"queryData,omitempty"`
	Title     string `json:"title,omitempty"`
	ReadOnly  bool   `json:"readOnly,omitempty"`
}

type Log struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	SourceIDs    []string `json:"sourceIds,omitempty"`
	HiddenFields []string `json:"hiddenFields,omitempty"`
	ReadOnly     bool     `json:"readOnly,omitempty"`
}

func (c Text) CellID() string     { return c.ID }
func (c Code) CellID() string     { return c.ID }
func (c Heading) CellID() string  { return c.ID }
func (c ListItem) CellID() string { return c.ID }
func (c Checkbox) CellID() string { return c.ID }
func (c Table) CellID() string    { return c.ID }
func (c Graph) CellID() string    { return c.ID }
func (c Image) CellID() string    { return c.ID }
func (c Divider) CellID() string  { return c.ID }
func (c Provider) CellID() string { return c.ID }
func (c Log) CellID() string      { return c.ID }

func (Text) CellType() CellType     { return CellTypeText }
func (Code) CellType() CellType     { return CellTypeCode }
func (Heading) CellType() CellType  { return CellTypeHeading }
func (ListItem) CellType() CellType { return CellTypeListItem }
func (Checkbox) CellType() CellType { return CellTypeCheckbox }
func (Table) CellType() CellType    { return CellTypeTable }
func (Graph) CellType() CellType    { return CellTypeGraph }
func (Image) CellType() CellType    { return CellTypeImage }
func (Divider) CellType() CellType  { return CellTypeDivider }
func (Provider) CellType() CellType { return CellTypeProvider }
func (Log) CellType() CellType      { return CellTypeLog }

func (c Text) IsReadOnly() bool     { return c.ReadOnly }
func (c Code) IsReadOnly() bool     { return c.ReadOnly }
func (c Heading) IsReadOnly() bool  { return c.ReadOnly }
func (c ListItem) IsReadOnly() bool { return c.ReadOnly }
func (c Checkbox) IsReadOnly() bool { return c.ReadOnly }
func (c Table) IsReadOnly() bool    { return c.ReadOnly }
func (c Graph) IsReadOnly() bool    { return c.ReadOnly }
func (c Image) IsReadOnly() bool    { return c.ReadOnly }
func (c Divider) IsReadOnly() bool  { return c.ReadOnly }
func (c Provider) IsReadOnly() bool { return c.ReadOnly }
func (c Log) IsReadOnly() bool      { return c.ReadOnly }

func (c Text) WithID(id string) Cell     { c.ID = id; return c }
func (c Code) WithID(id string) Cell     { c.ID = id; return c }
func (c Heading) WithID(id string) Cell  { c.ID = id; return c }
func (c ListItem) WithID(id string) Cell { c.ID = id; return c }
func (c Checkbox) WithID(id string) Cell { c.ID = id; return c }
func (c Table) WithID(id string) Cell    { c.ID = id; return c }
func (c Graph) WithID(id string) Cell    { c.ID = id; return c }
func (c Image) WithID(id string) Cell    { c.ID = id; return c }
func (c Divider) WithID(id string) Cell  { c.ID = id; return c }
func (c Provider) WithID(id string) Cell { c.ID = id; return c }
func (c Log) WithID(id string) Cell      { c.ID = id; return c }

func (Text) isCell()     {}
func (Code) isCell()     {}
func (Heading) isCell()  {}
func (ListItem) isCell() {}
func (Checkbox) isCell() {}
func (Table) isCell()    {}
func (Graph) isCell()    {}
func (Image) isCell()    {}
func (Divider) isCell()  {}
func (Provider) isCell() {}
func (Log) isCell()      {}

func (c Text) TextContent() (string, Formatting)     { return c.Content, c.Formatting }
func (c Code) TextContent() (string, Formatting)     { return c.Content, c.Formatting }
func (c Heading) TextContent() (string, Formatting)  { return c.Content, c.Formatting }
func (c ListItem) TextContent() (string, Formatting) { return c.Content, c.Formatting }
func (c Checkbox) TextContent() (string, Formatting) { return c.Content, c.Formatting }

func (c Text) WithTextContent(content string, f Formatting) Cell {
	c.Content, c.Formatting = content, f
	return c
}

func (c Code) WithTextContent(content string, f Formatting) Cell {
	c.Content, c.Formatting = content, f
	return c
}

func (c Heading) WithTextContent(content string, f Formatting) Cell {
	c.Content, c.Formatting = content, f
	return c
}

func (c ListItem) WithTextContent(content string, f Formatting) Cell {
	c.Content, c.Formatting = content, f
	return c
}

func (c Checkbox) WithTextContent(content string, f Formatting) Cell {
	c.Content, c.Formatting = content, f
	return c
}

func (c Table) Sources() []string { return c.SourceIDs }
func (c Graph) Sources() []string { return c.SourceIDs }
func (c Log) Sources() []string   { return c.SourceIDs }

func (c Table) WithSources(ids []string) Cell { c.SourceIDs = ids; return c }
func (c Graph) WithSources(ids []string) Cell { c.SourceIDs = ids; return c }
func (c Log) WithSources(ids []string) Cell   { c.SourceIDs = ids; return c }

// WithoutSources returns the cell with the given ids removed from its sources. Cells that do not
// reference other cells are returned unchanged.
func WithoutSources(c Cell, removed map[string]bool) Cell {
	sc, ok := c.(SourceCell)
	if !ok {
		return c
	}
	var kept []string
	for _, id := range sc.Sources() {
		if !removed[id] {
			kept = append(kept, id)
		}
	}
	return sc.WithSources(kept)
}

// References reports whether c displays data of the cell with the given id.
func References(c Cell, id string) bool {
	sc, ok := c.(SourceCell)
	if !ok {
		return false
	}
	for _, s := range sc.Sources() {
		if s == id {
			return true
		}
	}
	return false
}
