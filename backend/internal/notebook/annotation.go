package notebook

import "time"

type AnnotationType string

const (
	StartBold          AnnotationType = "start_bold"
	EndBold            AnnotationType = "end_bold"
	StartItalics       AnnotationType = "start_italics"
	EndItalics         AnnotationType = "end_italics"
	StartUnderline     AnnotationType = "start_underline"
	EndUnderline       AnnotationType = "end_underline"
	StartStrikethrough AnnotationType = "start_strikethrough"
	EndStrikethrough   AnnotationType = "end_strikethrough"
	StartCode          AnnotationType = "start_code"
	EndCode            AnnotationType = "end_code"
	StartHighlight     AnnotationType = "start_highlight"
	EndHighlight       AnnotationType = "end_highlight"
	StartLink          AnnotationType = "start_link"
	EndLink            AnnotationType = "end_link"
	Mention            AnnotationType = "mention"
	Timestamp          AnnotationType = "timestamp"
)

// SpanKind groups a Start annotation with its matching End.
type SpanKind string

const (
	SpanBold          SpanKind = "bold"
	SpanItalics       SpanKind = "italics"
	SpanUnderline     SpanKind = "underline"
	SpanStrikethrough SpanKind = "strikethrough"
	SpanCode          SpanKind = "code"
	SpanHighlight     SpanKind = "highlight"
	SpanLink          SpanKind = "link"
)

type Role int

const (
	RoleStart Role = iota
	RoleEnd
	RolePoint
)

type annotationInfo struct {
	span SpanKind
	role Role
}

var annotationTable = map[AnnotationType]annotationInfo{
	StartBold:          {SpanBold, RoleStart},
	EndBold:            {SpanBold, RoleEnd},
	StartItalics:       {SpanItalics, RoleStart},
	EndItalics:         {SpanItalics, RoleEnd},
	StartUnderline:     {SpanUnderline, RoleStart},
	EndUnderline:       {SpanUnderline, RoleEnd},
	StartStrikethrough: {SpanStrikethrough, RoleStart},
	EndStrikethrough:   {SpanStrikethrough, RoleEnd},
	StartCode:          {SpanCode, RoleStart},
	EndCode:            {SpanCode, RoleEnd},
	StartHighlight:     {SpanHighlight, RoleStart},
	EndHighlight:       {SpanHighlight, RoleEnd},
	StartLink:          {SpanLink, RoleStart},
	EndLink:            {SpanLink, RoleEnd},
	Mention:            {"", RolePoint},
	Timestamp:          {"", RolePoint},
}

// Annotation is a formatting marker. Only the fields of its type are set:
// URL for start_link, Name/UserID for mention, Timestamp for timestamp.
type Annotation struct {
	Type      AnnotationType `json:"type"`
	URL       string         `json:"url,omitempty"`
	Name      string         `json:"name,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

type AnnotationWithOffset struct {
	Offset int `json:"offset"`
	Annotation
}

// Formatting is kept sorted by offset; within one offset End annotations come first, then
// Start annotations, then point annotations, each group ordered by type.
type Formatting []AnnotationWithOffset

func (t AnnotationType) Known() bool {
	_, ok := annotationTable[t]
	return ok
}

// Role reports whether the annotation opens a span, closes one, or marks a single point.
// Unknown types are reported as points; Validate rejects them before this matters.
func (a Annotation) Role() Role {
	if info, ok := annotationTable[a.Type]; ok {
		return info.role
	}
	return RolePoint
}

func (a Annotation) Span() SpanKind {
	return annotationTable[a.Type].span
}

func StartOf(span SpanKind) Annotation {
	for t, info := range annotationTable {
		if info.span == span && info.role == RoleStart {
			return Annotation{Type: t}
		}
	}
	return Annotation{}
}

func EndOf(span SpanKind) Annotation {
	for t, info := range annotationTable {
		if info.span == span && info.role == RoleEnd {
			return Annotation{Type: t}
		}
	}
	return Annotation{}
}

func At(offset int, a Annotation) AnnotationWithOffset {
	return AnnotationWithOffset{Offset: offset, Annotation: a}
}

// Clone copies the slice; annotations are values.
func (f Formatting) Clone() Formatting {
	if len(f) == 0 {
		return nil
	}
	out := make(Formatting, len(f))
	copy(out, f)
	return out
}

// Shift returns a copy with every offset moved by delta.
func (f Formatting) Shift(delta int) Formatting {
	if len(f) == 0 {
		return nil
	}
	out := make(Formatting, len(f))
	for i, a := range f {
		out[i] = AnnotationWithOffset{Offset: a.Offset + delta, Annotation: a.Annotation}
	}
	return out
}
