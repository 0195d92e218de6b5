package formatting

import "notebookCollab/backend/internal/notebook"

type Replacement struct {
	Content    string
	Formatting notebook.Formatting
	// OldText is the text that was replaced.
	OldText string
	// OldFormatting holds the annotations removed with OldText, relative to the start offset.
	OldFormatting notebook.Formatting
}

const fromPrefix = -1

// ReplaceText replaces the characters in [start, end) of content by text.
//
// Annotations before start are kept. Annotations with start <= offset <= end are removed, except
// point annotations at end which stay with the text that follows. Annotations after end move by
// the length difference. The result is then rebalanced: spans that lost their End are closed at
// start, spans that lost their Start are reopened after the inserted text, and Starts or Ends
// of tf that find no partner are closed or reopened at the edges of the inserted text.
func ReplaceText(content string, f notebook.Formatting, start, end int, text string, tf notebook.Formatting) (Replacement, error) {
	n := notebook.CharCount(content)
	if start < 0 || start > n {
		return Replacement{}, notebook.InvalidTextOffset("", start)
	}
	if end < start || end > n {
		return Replacement{}, notebook.InvalidTextOffset("", end)
	}
	m := notebook.CharCount(text)
	if err := checkOffsets(m, tf); err != nil {
		return Replacement{}, err
	}
	delta := m - (end - start)

	var left, captured, right notebook.Formatting
	for _, a := range f {
		switch {
		case a.Offset < start:
			left = append(left, a)
		case a.Offset > end || (a.Offset == end && a.Role() == notebook.RolePoint):
			right = append(right, notebook.At(a.Offset+delta, a.Annotation))
		default:
			captured = append(captured, notebook.At(a.Offset-start, a.Annotation))
		}
	}

	var open openSpans
	for _, a := range left {
		switch a.Role() {
		case notebook.RoleStart:
			open.push(a.Annotation, fromPrefix)
		case notebook.RoleEnd:
			if _, ok := open.pop(a.Span()); !ok {
				return Replacement{}, notebook.InternalError("%s at %d closes nothing", a.Type, a.Offset)
			}
		}
	}

	middle := make(notebook.Formatting, 0, len(tf))
	keep := make([]bool, 0, len(tf))
	var reopened notebook.Formatting
	for _, a := range tf {
		switch a.Role() {
		case notebook.RoleStart:
			open.push(a.Annotation, len(middle))
		case notebook.RoleEnd:
			if _, ok := open.pop(a.Span()); !ok {
				if a.Offset == 0 {
					// would be an empty span
					continue
				}
				reopened = append(reopened, notebook.At(start, restart(a.Span(), captured)))
			}
		}
		middle = append(middle, notebook.At(a.Offset+start, a.Annotation))
		keep = append(keep, true)
	}

	// Ends after the replaced range whose Start was removed.
	need := map[notebook.SpanKind]int{}
	var orphans []notebook.SpanKind
	rightOpen := map[notebook.SpanKind]int{}
	for _, a := range right {
		switch a.Role() {
		case notebook.RoleStart:
			rightOpen[a.Span()]++
		case notebook.RoleEnd:
			if rightOpen[a.Span()] > 0 {
				rightOpen[a.Span()]--
				continue
			}
			need[a.Span()]++
			orphans = append(orphans, a.Span())
		}
	}

	// The innermost open spans continue into the following text; the rest are closed.
	matched := map[notebook.SpanKind]int{}
	var closeAtStart, closeAtEnd notebook.Formatting
	for i := len(open.list) - 1; i >= 0; i-- {
		s := open.list[i]
		kind := s.start.Span()
		if matched[kind] < need[kind] {
			matched[kind]++
			continue
		}
		switch {
		case s.tag == fromPrefix:
			closeAtStart = append(closeAtStart, notebook.At(start, notebook.EndOf(kind)))
		case middle[s.tag].Offset == start+m:
			keep[s.tag] = false
		default:
			closeAtEnd = append(closeAtEnd, notebook.At(start+m, notebook.EndOf(kind)))
		}
	}
	deficit := map[notebook.SpanKind]int{}
	for kind, c := range need {
		deficit[kind] = c - matched[kind]
	}
	var openAtEnd notebook.Formatting
	for i := len(orphans) - 1; i >= 0; i-- {
		kind := orphans[i]
		if deficit[kind] > 0 {
			deficit[kind]--
			openAtEnd = append(openAtEnd, notebook.At(start+m, restart(kind, captured)))
		}
	}

	out := make(notebook.Formatting, 0, len(left)+len(middle)+len(right)+len(closeAtStart)+len(closeAtEnd)+len(openAtEnd)+len(reopened))
	out = append(out, left...)
	out = append(out, closeAtStart...)
	for i := len(reopened) - 1; i >= 0; i-- {
		out = append(out, reopened[i])
	}
	for i, a := range middle {
		if keep[i] {
			out = append(out, a)
		}
	}
	out = append(out, closeAtEnd...)
	out = append(out, openAtEnd...)
	out = append(out, right...)
	Sort(out)
	if len(out) == 0 {
		out = nil
	}

	return Replacement{
		Content:       notebook.SliceChars(content, 0, start) + text + notebook.SliceChars(content, end, n),
		Formatting:    out,
		OldText:       notebook.SliceChars(content, start, end),
		OldFormatting: captured,
	}, nil
}

// restart picks the Start annotation used to reopen a span of kind, preferring one that was
// removed so link targets survive.
func restart(kind notebook.SpanKind, removed notebook.Formatting) notebook.Annotation {
	for i := len(removed) - 1; i >= 0; i-- {
		a := removed[i]
		if a.Role() == notebook.RoleStart && a.Span() == kind {
			return a.Annotation
		}
	}
	return notebook.StartOf(kind)
}
