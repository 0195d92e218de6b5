package formatting

import (
	"sort"

	"notebookCollab/backend/internal/notebook"
)

// Part is a piece of rich text produced by Split.
type Part struct {
	Content    string
	Formatting notebook.Formatting
}

// IncludedAfterBoundary decides on which side of a cut an annotation sitting exactly on the cut
// belongs. Start and point annotations describe the text that follows them, End annotations the
// text before them.
func IncludedAfterBoundary(a notebook.Annotation) bool {
	return a.Role() != notebook.RoleEnd
}

func rank(a notebook.Annotation) int {
	switch a.Role() {
	case notebook.RoleEnd:
		return 0
	case notebook.RoleStart:
		return 1
	default:
		return 2
	}
}

func less(a, b notebook.AnnotationWithOffset) bool {
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return rank(a.Annotation) < rank(b.Annotation)
}

// canonicalLess breaks ties of less by annotation type. Annotations of the same type keep their
// relative order, which decides how nested spans of one kind pair up.
func canonicalLess(a, b notebook.AnnotationWithOffset) bool {
	if less(a, b) {
		return true
	}
	if less(b, a) {
		return false
	}
	return a.Type < b.Type
}

// Sort orders f canonically.
func Sort(f notebook.Formatting) {
	sort.SliceStable(f, func(i, j int) bool { return canonicalLess(f[i], f[j]) })
}

// TransformOffset maps an offset across a replacement of [start, end) by inserted characters.
// Offsets inside the replaced range collapse onto start; an offset equal to end (which includes
// an insertion point) moves behind the inserted text.
func TransformOffset(offset, start, end, inserted int) int {
	switch {
	case offset < start:
		return offset
	case offset >= end:
		return offset + inserted - (end - start)
	default:
		return start
	}
}

// checkOffsets validates types, ordering and offsets of f against a text of n characters.
// Point annotations must sit before a character, so their offset is strictly below n.
func checkOffsets(n int, f notebook.Formatting) error {
	for i, a := range f {
		if !a.Type.Known() {
			return notebook.InternalError("unknown annotation type %q", a.Type)
		}
		if a.Offset < 0 || a.Offset > n {
			return notebook.InvalidTextOffset("", a.Offset)
		}
		if a.Role() == notebook.RolePoint && a.Offset >= n {
			return notebook.InvalidTextOffset("", a.Offset)
		}
		if i > 0 && less(a, f[i-1]) {
			return notebook.InternalError("formatting not sorted at index %d", i)
		}
	}
	return nil
}

// Validate checks the formatting of a text cell: known annotation types, offsets within the
// content, canonical order and balanced spans.
func Validate(content string, f notebook.Formatting) error {
	if err := checkOffsets(notebook.CharCount(content), f); err != nil {
		return err
	}
	open := map[notebook.SpanKind]int{}
	for _, a := range f {
		switch a.Role() {
		case notebook.RoleStart:
			open[a.Span()]++
		case notebook.RoleEnd:
			if open[a.Span()] == 0 {
				return notebook.InternalError("%s at %d closes nothing", a.Type, a.Offset)
			}
			open[a.Span()]--
		}
	}
	for kind, n := range open {
		if n != 0 {
			return notebook.InternalError("%d unterminated %s span(s)", n, kind)
		}
	}
	return nil
}

// openSpans tracks the spans opened and not yet closed while walking formatting in order.
// End annotations close the most recently opened span of their kind.
type openSpans struct {
	list []openSpan
}

type openSpan struct {
	start notebook.Annotation
	// tag is free for callers
	tag int
}

func (o *openSpans) push(a notebook.Annotation, tag int) {
	o.list = append(o.list, openSpan{start: a, tag: tag})
}

// pop removes the innermost open span of kind and reports whether there was one.
func (o *openSpans) pop(kind notebook.SpanKind) (openSpan, bool) {
	for i := len(o.list) - 1; i >= 0; i-- {
		if o.list[i].start.Span() == kind {
			s := o.list[i]
			o.list = append(o.list[:i], o.list[i+1:]...)
			return s, true
		}
	}
	return openSpan{}, false
}

// closeAt returns End annotations at offset for every open span, innermost first.
func (o *openSpans) closeAt(offset int) notebook.Formatting {
	var out notebook.Formatting
	for i := len(o.list) - 1; i >= 0; i-- {
		out = append(out, notebook.At(offset, notebook.EndOf(o.list[i].start.Span())))
	}
	return out
}

// reopenAt returns Start annotations at offset for every open span, outermost first.
func (o *openSpans) reopenAt(offset int) notebook.Formatting {
	var out notebook.Formatting
	for _, s := range o.list {
		out = append(out, notebook.At(offset, s.start))
	}
	return out
}
