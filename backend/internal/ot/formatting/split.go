package formatting

import "notebookCollab/backend/internal/notebook"

// Split cuts content at lo and hi into the text before lo, the text between lo and hi and the
// text after hi. Annotations on a cut are assigned with IncludedAfterBoundary. Spans crossing a
// cut are closed before it and reopened after it, so every part is balanced on its own.
func Split(content string, f notebook.Formatting, lo, hi int) (head, middle, tail Part, err error) {
	n := notebook.CharCount(content)
	if lo < 0 || lo > n {
		return head, middle, tail, notebook.InvalidTextOffset("", lo)
	}
	if hi < lo || hi > n {
		return head, middle, tail, notebook.InvalidTextOffset("", hi)
	}
	head.Content = notebook.SliceChars(content, 0, lo)
	middle.Content = notebook.SliceChars(content, lo, hi)
	tail.Content = notebook.SliceChars(content, hi, n)
	gap := hi - lo

	var open openSpans
	walk := func(a notebook.AnnotationWithOffset) error {
		switch a.Role() {
		case notebook.RoleStart:
			open.push(a.Annotation, 0)
		case notebook.RoleEnd:
			if _, ok := open.pop(a.Span()); !ok {
				return notebook.InternalError("%s at %d closes nothing", a.Type, a.Offset)
			}
		}
		return nil
	}

	i := 0
	for ; i < len(f); i++ {
		a := f[i]
		if a.Offset > lo || (a.Offset == lo && IncludedAfterBoundary(a.Annotation)) {
			break
		}
		if err := walk(a); err != nil {
			return head, middle, tail, err
		}
		head.Formatting = append(head.Formatting, a)
	}
	head.Formatting = append(head.Formatting, open.closeAt(lo)...)

	if gap > 0 {
		middle.Formatting = append(middle.Formatting, open.reopenAt(0)...)
	}
	for ; i < len(f); i++ {
		a := f[i]
		if a.Offset > hi || (a.Offset == hi && IncludedAfterBoundary(a.Annotation)) {
			break
		}
		if err := walk(a); err != nil {
			return head, middle, tail, err
		}
		middle.Formatting = append(middle.Formatting, notebook.At(a.Offset-lo, a.Annotation))
	}
	if gap > 0 {
		middle.Formatting = append(middle.Formatting, open.closeAt(gap)...)
	}

	tail.Formatting = append(tail.Formatting, open.reopenAt(0)...)
	for ; i < len(f); i++ {
		a := f[i]
		if err := walk(a); err != nil {
			return head, middle, tail, err
		}
		tail.Formatting = append(tail.Formatting, notebook.At(a.Offset-hi, a.Annotation))
	}
	Sort(head.Formatting)
	Sort(middle.Formatting)
	Sort(tail.Formatting)
	return head, middle, tail, nil
}

// Concat appends b, a formatting for text that follows aLen characters, to a. An End of a at
// aLen and a Start of b at 0 of the same span (and link target) cancel out, which undoes the
// repair done by Split.
func Concat(a notebook.Formatting, aLen int, b notebook.Formatting) notebook.Formatting {
	// Spans of a closed exactly at aLen, with the Start that opened them.
	var open openSpans
	var closing []int
	closedBy := map[int]notebook.Annotation{}
	for i, x := range a {
		switch x.Role() {
		case notebook.RoleStart:
			open.push(x.Annotation, 0)
		case notebook.RoleEnd:
			s, ok := open.pop(x.Span())
			if ok && x.Offset == aLen {
				closing = append(closing, i)
				closedBy[i] = s.start
			}
		}
	}

	dropA := map[int]bool{}
	dropB := map[int]bool{}
	for _, ai := range closing {
		start := closedBy[ai]
		for bi := len(b) - 1; bi >= 0; bi-- {
			y := b[bi]
			if y.Offset != 0 || y.Role() != notebook.RoleStart || dropB[bi] {
				continue
			}
			if y.Span() == start.Span() && y.URL == start.URL {
				dropA[ai] = true
				dropB[bi] = true
				break
			}
		}
	}

	var out notebook.Formatting
	for i, x := range a {
		if !dropA[i] {
			out = append(out, x)
		}
	}
	for i, y := range b {
		if !dropB[i] {
			out = append(out, notebook.At(y.Offset+aLen, y.Annotation))
		}
	}
	Sort(out)
	return out
}
