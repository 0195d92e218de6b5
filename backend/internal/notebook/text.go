package notebook

import "unicode/utf8"

// All offsets that cross the package boundary are character offsets (Unicode scalar values).
// Byte offsets only exist inside these helpers.

func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}

// byteOffset 把字符偏移换算成字节偏移；超出范围时返回 len(s)
func byteOffset(s string, chars int) int {
	if chars <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == chars {
			return i
		}
		n++
	}
	return len(s)
}

// SliceChars returns s[from:to] in character offsets. Callers validate the range first.
func SliceChars(s string, from, to int) string {
	return s[byteOffset(s, from):byteOffset(s, to)]
}
