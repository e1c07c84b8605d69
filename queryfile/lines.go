package queryfile

import "slices"

// lineStarts holds the byte offset at which each line begins
type lineStarts []int

func newLineStarts(content []byte) lineStarts {
	starts := lineStarts{0}

	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}

	return starts
}

// line returns the 1-based line containing the byte at offset
func (s lineStarts) line(offset int) int {
	i, found := slices.BinarySearch(s, offset)
	if found {
		return i + 1
	}

	return i
}
