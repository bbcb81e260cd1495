// Package batch splits sequences into platform-sized chunks.
package batch

import "unicode/utf8"

// Chunk partitions items into contiguous, order-preserving slices of at most
// size elements. An empty input yields exactly one empty chunk so callers can
// tell "present but empty" from "absent". size <= 0 disables splitting.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return [][]T{{}}
	}
	if size <= 0 || len(items) <= size {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// SplitText slices s into successive segments of size characters; the last
// segment may be shorter. Text shorter than size is returned whole.
func SplitText(s string, size int) []string {
	if size <= 0 || utf8.RuneCountInString(s) < size {
		return []string{s}
	}
	var segments []string
	runes := []rune(s)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		segments = append(segments, string(runes[start:end]))
	}
	return segments
}
