// Package chunk splits text into line-preserving segments bounded by a
// maximum size, so each segment fits a downstream payload limit.
package chunk

import "strings"

// DefaultMaxSize is the input limit of the speech endpoint.
const DefaultMaxSize = 4096

// Split breaks text into ordered chunks of at most maxSize bytes.
//
// Lines are never split: a chunk is sealed before a line whose addition
// (plus its "\n" separator) would overflow maxSize. A single line longer
// than maxSize therefore becomes a chunk of its own. Joining the result
// with "\n" yields the input's sequence of lines.
func Split(text string, maxSize int) []string {
	if maxSize < 1 {
		maxSize = 1
	}

	chunks := []string{}
	var current strings.Builder
	// open is true once the accumulator holds at least one line, which
	// may itself be blank.
	open := false

	for _, line := range Lines(text) {
		if open && current.Len()+1+len(line) > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
			open = false
		}

		if open {
			current.WriteByte('\n')
		}
		current.WriteString(line)
		open = true
	}

	if open {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// Lines splits text on "\n", dropping a trailing "\r" from each line. A
// final line without a newline is still a line; a trailing newline does not
// start an extra empty one.
func Lines(text string) []string {
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
