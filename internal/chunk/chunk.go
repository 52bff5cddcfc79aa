// Package chunk cleans document text and splits it into overlapping
// word windows for embedding.
package chunk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidChunking is returned for chunk parameters that would produce a
// non-advancing window.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	// disallowed matches every rune outside the allow-list: letters, digits,
	// underscore, whitespace, and basic punctuation.
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-()]`)
)

// Clean normalizes raw extracted text: whitespace runs collapse to single
// spaces, runes outside the allow-list are stripped, and the result is
// trimmed. It runs once per document before chunking.
func Clean(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = disallowed.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Split divides text into windows of size words overlapping by overlap
// words. Text of at most size words comes back unchanged as a single chunk;
// longer text is windowed with each window's words re-joined by single
// spaces, so chunk boundaries always fall on word breaks. The final window
// may be shorter than size. Output is deterministic for identical input.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d must be positive", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunking, overlap, size)
	}

	words := strings.Fields(text)
	if len(words) <= size {
		return []string{text}, nil
	}

	var chunks []string
	for start := 0; ; {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if start+size >= len(words) {
			break
		}
		start += size - overlap
	}
	return chunks, nil
}

// Count returns the number of chunks Split would produce without building
// them. Useful for reporting before an expensive embedding pass.
func Count(text string, size, overlap int) (int, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return 0, ErrInvalidChunking
	}
	n := len(strings.Fields(text))
	if n <= size {
		return 1, nil
	}
	step := size - overlap
	return (n - overlap + step - 1) / step, nil
}
