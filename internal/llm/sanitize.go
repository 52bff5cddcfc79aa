package llm

import (
	"regexp"
	"strings"
)

// endOfTurnMarker is a chat template token some models leak into output.
const endOfTurnMarker = "<|im_end|>"

// EmptyAnswerFallback is returned when sanitizing leaves nothing. Empty
// answers are never surfaced to callers.
const EmptyAnswerFallback = "I couldn't generate a proper answer based on the provided context."

var (
	// cjkRun matches CJK unified ideographs. Local models occasionally leak
	// Chinese tokens into answers in other languages; stripping the range is
	// a targeted fix for that failure mode, not a general language filter.
	cjkRun        = regexp.MustCompile(`[\x{4e00}-\x{9fff}]+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Sanitize cleans raw model output: drops a leading end-of-turn marker,
// strips CJK ideograph runs, collapses whitespace, and trims. A result that
// ends up empty is replaced by EmptyAnswerFallback.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, endOfTurnMarker)
	text = cjkRun.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if text == "" {
		return EmptyAnswerFallback
	}
	return text
}
