package rag

import (
	"fmt"
	"strings"

	"github.com/matsen/docchat/internal/index"
)

// Ellipsis marks a context that was cut at the length limit.
const Ellipsis = "..."

// promptTemplate wraps the retrieved context and the question. The rules are
// instructions to the generation model, not mechanically enforced here; the
// sanitizer backstops the language-mixing one.
const promptTemplate = `You are a helpful assistant that answers questions based on the provided context.

IMPORTANT RULES:
- Answer concisely and accurately based ONLY on the provided context
- ALWAYS respond in the EXACT same language as the user's question
- Do NOT mix languages in your response
- If the question is in German, answer in German
- If the question is in English, answer in English
- Do NOT add Chinese characters or other languages

Context:
%s

Question: %s

Answer:`

// BuildContext concatenates retrieved chunks in result order (most similar
// first) as numbered document blocks. A context longer than maxLen runes is
// cut at that offset and marked with an ellipsis; the cut lands on a rune
// boundary but may still split a word.
func BuildContext(results []index.SearchResult, maxLen int) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Document %d (from %s):\n%s", i+1, r.Filename, r.Text)
	}
	context := strings.Join(blocks, "\n\n")

	runes := []rune(context)
	if len(runes) > maxLen {
		context = string(runes[:maxLen]) + Ellipsis
	}
	return context
}

// BuildPrompt produces the full generation prompt for a question and its
// (possibly truncated) context.
func BuildPrompt(context, question string) string {
	return fmt.Sprintf(promptTemplate, context, question)
}
