// Package llm holds prompt rendering shared by the completion collaborators.
package llm

import (
	"strings"

	"rentbot/internal/domain"
)

// Instruction is the fixed system instruction sent with every question.
const Instruction = "You are a helpful assistant answering questions about a tenancy document. " +
	"Answer using only the given context. If the answer is not in the context, say that you could not find it in the document."

// UserMessage renders the context block and the question of a prompt.
func UserMessage(p domain.Prompt) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(p.Context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(p.Question)
	return b.String()
}
