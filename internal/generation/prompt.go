// Package generation holds what every answer generator shares: the message
// layout sent to chat models.
package generation

import (
	"strings"

	"ragcorpus/internal/domain"
)

// SystemMessage is the instructions plus, when the question is scoped to
// websites, the list of domains.
func SystemMessage(p domain.Prompt) string {
	if len(p.Domains) == 0 {
		return p.Instructions
	}
	return p.Instructions + "\nThe CONTEXT was retrieved only from these sites: " + strings.Join(p.Domains, ", ") + "."
}

// UserMessage lays out the retrieved context followed by the question.
func UserMessage(p domain.Prompt) string {
	return "CONTEXT:\n\n" + p.Context + "\n\nQUESTION: " + p.Question
}
