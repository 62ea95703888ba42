package app

import (
	"strings"

	"supportchat/internal/corpus"
)

// FallbackAnswer answers without the AI. An entry matches when the message
// contains its title or its content contains the message, both compared in
// lower case. The first match in corpus order wins.
func FallbackAnswer(docs *corpus.Corpus, userMessage string) string {
	query := strings.ToLower(userMessage)
	for _, entry := range docs.Entries() {
		if strings.Contains(query, strings.ToLower(entry.Title)) ||
			strings.Contains(strings.ToLower(entry.Content), query) {
			return entry.Content
		}
	}
	return NoInformationReply
}
