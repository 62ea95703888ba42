package app

import (
	"strings"

	"supportchat/internal/corpus"
	"supportchat/internal/model"
)

// NoInformationReply is emitted verbatim by both the AI instructions and the
// fallback matcher when the corpus has no answer. Clients may match on it.
const NoInformationReply = "Sorry, I don't have information about that."

// BuildPrompt renders the grounding prompt. It is pure: equal inputs give an
// equal prompt.
func BuildPrompt(docs *corpus.Corpus, window []model.Turn, userMessage string) string {
	return strings.Join([]string{
		"Answer using ONLY the following documents. Do not use any other knowledge.",
		"Documents: " + docs.JSON(),
		"History:",
		renderHistory(window),
		"User: " + userMessage,
		`If the answer is not contained in the documents, respond exactly: "` + NoInformationReply + `"`,
	}, "\n")
}

func renderHistory(window []model.Turn) string {
	lines := make([]string, 0, len(window))
	for _, turn := range window {
		lines = append(lines, turn.Role+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}
