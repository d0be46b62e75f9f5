// Package knowledge defines the retrieval collaborator consulted before a
// step's generation call when the step declares knowledge sources.
package knowledge

import (
	"context"
	"strings"
)

// Chunk is one retrieved piece of source material.
type Chunk struct {
	SourceID string `json:"source_id"`
	Content  string `json:"content"`
}

// Retriever fetches relevant chunks for a query. An empty result is a valid
// "no relevant knowledge" outcome, not an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string, sourceRefs []string, callerID string) ([]Chunk, error)
}

// FormatChunks renders retrieved chunks as a context block appended to a
// step's resolved prompt. An empty chunk list yields an empty string.
func FormatChunks(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder

	b.WriteString("\n\nRelevant knowledge:\n")

	for _, chunk := range chunks {
		b.WriteString("- [")
		b.WriteString(chunk.SourceID)
		b.WriteString("] ")
		b.WriteString(chunk.Content)
		b.WriteString("\n")
	}

	return b.String()
}
