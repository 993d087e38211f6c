package model

import (
	"github.com/google/uuid"
)

// DocumentID identifies a document within its collection, e.g. "guides/setup.md"
type DocumentID string

// documentNamespace scopes derived keys so they never collide with random UUIDs
var documentNamespace = uuid.MustParse("5f0c7a3e-2b8d-4c61-9e4a-7d1f3b6a8c20")

// Key returns a stable storage key for backends that restrict key characters
func (x DocumentID) Key(collection string) string {
	return uuid.NewSHA1(documentNamespace, []byte(collection+"\x00"+string(x))).String()
}

func (x DocumentID) String() string {
	return string(x)
}

// Document is a unit of ingested text together with its metadata
type Document struct {
	ID       DocumentID
	Content  string
	Metadata map[string]string

	// Embedding is filled by the knowledge client right before the document is written
	Embedding []float32
}

// SearchOptions selects where and how much to search. Zero values select the
// knowledge client defaults.
type SearchOptions struct {
	Collection string
	Limit      int
}

// SearchResult is a single nearest-neighbour hit. Distance is non-negative and
// lower means more similar.
type SearchResult struct {
	ID       DocumentID     `json:"-"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

// Relevance converts distance into the similarity score shown to clients
func (x *SearchResult) Relevance() float64 {
	return 1 - x.Distance
}

// Title returns the "title" metadata entry if it is a non-empty string
func (x *SearchResult) Title() string {
	if x.Metadata == nil {
		return ""
	}
	if title, ok := x.Metadata["title"].(string); ok {
		return title
	}
	return ""
}

// StringMetadata converts string metadata into the generic form stored in search results
func StringMetadata(src map[string]string) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
