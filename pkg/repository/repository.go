package repository

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
)

// Repository is a vector store holding documents partitioned into named
// collections. A collection is created on first use by either Upsert or Query.
type Repository interface {
	// Upsert inserts or replaces documents by ID. Every document must carry an embedding.
	Upsert(ctx context.Context, collection string, docs []*model.Document) error

	// Query returns up to limit documents nearest to vector, ordered by ascending
	// distance. An empty or newly created collection yields an empty slice.
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]*model.SearchResult, error)

	// ListCollections returns plain collection names
	ListCollections(ctx context.Context) ([]string, error)

	// Close releases the underlying connection
	Close() error
}

var (
	ErrInvalidCollection = goerr.New("invalid collection name")
	ErrMissingEmbedding  = goerr.New("document has no embedding")
	ErrDimensionMismatch = goerr.New("vector dimension mismatch")
	ErrContentTooLarge   = goerr.New("document content too large for store")
)

// IsInvalidInput reports whether err was caused by a bad argument rather than the store
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidCollection) ||
		errors.Is(err, ErrMissingEmbedding) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrContentTooLarge)
}

func validateCollection(name string) error {
	if name == "" {
		return goerr.Wrap(ErrInvalidCollection, "collection name is empty")
	}
	return nil
}

func validateDocuments(collection string, docs []*model.Document) error {
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return goerr.Wrap(ErrMissingEmbedding, "cannot store document",
				goerr.V("collection", collection),
				goerr.V("id", doc.ID))
		}
	}
	return nil
}
