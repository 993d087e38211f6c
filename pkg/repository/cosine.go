package repository

import (
	"math"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
)

// cosineDistance returns 1 - cos(a, b), clamped to [0, 2]. Zero vectors are
// treated as orthogonal to everything. Callers must pass equal-length vectors.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}

	d := 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	return math.Min(2, math.Max(0, d))
}

type scored struct {
	doc      *model.Document
	distance float64
}

// nearest ranks candidates by cosine distance to vector and keeps the first
// limit. A candidate whose dimension differs from vector is an error.
func nearest(candidates []*model.Document, vector []float32, limit int) ([]*model.SearchResult, error) {
	ranked := make([]scored, 0, len(candidates))
	for _, doc := range candidates {
		if len(doc.Embedding) != len(vector) {
			return nil, goerr.Wrap(ErrDimensionMismatch, "query vector does not match stored embedding",
				goerr.V("id", doc.ID),
				goerr.V("query_dimension", len(vector)),
				goerr.V("stored_dimension", len(doc.Embedding)))
		}
		ranked = append(ranked, scored{doc: doc, distance: cosineDistance(vector, doc.Embedding)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].distance < ranked[j].distance
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]*model.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, &model.SearchResult{
			ID:       r.doc.ID,
			Content:  r.doc.Content,
			Metadata: model.StringMetadata(r.doc.Metadata),
			Distance: r.distance,
		})
	}
	return results, nil
}
