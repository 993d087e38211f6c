package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
)

// Memory keeps everything in process memory. Used by tests and by the
// "memory" store for throwaway sessions.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[model.DocumentID]*model.Document
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[model.DocumentID]*model.Document),
	}
}

func (m *Memory) ensure(collection string) map[model.DocumentID]*model.Document {
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[model.DocumentID]*model.Document)
		m.collections[collection] = docs
	}
	return docs
}

func (m *Memory) Upsert(ctx context.Context, collection string, docs []*model.Document) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateDocuments(collection, docs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.ensure(collection)
	for _, doc := range docs {
		copied := *doc
		copied.Metadata = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			copied.Metadata[k] = v
		}
		copied.Embedding = append([]float32(nil), doc.Embedding...)
		stored[doc.ID] = &copied
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, collection string, vector []float32, limit int) ([]*model.SearchResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	stored := m.ensure(collection)
	candidates := make([]*model.Document, 0, len(stored))
	for _, doc := range stored {
		candidates = append(candidates, doc)
	}
	m.mu.Unlock()

	// Map iteration order is random; fix it so ties are stable
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})

	results, err := nearest(candidates, vector, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to rank documents", goerr.V("collection", collection))
	}
	return results, nil
}

func (m *Memory) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Close() error {
	return nil
}
