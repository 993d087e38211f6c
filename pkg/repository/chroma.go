package repository

import (
	"context"
	"encoding/json"
	"sync"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
)

// Chroma stores documents in a Chroma server through the chroma-go v2 client
type Chroma struct {
	client chroma.Client

	mu          sync.Mutex
	collections map[string]chroma.Collection
}

// NewChroma connects to the Chroma server at baseURL. Tenant and database
// come from CHROMA_TENANT and CHROMA_DATABASE, falling back to the server defaults.
func NewChroma(baseURL string) (*Chroma, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(baseURL))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chroma client", goerr.V("url", baseURL))
	}

	return &Chroma{
		client:      client,
		collections: make(map[string]chroma.Collection),
	}, nil
}

// collection resolves a collection by name, creating it on first use
func (c *Chroma) collection(ctx context.Context, name string) (chroma.Collection, error) {
	c.mu.Lock()
	col, ok := c.collections[name]
	c.mu.Unlock()
	if ok {
		return col, nil
	}

	// Vectors are always supplied by the caller, so the collection embedder is never invoked
	col, err := c.client.GetOrCreateCollection(ctx, name,
		chroma.WithHNSWSpaceCreate(embeddings.COSINE),
		chroma.WithEmbeddingFunctionCreate(embeddings.NewConsistentHashEmbeddingFunction()),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get or create collection", goerr.V("collection", name))
	}

	c.mu.Lock()
	c.collections[name] = col
	c.mu.Unlock()
	return col, nil
}

func (c *Chroma) Upsert(ctx context.Context, collection string, docs []*model.Document) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateDocuments(collection, docs); err != nil {
		return err
	}

	col, err := c.collection(ctx, collection)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	ids := make([]chroma.DocumentID, 0, len(docs))
	texts := make([]string, 0, len(docs))
	metadatas := make([]chroma.DocumentMetadata, 0, len(docs))
	vectors := make([]embeddings.Embedding, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, chroma.DocumentID(doc.ID.String()))
		texts = append(texts, doc.Content)
		metadatas = append(metadatas, toChromaMetadata(doc.Metadata))
		vectors = append(vectors, embeddings.NewEmbeddingFromFloat32(doc.Embedding))
	}

	if err := col.Upsert(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithMetadatas(metadatas...),
		chroma.WithEmbeddings(vectors...),
	); err != nil {
		return goerr.Wrap(err, "failed to upsert documents", goerr.V("collection", collection))
	}
	return nil
}

func (c *Chroma) Query(ctx context.Context, collection string, vector []float32, limit int) ([]*model.SearchResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	col, err := c.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	opts := []chroma.CollectionQueryOption{
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chroma.WithIncludeQuery(chroma.IncludeDocuments, chroma.IncludeMetadatas, chroma.Include("distances")),
	}
	if limit > 0 {
		opts = append(opts, chroma.WithNResults(limit))
	}

	qr, err := col.Query(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection", goerr.V("collection", collection))
	}

	results := []*model.SearchResult{}
	idGroups := qr.GetIDGroups()
	if len(idGroups) == 0 {
		return results, nil
	}

	var (
		docs      chroma.Documents
		metadatas chroma.DocumentMetadatas
		distances embeddings.Distances
	)
	if groups := qr.GetDocumentsGroups(); len(groups) > 0 {
		docs = groups[0]
	}
	if groups := qr.GetMetadatasGroups(); len(groups) > 0 {
		metadatas = groups[0]
	}
	if groups := qr.GetDistancesGroups(); len(groups) > 0 {
		distances = groups[0]
	}

	for i, id := range idGroups[0] {
		r := &model.SearchResult{
			ID:       model.DocumentID(id),
			Metadata: map[string]any{},
		}
		if i < len(docs) && docs[i] != nil {
			r.Content = docs[i].ContentString()
		}
		if i < len(metadatas) && metadatas[i] != nil {
			md, err := fromChromaMetadata(metadatas[i])
			if err != nil {
				return nil, goerr.Wrap(err, "failed to decode metadata", goerr.V("collection", collection), goerr.V("id", id))
			}
			r.Metadata = md
		}
		if i < len(distances) {
			r.Distance = float64(distances[i])
		}
		results = append(results, r)
	}
	return results, nil
}

func (c *Chroma) ListCollections(ctx context.Context) ([]string, error) {
	cols, err := c.client.ListCollections(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list collections")
	}

	names := make([]string, 0, len(cols))
	for _, col := range cols {
		names = append(names, col.Name())
	}
	return names, nil
}

func (c *Chroma) Close() error {
	if err := c.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close chroma client")
	}
	return nil
}

func toChromaMetadata(metadata map[string]string) chroma.DocumentMetadata {
	attrs := make([]*chroma.MetaAttribute, 0, len(metadata))
	for k, v := range metadata {
		attrs = append(attrs, chroma.NewStringAttribute(k, v))
	}
	return chroma.NewDocumentMetadata(attrs...)
}

func fromChromaMetadata(md chroma.DocumentMetadata) (map[string]any, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal chroma metadata")
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal chroma metadata")
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
