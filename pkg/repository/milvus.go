package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	milvusCollectionPrefix = "kb_"

	milvusFieldID       = "id"
	milvusFieldContent  = "content"
	milvusFieldMetadata = "metadata"
	milvusFieldVector   = "vector"

	// MilvusMaxContentBytes is the VarChar ceiling Milvus imposes on the content field
	MilvusMaxContentBytes = 65535
)

var milvusInvalidChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// milvusCollectionName maps a knowledge collection to a Milvus collection name.
// Characters Milvus does not accept are replaced with "_".
func milvusCollectionName(name string) string {
	return milvusCollectionPrefix + milvusInvalidChars.ReplaceAllString(name, "_")
}

// Milvus stores every knowledge collection as a "kb_"-prefixed Milvus
// collection with an HNSW cosine index.
type Milvus struct {
	client *milvusclient.Client

	mu     sync.Mutex
	loaded map[string]bool
}

func NewMilvus(ctx context.Context, address string) (*Milvus, error) {
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: address,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to milvus", goerr.V("address", address))
	}

	return &Milvus{
		client: client,
		loaded: make(map[string]bool),
	}, nil
}

// ensureCollection creates and loads the collection. dim is only used on creation.
func (m *Milvus) ensureCollection(ctx context.Context, collection string, dim int) (string, error) {
	name := milvusCollectionName(collection)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded[name] {
		return name, nil
	}

	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return "", goerr.Wrap(err, "failed to check collection", goerr.V("collection", collection))
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: name,
			Description:    collection,
			Fields: []*entity.Field{
				{
					Name:       milvusFieldID,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "512"},
				},
				{
					Name:       milvusFieldContent,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": fmt.Sprintf("%d", MilvusMaxContentBytes)},
				},
				{
					Name:     milvusFieldMetadata,
					DataType: entity.FieldTypeJSON,
				},
				{
					Name:       milvusFieldVector,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)},
				},
			},
		}

		if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
			return "", goerr.Wrap(err, "failed to create collection", goerr.V("collection", collection))
		}

		idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		task, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, milvusFieldVector, idx))
		if err != nil {
			return "", goerr.Wrap(err, "failed to create index", goerr.V("collection", collection))
		}
		if err := task.Await(ctx); err != nil {
			return "", goerr.Wrap(err, "failed to wait for index", goerr.V("collection", collection))
		}
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return "", goerr.Wrap(err, "failed to load collection", goerr.V("collection", collection))
	}
	if err := loadTask.Await(ctx); err != nil {
		return "", goerr.Wrap(err, "failed to wait for collection load", goerr.V("collection", collection))
	}

	m.loaded[name] = true
	return name, nil
}

func (m *Milvus) Upsert(ctx context.Context, collection string, docs []*model.Document) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateDocuments(collection, docs); err != nil {
		return err
	}
	if err := validateMilvusContent(collection, docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	dim := len(docs[0].Embedding)
	name, err := m.ensureCollection(ctx, collection, dim)
	if err != nil {
		return err
	}

	var (
		ids      = make([]string, 0, len(docs))
		contents = make([]string, 0, len(docs))
		metas    = make([][]byte, 0, len(docs))
		vectors  = make([][]float32, 0, len(docs))
	)
	for _, doc := range docs {
		meta, err := json.Marshal(nonNilMetadata(doc.Metadata))
		if err != nil {
			return goerr.Wrap(err, "failed to marshal metadata", goerr.V("id", doc.ID))
		}
		ids = append(ids, doc.ID.String())
		contents = append(contents, doc.Content)
		metas = append(metas, meta)
		vectors = append(vectors, doc.Embedding)
	}

	opt := milvusclient.NewColumnBasedInsertOption(name).
		WithVarcharColumn(milvusFieldID, ids).
		WithVarcharColumn(milvusFieldContent, contents).
		WithColumns(column.NewColumnJSONBytes(milvusFieldMetadata, metas)).
		WithFloatVectorColumn(milvusFieldVector, dim, vectors)

	if _, err := m.client.Upsert(ctx, opt); err != nil {
		return goerr.Wrap(err, "failed to upsert documents", goerr.V("collection", collection))
	}
	return nil
}

// validateMilvusContent rejects the whole batch before any write when a
// document does not fit the content field.
func validateMilvusContent(collection string, docs []*model.Document) error {
	for _, doc := range docs {
		if len(doc.Content) > MilvusMaxContentBytes {
			return goerr.Wrap(ErrContentTooLarge, "document content exceeds milvus varchar limit",
				goerr.V("collection", collection),
				goerr.V("id", doc.ID),
				goerr.V("size", len(doc.Content)),
				goerr.V("limit", MilvusMaxContentBytes))
		}
	}
	return nil
}

func (m *Milvus) Query(ctx context.Context, collection string, vector []float32, limit int) ([]*model.SearchResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	name, err := m.ensureCollection(ctx, collection, len(vector))
	if err != nil {
		return nil, err
	}

	opt := milvusclient.NewSearchOption(name, limit, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(milvusFieldVector).
		WithOutputFields(milvusFieldID, milvusFieldContent, milvusFieldMetadata)

	sets, err := m.client.Search(ctx, opt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search collection", goerr.V("collection", collection))
	}

	results := []*model.SearchResult{}
	for _, set := range sets {
		for i := 0; i < set.ResultCount; i++ {
			r := &model.SearchResult{Metadata: map[string]any{}}

			if col := set.GetColumn(milvusFieldID); col != nil {
				id, _ := col.GetAsString(i)
				r.ID = model.DocumentID(id)
			}
			if col := set.GetColumn(milvusFieldContent); col != nil {
				r.Content, _ = col.GetAsString(i)
			}
			if col := set.GetColumn(milvusFieldMetadata); col != nil {
				if v, err := col.Get(i); err == nil {
					if raw, ok := v.([]byte); ok && len(raw) > 0 {
						if err := json.Unmarshal(raw, &r.Metadata); err != nil {
							return nil, goerr.Wrap(err, "failed to decode metadata", goerr.V("id", r.ID))
						}
					}
				}
			}
			if i < len(set.Scores) {
				// COSINE scores are similarities in [-1, 1]
				r.Distance = max(0, 1-float64(set.Scores[i]))
			}

			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results, nil
}

func (m *Milvus) ListCollections(ctx context.Context) ([]string, error) {
	all, err := m.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list collections")
	}

	names := []string{}
	for _, name := range all {
		if strings.HasPrefix(name, milvusCollectionPrefix) {
			names = append(names, strings.TrimPrefix(name, milvusCollectionPrefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Milvus) Close() error {
	if err := m.client.Close(context.Background()); err != nil {
		return goerr.Wrap(err, "failed to close milvus client")
	}
	return nil
}
