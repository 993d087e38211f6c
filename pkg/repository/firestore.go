package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreRootCollection = "knowledge"
	firestoreDocCollection  = "documents"
	firestoreEmbeddingField = "Embedding"
	firestoreDistanceField  = "Distance"
)

var collectionNamespace = uuid.MustParse("b1a3d8e2-6f4c-4e0b-8d3a-2c9e7f5a1b64")

// Firestore stores each collection as a document under "knowledge" with the
// entries in its "documents" sub-collection, and uses Firestore vector search
// for nearest-neighbour queries.
type Firestore struct {
	client *firestore.Client
	known  *knownCollections
}

type firestoreCollection struct {
	Name      string
	CreatedAt time.Time
}

type firestoreDocument struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding firestore.Vector32
	Distance  float64 `firestore:",omitempty"`
}

// New creates a new Firestore repository
func New(projectID, databaseID string) (*Firestore, error) {
	ctx := context.Background()
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	return &Firestore{client: client, known: newKnownCollections()}, nil
}

func (r *Firestore) collectionRef(name string) *firestore.DocumentRef {
	key := uuid.NewSHA1(collectionNamespace, []byte(name)).String()
	return r.client.Collection(firestoreRootCollection).Doc(key)
}

// ensureCollection writes the collection record the first time this client sees name
func (r *Firestore) ensureCollection(ctx context.Context, name string) (*firestore.DocumentRef, error) {
	ref := r.collectionRef(name)
	err := r.known.ensure(name, func() error {
		_, err := ref.Create(ctx, &firestoreCollection{Name: name, CreatedAt: time.Now()})
		if err != nil && !isAlreadyExists(err) {
			return goerr.Wrap(err, "failed to create collection", goerr.V("collection", name))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (r *Firestore) Upsert(ctx context.Context, collection string, docs []*model.Document) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateDocuments(collection, docs); err != nil {
		return err
	}

	ref, err := r.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		data := &firestoreDocument{
			ID:        doc.ID.String(),
			Content:   doc.Content,
			Metadata:  nonNilMetadata(doc.Metadata),
			Embedding: firestore.Vector32(doc.Embedding),
		}
		if _, err := ref.Collection(firestoreDocCollection).Doc(doc.ID.Key(collection)).Set(ctx, data); err != nil {
			return goerr.Wrap(err, "failed to save document",
				goerr.V("collection", collection),
				goerr.V("id", doc.ID))
		}
	}

	return nil
}

func (r *Firestore) Query(ctx context.Context, collection string, vector []float32, limit int) ([]*model.SearchResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	ref, err := r.ensureCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	query := ref.Collection(firestoreDocCollection).FindNearest(
		firestoreEmbeddingField,
		firestore.Vector32(vector),
		limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceResultField: firestoreDistanceField,
		},
	)

	iter := query.Documents(ctx)
	defer iter.Stop()

	results := []*model.SearchResult{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate nearest documents", goerr.V("collection", collection))
		}

		var doc firestoreDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document",
				goerr.V("collection", collection),
				goerr.V("ref", snap.Ref.ID))
		}

		results = append(results, &model.SearchResult{
			ID:       model.DocumentID(doc.ID),
			Content:  doc.Content,
			Metadata: model.StringMetadata(doc.Metadata),
			Distance: doc.Distance,
		})
	}

	return results, nil
}

func (r *Firestore) ListCollections(ctx context.Context) ([]string, error) {
	iter := r.client.Collection(firestoreRootCollection).OrderBy("Name", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	names := []string{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate collections")
		}

		var c firestoreCollection
		if err := snap.DataTo(&c); err != nil {
			return nil, goerr.Wrap(err, "failed to decode collection", goerr.V("ref", snap.Ref.ID))
		}
		names = append(names, c.Name)
	}

	return names, nil
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}
