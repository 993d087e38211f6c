package knowledge

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/adapter"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/repository"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
)

const (
	DefaultCollection = "default"
	DefaultLimit      = 5
)

// Connector opens the vector store. It is called until it succeeds once.
type Connector func(ctx context.Context) (repository.Repository, error)

// Client is the single entry point to the knowledge store. The connection is
// opened lazily on first use and then shared by every caller.
type Client struct {
	connect  Connector
	embedder adapter.Embedder

	mu   sync.Mutex
	repo repository.Repository
}

// New creates a new knowledge client
func New(connect Connector, embedder adapter.Embedder) *Client {
	return &Client{
		connect:  connect,
		embedder: embedder,
	}
}

// NewWithRepository creates a client bound to an already opened repository
func NewWithRepository(repo repository.Repository, embedder adapter.Embedder) *Client {
	return &Client{
		embedder: embedder,
		repo:     repo,
	}
}

// Connect returns the shared repository handle, opening it if needed. A failed
// attempt is not remembered so the next call tries again.
func (c *Client) Connect(ctx context.Context) (repository.Repository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.repo != nil {
		return c.repo, nil
	}
	if c.connect == nil {
		return nil, goerr.New("knowledge store connector is not configured")
	}

	repo, err := c.connect(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to knowledge store")
	}
	c.repo = repo
	return repo, nil
}

// Close releases the repository handle if one was opened
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.repo == nil {
		return nil
	}
	err := c.repo.Close()
	c.repo = nil
	if err != nil {
		return goerr.Wrap(err, "failed to close knowledge store")
	}
	return nil
}

// Search finds the documents nearest to query. Searching a collection that has
// no documents yields an empty slice.
func (c *Client) Search(ctx context.Context, query string, opts model.SearchOptions) ([]*model.SearchResult, error) {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	logger := logging.From(ctx).With("collection", opts.Collection, "limit", opts.Limit)

	results, err := c.search(ctx, query, opts)
	if err != nil {
		logger.Error("knowledge search failed", "error", err)
		return nil, err
	}

	logger.Debug("knowledge search done", "hits", len(results))
	return results, nil
}

func (c *Client) search(ctx context.Context, query string, opts model.SearchOptions) ([]*model.SearchResult, error) {
	repo, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.V("collection", opts.Collection))
	}

	results, err := repo.Query(ctx, opts.Collection, vector, opts.Limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search knowledge",
			goerr.V("collection", opts.Collection),
			goerr.V("limit", opts.Limit))
	}

	if results == nil {
		results = []*model.SearchResult{}
	}
	for _, r := range results {
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
	}
	return results, nil
}

// AddDocument embeds content and upserts it into collection under id
func (c *Client) AddDocument(ctx context.Context, collection string, id model.DocumentID, content string, metadata map[string]string) error {
	repo, err := c.Connect(ctx)
	if err != nil {
		return err
	}

	vector, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return goerr.Wrap(err, "failed to embed document",
			goerr.V("collection", collection),
			goerr.V("id", id))
	}

	doc := &model.Document{
		ID:        id,
		Content:   content,
		Metadata:  metadata,
		Embedding: vector,
	}
	if err := repo.Upsert(ctx, collection, []*model.Document{doc}); err != nil {
		return goerr.Wrap(err, "failed to add document",
			goerr.V("collection", collection),
			goerr.V("id", id))
	}

	return nil
}

// ListCollections returns the names of every collection in the store
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	repo, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	names, err := repo.ListCollections(ctx)
	if err != nil {
		logging.From(ctx).Error("failed to list collections", "error", err)
		return nil, goerr.Wrap(err, "failed to list collections")
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
