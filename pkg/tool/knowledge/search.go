package knowledge

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/tool"
)

type searchKnowledgeInput struct {
	Query      *string  `json:"query"`
	Collection string   `json:"collection"`
	Limit      *float64 `json:"limit"`
}

type searchKnowledgeHit struct {
	Content   string         `json:"content"`
	Relevance float64        `json:"relevance"`
	Metadata  map[string]any `json:"metadata"`
}

type searchKnowledgeOutput struct {
	Query      string               `json:"query"`
	Collection string               `json:"collection"`
	Results    []searchKnowledgeHit `json:"results"`
	Count      int                  `json:"count"`
}

type SearchKnowledge struct {
	store Store
}

// NewSearchKnowledge creates a new search_knowledge tool
func NewSearchKnowledge(store Store) *SearchKnowledge {
	return &SearchKnowledge{store: store}
}

func (x *SearchKnowledge) Definition() *tool.Definition {
	return &tool.Definition{
		Name:        "search_knowledge",
		Description: "Search the knowledge base for relevant information",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Search query",
				},
				"collection": {
					Type:        "string",
					Description: "Collection to search (optional)",
				},
				"limit": {
					Type:        "number",
					Description: "Number of results (default: 5)",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (x *SearchKnowledge) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var input searchKnowledgeInput
	if err := tool.DecodeArgs(args, &input); err != nil {
		return nil, err
	}
	if input.Query == nil || *input.Query == "" {
		return nil, goerr.New("query is required")
	}

	opts := model.SearchOptions{
		Collection: input.Collection,
		Limit:      defaultLimit,
	}
	if opts.Collection == "" {
		opts.Collection = defaultCollection
	}
	if input.Limit != nil && int(*input.Limit) > 0 {
		opts.Limit = int(*input.Limit)
	}

	results, err := x.store.Search(ctx, *input.Query, opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search knowledge",
			goerr.V("collection", opts.Collection))
	}

	out := &searchKnowledgeOutput{
		Query:      *input.Query,
		Collection: opts.Collection,
		Results:    make([]searchKnowledgeHit, 0, len(results)),
		Count:      len(results),
	}
	for _, r := range results {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		out.Results = append(out.Results, searchKnowledgeHit{
			Content:   r.Content,
			Relevance: r.Relevance(),
			Metadata:  meta,
		})
	}

	return out, nil
}

const (
	defaultCollection = "default"
	defaultLimit      = 5
)
