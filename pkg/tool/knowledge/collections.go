package knowledge

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/tool"
)

type listCollectionsOutput struct {
	Collections []string `json:"collections"`
	Count       int      `json:"count"`
}

type ListCollections struct {
	store Store
}

// NewListCollections creates a new list_collections tool
func NewListCollections(store Store) *ListCollections {
	return &ListCollections{store: store}
}

func (x *ListCollections) Definition() *tool.Definition {
	return &tool.Definition{
		Name:        "list_collections",
		Description: "List all available knowledge collections",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}
}

func (x *ListCollections) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	names, err := x.store.ListCollections(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list collections")
	}
	if names == nil {
		names = []string{}
	}

	return &listCollectionsOutput{
		Collections: names,
		Count:       len(names),
	}, nil
}
