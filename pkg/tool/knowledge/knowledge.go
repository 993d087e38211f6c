package knowledge

import (
	"context"

	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/tool"
)

// Store is the part of the knowledge client the tools need
type Store interface {
	Search(ctx context.Context, query string, opts model.SearchOptions) ([]*model.SearchResult, error)
	ListCollections(ctx context.Context) ([]string, error)
}

// Tools returns the knowledge tools in their advertised order
func Tools(store Store) []tool.Tool {
	return []tool.Tool{
		NewSearchKnowledge(store),
		NewListCollections(store),
		NewGetGuide(store),
	}
}
