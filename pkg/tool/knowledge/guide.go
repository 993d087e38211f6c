package knowledge

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/tool"
)

const (
	guideCollection = "guides"
	guideLimit      = 3
)

type getGuideInput struct {
	Topic *string `json:"topic"`
}

type guideNotFound struct {
	Topic       string   `json:"topic"`
	Found       bool     `json:"found"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

type guideFound struct {
	Topic         string   `json:"topic"`
	Found         bool     `json:"found"`
	Content       string   `json:"content"`
	RelatedTopics []string `json:"relatedTopics"`
}

type GetGuide struct {
	store Store
}

// NewGetGuide creates a new get_guide tool
func NewGetGuide(store Store) *GetGuide {
	return &GetGuide{store: store}
}

func (x *GetGuide) Definition() *tool.Definition {
	return &tool.Definition{
		Name:        "get_guide",
		Description: "Get a detailed guide on a specific topic",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"topic": {
					Type:        "string",
					Description: "Topic to get guide for",
				},
			},
			Required: []string{"topic"},
		},
	}
}

func (x *GetGuide) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var input getGuideInput
	if err := tool.DecodeArgs(args, &input); err != nil {
		return nil, err
	}
	if input.Topic == nil || *input.Topic == "" {
		return nil, goerr.New("topic is required")
	}
	topic := *input.Topic

	results, err := x.store.Search(ctx, topic, model.SearchOptions{
		Collection: guideCollection,
		Limit:      guideLimit,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search guides", goerr.V("topic", topic))
	}

	if len(results) == 0 {
		return &guideNotFound{
			Topic:   topic,
			Found:   false,
			Message: "No guide found for topic: " + topic,
			Suggestions: []string{
				"Try a different search term",
				"Check available collections with list_collections",
			},
		}, nil
	}

	related := make([]string, 0, len(results)-1)
	for _, r := range results[1:] {
		title := r.Title()
		if title == "" {
			title = "Related"
		}
		related = append(related, title)
	}

	return &guideFound{
		Topic:         topic,
		Found:         true,
		Content:       results[0].Content,
		RelatedTopics: related,
	}, nil
}
