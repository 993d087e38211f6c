package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// OllamaClient embeds text with a model served by a local Ollama server
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

type OllamaOption func(*OllamaClient)

func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(o *OllamaClient) {
		o.client = client
	}
}

func NewOllama(baseURL, model string, opts ...OllamaOption) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}

	o := &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model": o.model,
		"input": text,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal embed request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embed request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call ollama", goerr.V("url", o.baseURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, goerr.New("ollama returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(msg)),
			goerr.V("model", o.model))
	}

	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode ollama response")
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, goerr.New("empty embedding response", goerr.V("model", o.model))
	}

	return out.Embeddings[0], nil
}
