// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prefilter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pdiddy/review-engine/pkg/types"
)

// openAIEmbeddingsBase is the OpenAI embeddings endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAIEmbeddingsBase = "https://api.openai.com/v1/embeddings"

const defaultEmbeddingModel = "text-embedding-3-small"

// OpenAIEmbedder calls the OpenAI embeddings API. Any OpenAI-compatible
// endpoint works through the base var.
type OpenAIEmbedder struct {
	Client *http.Client
	APIKey string
	Model  string
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	model := e.Model
	if model == "" {
		model = defaultEmbeddingModel
	}

	body, err := json.Marshal(embeddingRequest{Model: model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("encoding embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIEmbeddingsBase, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings API returned HTTP %d: %w", resp.StatusCode, types.ErrProvider)
	}

	var er embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("parsing embeddings response: %w", err)
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embeddings response carried no vector: %w", types.ErrProvider)
	}
	return er.Data[0].Embedding, nil
}
