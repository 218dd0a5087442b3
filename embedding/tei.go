package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TEIClient calls a text-embeddings-inference style HTTP service: POST
// /embed with {"inputs": [...]}, response is an array of vectors. The
// model identifier is informational; the service decides which weights it
// serves.
type TEIClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewTEIClient(baseURL, model string) *TEIClient {
	return &TEIClient{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *TEIClient) Model() string { return c.model }

func (c *TEIClient) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	jsonData, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var embeddings [][]float32
	if err := json.Unmarshal(body, &embeddings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(embeddings), len(texts))
	}

	return embeddings, nil
}
