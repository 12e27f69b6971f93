package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/victorgambert/repoindex/internal/errors"
)

// Config configures the OpenAI-compatible embedding client.
type Config struct {
	BaseURL    string        // e.g. https://api.openai.com/v1
	APIKey     string        // bearer token, optional for local providers
	Model      string        // embedding model identifier
	Dimensions int           // expected vector dimension, 0 = detect from first response
	Timeout    time.Duration // per-request timeout
}

// Client talks to an OpenAI-compatible /v1/embeddings endpoint.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	config     Config
	url        string

	mu     sync.Mutex
	dims   int
	closed bool
}

var _ Embedder = (*Client)(nil)

// NewClient creates an embedding client. The endpoint path is derived
// from BaseURL, accepting both bare hosts and /v1-suffixed URLs.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Client{
		// Per-request timeouts come from context so callers can scale
		// them; no static client timeout.
		httpClient: &http.Client{Transport: transport},
		transport:  transport,
		config:     cfg,
		url:        embeddingsURL(cfg.BaseURL),
		dims:       cfg.Dimensions,
	}
}

func embeddingsURL(baseURL string) string {
	base := strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/embeddings"
	}
	if strings.Contains(base, "/v1/embeddings") {
		return base
	}
	return base + "/v1/embeddings"
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates embeddings for texts, preserving order.
func (c *Client) Embed(ctx context.Context, texts []string) (*Result, error) {
	if len(texts) == 0 {
		return &Result{Vectors: [][]float32{}}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, errors.New(errors.ErrCodeEmbedding,
			fmt.Sprintf("batch of %d texts exceeds limit %d", len(texts), MaxBatchSize), nil)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New(errors.ErrCodeEmbedding, "embedding client is closed", nil)
	}
	c.mu.Unlock()

	body, err := json.Marshal(embeddingRequest{Model: c.config.Model, Input: texts})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbedding, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.New(errors.ErrCodeEmbedding,
			fmt.Sprintf("embedding request failed: %s: %s", resp.Status, strings.TrimSpace(string(payload))), nil)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbedding, err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, errors.New(errors.ErrCodeEmbedding,
			fmt.Sprintf("provider returned %d vectors for %d texts", len(parsed.Data), len(texts)), nil)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, errors.New(errors.ErrCodeEmbedding,
				fmt.Sprintf("provider returned out-of-range index %d", item.Index), nil)
		}
		vectors[item.Index] = item.Embedding
	}

	c.mu.Lock()
	if c.dims == 0 && len(vectors[0]) > 0 {
		c.dims = len(vectors[0])
	}
	c.mu.Unlock()

	return &Result{Vectors: vectors, TokensUsed: parsed.Usage.TotalTokens}, nil
}

// Dimensions returns the embedding dimension (0 until first response when
// not configured).
func (c *Client) Dimensions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dims
}

// ModelName returns the model identifier.
func (c *Client) ModelName() string {
	return c.config.Model
}

// Close releases idle connections. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}
