// Package qdrant is a thin HTTP client for the Qdrant vector service. Each
// knowledge base maps to one collection; points carry the chunk payload used
// to rebuild search results without touching the document store.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// pointNamespace seeds deterministic point ids so re-ingesting the same
// document upserts instead of duplicating.
var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Config holds connection settings for Qdrant
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// DefaultConfig returns a config for a local Qdrant
func DefaultConfig() *Config {
	return &Config{
		URL:     "http://localhost:6333",
		Timeout: 30 * time.Second,
	}
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("qdrant URL is required")
	}
	return nil
}

// Point is a vector plus its chunk payload
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ScoredPoint is a search hit; Score is cosine similarity in [0,1] for
// normalized vectors.
type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// SearchOptions bounds a similarity search
type SearchOptions struct {
	Limit          int
	ScoreThreshold float32
	Filter         map[string]interface{}
}

// PointID derives the deterministic Qdrant point id for a chunk. Qdrant only
// accepts UUIDs or integers as ids, so the documentID_chunkIndex identity is
// folded into a v5 UUID.
func PointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s_%d", documentID, chunkIndex))).String()
}

// Client talks to one Qdrant instance over HTTP
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a Qdrant client
func NewClient(config *Config, logger *logrus.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}, nil
}

// HealthCheck verifies the service answers on its root endpoint
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := fmt.Sprintf("%s%s", c.config.URL, path)

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// CollectionExists checks whether a collection is present
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", name), nil)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// EnsureCollection creates a collection when it does not exist yet
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize int, distance string) error {
	exists, _ := c.CollectionExists(ctx, name)
	if exists {
		return nil
	}

	if distance == "" {
		distance = "Cosine"
	}
	reqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     vectorSize,
			"distance": distance,
		},
	}

	_, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", name), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection": name,
		"dimensions": vectorSize,
	}).Info("Collection created")
	return nil
}

// DeleteCollection removes a collection and all its points
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", name), nil)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	c.logger.WithField("collection", name).Info("Collection deleted")
	return nil
}

// UpsertPoints inserts or replaces points by id; re-upserting the same ids
// is idempotent.
func (c *Client) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	reqBody := map[string]interface{}{
		"points": points,
	}

	_, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", collection), reqBody)
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection": collection,
		"count":      len(points),
	}).Debug("Points upserted")
	return nil
}

// Search performs a similarity search over one collection
func (c *Client) Search(ctx context.Context, collection string, vector []float32, opts *SearchOptions) ([]ScoredPoint, error) {
	if opts == nil {
		opts = &SearchOptions{Limit: 10}
	}

	reqBody := map[string]interface{}{
		"vector":       vector,
		"limit":        opts.Limit,
		"with_payload": true,
	}
	if opts.ScoreThreshold > 0 {
		reqBody["score_threshold"] = opts.ScoreThreshold
	}
	if opts.Filter != nil {
		reqBody["filter"] = opts.Filter
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", collection), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var response struct {
		Result []ScoredPoint `json:"result"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return response.Result, nil
}

// DeleteByDocument removes every point whose payload references documentID
func (c *Client) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	reqBody := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{
					"key":   "document_id",
					"match": map[string]interface{}{"value": documentID},
				},
			},
		},
	}

	_, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", collection), reqBody)
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection":  collection,
		"document_id": documentID,
	}).Debug("Points deleted")
	return nil
}

// DeletePoints deletes points by explicit ids
func (c *Client) DeletePoints(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	reqBody := map[string]interface{}{
		"points": ids,
	}

	_, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", collection), reqBody)
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}
