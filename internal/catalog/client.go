package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultFetchLimit is the number of records requested per lexical search.
const DefaultFetchLimit = 500

// Fetcher retrieves catalog records.
type Fetcher interface {
	FetchRecords(ctx context.Context, limit int) ([]Record, error)
}

// ClientConfig holds the settings for constructing a Client.
type ClientConfig struct {
	// BaseURL is the catalog service root (e.g. "http://127.0.0.1:3000").
	BaseURL string

	// Timeout bounds each HTTP call (default: 10s).
	Timeout time.Duration
}

// Client is an HTTP client for the catalog service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("catalog: base URL must be set")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("catalog: invalid base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// FetchRecords returns up to limit records from GET /movies.
func (c *Client) FetchRecords(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	return c.get(ctx, "/movies?limit="+strconv.Itoa(limit))
}

// FetchSample returns the catalog's ingestion sample from GET /movies-sample.
func (c *Client) FetchSample(ctx context.Context) ([]Record, error) {
	return c.get(ctx, "/movies-sample")
}

// Ping checks that the catalog answers a one-record listing.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/movies?limit=1")
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("catalog: GET %s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var docs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("catalog: decode response: %w", err)
	}

	records := make([]Record, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		records = append(records, RecordFromMap(d))
	}
	return records, nil
}
