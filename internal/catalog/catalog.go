// Package catalog fetches the remote mod catalog and resolves descriptor
// metadata for individual artifacts.
//
// The catalog is an index.json served through an authenticated contents API;
// previews are fetched the same way and converted to base64 data URLs so the
// UI can render them without touching the network again.
package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"modvault/internal/config"
	"modvault/internal/logging"
	"modvault/internal/transport"
)

const (
	userAgent     = "modvault/0.1.0"
	acceptRaw     = "application/vnd.github.raw+json"
	indexCacheTTL = 5 * time.Minute
)

// Descriptor is the catalog metadata for one downloadable artifact.
type Descriptor struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Author     string   `json:"author"`
	Tags       []string `json:"tags"`
	SizeBytes  int64    `json:"size_bytes"`
	PackageURL string   `json:"package_url"`
	PreviewURL string   `json:"preview_url"`
	// PreviewData is an optional inline data URL shipped with the index for
	// small previews.
	PreviewData string `json:"preview_data,omitempty"`
}

// Client fetches catalog data through the retrying transport.
type Client struct {
	baseURL   string
	token     string
	transport *transport.Client
	logger    *slog.Logger

	mu        sync.Mutex
	index     []Descriptor
	fetchedAt time.Time
}

// NewClient constructs a catalog client.
func NewClient(cfg *config.Config, tc *transport.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.Catalog.BaseURL, "/"),
		token:     cfg.Catalog.Token,
		transport: tc,
		logger:    logging.NewComponentLogger(logger, "catalog"),
	}
}

// FetchIndex retrieves the catalog index, serving a short-lived in-memory copy
// between refreshes.
func (c *Client) FetchIndex(ctx context.Context) ([]Descriptor, error) {
	c.mu.Lock()
	if c.index != nil && time.Since(c.fetchedAt) < indexCacheTTL {
		cached := append([]Descriptor(nil), c.index...)
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	resp, err := c.transport.Do(ctx, &transport.Request{
		URL:    c.baseURL + "/contents/index.json",
		Header: c.headers(),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch catalog index: %w", err)
	}

	var index []Descriptor
	if err := json.Unmarshal(resp.Body, &index); err != nil {
		return nil, fmt.Errorf("parse catalog index: %w", err)
	}
	for i := range index {
		index[i].Name = DisplayName(index[i].Name)
	}

	c.mu.Lock()
	c.index = index
	c.fetchedAt = time.Now()
	cached := append([]Descriptor(nil), index...)
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "catalog index refreshed", logging.Int("entries", len(index)))
	return cached, nil
}

// Lookup resolves the descriptor for one artifact identifier.
func (c *Client) Lookup(ctx context.Context, id string) (*Descriptor, error) {
	index, err := c.FetchIndex(ctx)
	if err != nil {
		return nil, err
	}
	for i := range index {
		if index[i].ID == id {
			descriptor := index[i]
			return &descriptor, nil
		}
	}
	return nil, fmt.Errorf("catalog: artifact %q not found", id)
}

// FetchPreview downloads the preview image for an artifact and returns it as
// a base64 data URL.
func (c *Client) FetchPreview(ctx context.Context, id string) (string, error) {
	resp, err := c.transport.Do(ctx, &transport.Request{
		URL:    fmt.Sprintf("%s/contents/mods/%s/preview.jpg", c.baseURL, id),
		Header: c.headers(),
	})
	if err != nil {
		return "", fmt.Errorf("fetch preview for %s: %w", id, err)
	}
	return EncodeDataURL(resp.Body), nil
}

// ConvertRemote fetches an arbitrary preview URL without catalog headers and
// returns its body as a data URL. Used when an artifact ships only a plain
// remote preview link.
func (c *Client) ConvertRemote(ctx context.Context, url string) (string, error) {
	resp, err := c.transport.Do(ctx, &transport.Request{URL: url})
	if err != nil {
		return "", fmt.Errorf("convert remote preview %s: %w", url, err)
	}
	return EncodeDataURL(resp.Body), nil
}

func (c *Client) headers() http.Header {
	header := http.Header{}
	header.Set("Accept", acceptRaw)
	header.Set("User-Agent", userAgent)
	header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	return header
}

// EncodeDataURL converts raw preview bytes to a base64 jpeg data URL.
func EncodeDataURL(data []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
}
