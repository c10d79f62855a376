package media

import (
	"bytes"
	"context"
	"fmt"
	"image"

	// Preview decoders for cost estimation.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"modvault/internal/transport"
)

// nonImageCost is the fixed cost charged for payloads whose dimensions cannot
// be decoded.
const nonImageCost int64 = 64 << 10

// LoadError records a failed preview load.
type LoadError struct {
	URL     string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("media: load %s: %s", e.URL, e.Message)
}

// decodeResource builds the cached resource and its estimated memory cost.
// Image payloads are charged width*height*4 for their decoded RGBA footprint;
// anything else gets the fixed default.
func decodeResource(url string, data []byte) (*Resource, int64) {
	resource := &Resource{URL: url, Data: data}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return resource, nonImageCost
	}
	resource.Width = cfg.Width
	resource.Height = cfg.Height
	return resource, int64(cfg.Width) * int64(cfg.Height) * 4
}

// TransportFetcher adapts the retrying transport client to the Fetcher
// interface.
type TransportFetcher struct {
	Client *transport.Client
}

func (f *TransportFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.Client.Do(ctx, &transport.Request{URL: url})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
