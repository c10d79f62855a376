package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"modvault/internal/catalog"
	"modvault/internal/testsupport"
	"modvault/internal/transport"
)

func newCatalogServer(t *testing.T, indexJSON string, preview []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var indexCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/contents/index.json"):
			indexCalls.Add(1)
			w.Write([]byte(indexJSON))
		case strings.Contains(r.URL.Path, "/contents/mods/") && strings.HasSuffix(r.URL.Path, "preview.jpg"):
			w.Write(preview)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server, &indexCalls
}

func newClient(t *testing.T, baseURL string) *catalog.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Catalog.BaseURL = baseURL
	cfg.Catalog.Token = "test-token"
	return catalog.NewClient(cfg, transport.NewClient(transport.DefaultOptions(), nil), nil)
}

const indexJSON = `[
  {"id": "266_266001", "name": "aatrox-justicar", "author": "wildflover",
   "tags": ["aatrox"], "size_bytes": 42,
   "package_url": "https://example.com/mods/266_266001.zip",
   "preview_url": "https://example.com/mods/266_266001/preview.jpg"}
]`

func TestFetchIndexAndLookup(t *testing.T) {
	server, indexCalls := newCatalogServer(t, indexJSON, nil)
	client := newClient(t, server.URL)

	index, err := client.FetchIndex(context.Background())
	if err != nil {
		t.Fatalf("FetchIndex: %v", err)
	}
	if len(index) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(index))
	}
	if index[0].Name != "Aatrox Justicar" {
		t.Fatalf("expected normalized display name, got %q", index[0].Name)
	}

	descriptor, err := client.Lookup(context.Background(), "266_266001")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if descriptor.PackageURL != "https://example.com/mods/266_266001.zip" {
		t.Fatalf("unexpected package url: %q", descriptor.PackageURL)
	}

	if _, err := client.Lookup(context.Background(), "missing"); err == nil {
		t.Fatal("expected lookup failure for unknown id")
	}

	// Lookup reuses the cached index.
	if got := indexCalls.Load(); got != 1 {
		t.Fatalf("expected 1 index fetch, got %d", got)
	}
}

func TestFetchPreviewReturnsDataURL(t *testing.T) {
	server, _ := newCatalogServer(t, indexJSON, []byte{0xFF, 0xD8, 0xFF})
	client := newClient(t, server.URL)

	dataURL, err := client.FetchPreview(context.Background(), "266_266001")
	if err != nil {
		t.Fatalf("FetchPreview: %v", err)
	}
	if !strings.HasPrefix(dataURL, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected data url: %q", dataURL)
	}
}

func TestFetchIndexAuthFailureSurfaces(t *testing.T) {
	server, _ := newCatalogServer(t, indexJSON, nil)
	cfg := testsupport.NewConfig(t)
	cfg.Catalog.BaseURL = server.URL
	cfg.Catalog.Token = "wrong"
	client := catalog.NewClient(cfg, transport.NewClient(transport.DefaultOptions(), nil), nil)

	if _, err := client.FetchIndex(context.Background()); err == nil {
		t.Fatal("expected auth failure")
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"aatrox-justicar", "Aatrox Justicar"},
		{"k_da__all.out", "K Da All Out"},
		{"  ", "Unknown Mod"},
		{"PROJECT: Vayne!", "Project Vayne"},
	}
	for _, tc := range cases {
		if got := catalog.DisplayName(tc.in); got != tc.want {
			t.Fatalf("DisplayName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
