package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"modvault/internal/catalog"
	"modvault/internal/fileutil"
	"modvault/internal/logging"
	"modvault/internal/modpack"
	"modvault/internal/transport"
)

// NetFetcher downloads artifact packages over HTTP and extracts them into the
// mods directory. It implements Fetcher.
type NetFetcher struct {
	transport *transport.Client
	catalog   *catalog.Client
	modsDir   string
	logger    *slog.Logger
}

// NewNetFetcher wires the production fetcher.
func NewNetFetcher(client *transport.Client, cat *catalog.Client, modsDir string, logger *slog.Logger) *NetFetcher {
	return &NetFetcher{
		transport: client,
		catalog:   cat,
		modsDir:   modsDir,
		logger:    logging.NewComponentLogger(logger, "fetcher"),
	}
}

// FetchArtifact downloads the package archive, extracts it, and returns the
// installed location. When the mod directory already holds an installed
// package the transfer is skipped entirely.
func (f *NetFetcher) FetchArtifact(ctx context.Context, artifactID, packageURL, name string) (*FetchResult, error) {
	modDir := filepath.Join(f.modsDir, artifactID)
	if modpack.HasInstalledPackage(modDir) {
		f.logger.DebugContext(ctx, "package already installed",
			logging.String(logging.FieldArtifactID, artifactID))
		return &FetchResult{Success: true, LocalPath: modDir}, nil
	}

	var lastErr error
	for _, url := range archiveCandidates(packageURL) {
		body, err := f.download(ctx, url)
		if err != nil {
			lastErr = err
			f.logger.DebugContext(ctx, "archive fetch failed",
				logging.String(logging.FieldURL, url),
				logging.Error(err))
			continue
		}
		path, size, err := f.install(ctx, artifactID, modDir, body)
		if err != nil {
			return nil, err
		}
		return &FetchResult{Success: true, LocalPath: path, SizeBytes: size}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no package URL for artifact %s", artifactID)
	}
	return nil, fmt.Errorf("fetch package for %s: %w", artifactID, lastErr)
}

// FetchPreview delegates to the catalog's authenticated preview endpoint.
func (f *NetFetcher) FetchPreview(ctx context.Context, artifactID string) (*PreviewResult, error) {
	if f.catalog == nil {
		return &PreviewResult{Success: false, Error: "no catalog configured"}, nil
	}
	dataURL, err := f.catalog.FetchPreview(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Success: true, DataURL: dataURL}, nil
}

func (f *NetFetcher) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.transport.Do(ctx, &transport.Request{URL: url})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// install writes the archive to a temp file, extracts the playable entries
// into modDir, and removes the temp archive.
func (f *NetFetcher) install(ctx context.Context, artifactID, modDir string, archive []byte) (string, int64, error) {
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create mod directory: %w", err)
	}
	tmpPath := filepath.Join(modDir, ".package.zip")
	if err := fileutil.WriteFileAtomic(tmpPath, archive, 0o644); err != nil {
		return "", 0, fmt.Errorf("stage archive: %w", err)
	}
	defer os.Remove(tmpPath)

	result, err := modpack.Extract(tmpPath, modDir, f.logger)
	if err != nil {
		return "", 0, fmt.Errorf("extract package: %w", err)
	}
	f.logger.InfoContext(ctx, "package installed",
		logging.String(logging.FieldArtifactID, artifactID),
		logging.Int("extracted", result.Extracted),
		logging.Int("skipped", result.Skipped))
	return modDir, int64(len(archive)), nil
}

// archiveCandidates returns the package URL and, for zip links, the same link
// with a .fantome extension. Some mirrors publish only one of the two forms.
func archiveCandidates(packageURL string) []string {
	if packageURL == "" {
		return nil
	}
	candidates := []string{packageURL}
	if strings.HasSuffix(packageURL, ".zip") {
		candidates = append(candidates, strings.TrimSuffix(packageURL, ".zip")+".fantome")
	}
	return candidates
}
