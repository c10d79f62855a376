// Package modpack extracts downloaded mod packages into the mods directory.
//
// Packages are zip archives (the .fantome format is zip under another
// extension). Extraction filters entries known to destabilize the game client:
// locale-specific WAD variants, TFT assets, and a short list of crash-prone
// asset families.
package modpack

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"modvault/internal/logging"
)

// localePatterns mark locale-specific WAD variants that crash the client when
// the installed locale differs.
var localePatterns = []string{
	".tr_TR.", ".en_US.", ".en_GB.", ".de_DE.", ".es_ES.", ".es_MX.",
	".fr_FR.", ".it_IT.", ".pl_PL.", ".pt_BR.", ".ro_RO.", ".ru_RU.",
	".el_GR.", ".cs_CZ.", ".hu_HU.", ".ja_JP.", ".ko_KR.", ".zh_CN.",
	".zh_TW.", ".th_TH.", ".vi_VN.", ".ar_AE.", ".id_ID.", ".ms_MY.",
	".ph_PH.", ".sg_SG.", ".tw_TW.",
}

// tftPatterns mark TFT assets that conflict with the regular game mode.
var tftPatterns = []string{
	"TFT", "tft", "Teamfight", "teamfight",
	"Map22", "Map30", "Map33",
}

// crashPatterns mark asset families that are skipped when packaged as WAD
// overlays.
var crashPatterns = []string{
	"Announcer",
	"LoadScreen",
	".luabin",
}

// Result summarizes one extraction.
type Result struct {
	Extracted int
	Skipped   int
}

// Extract unpacks the archive at archivePath into targetDir, filtering
// unstable entries. targetDir is created when missing; existing files are
// overwritten.
func Extract(archivePath, targetDir string, logger *slog.Logger) (*Result, error) {
	logger = logging.NewComponentLogger(logger, "modpack")

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %q: %w", archivePath, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("create target dir: %w", err)
	}

	result := &Result{}
	for _, entry := range reader.File {
		if skip, reason := shouldSkip(entry.Name); skip {
			logger.Debug("skipping archive entry",
				logging.String("entry", entry.Name),
				logging.String("reason", reason),
			)
			result.Skipped++
			continue
		}

		destPath, err := securePath(targetDir, entry.Name)
		if err != nil {
			// Entries escaping the target directory are dropped, not fatal.
			result.Skipped++
			continue
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return nil, fmt.Errorf("create dir %q: %w", destPath, err)
			}
			continue
		}

		if err := extractFile(entry, destPath); err != nil {
			return nil, err
		}
		result.Extracted++
	}

	logger.Info("archive extracted",
		logging.String("archive", filepath.Base(archivePath)),
		logging.Int("extracted", result.Extracted),
		logging.Int("skipped", result.Skipped),
	)
	return result, nil
}

// HasInstalledPackage reports whether dir already holds an extracted package
// with the expected WAD/META layout, mirroring the pre-download cache check.
func HasInstalledPackage(dir string) bool {
	wadDir := filepath.Join(dir, "WAD")
	metaDir := filepath.Join(dir, "META")
	if !isDir(wadDir) || !isDir(metaDir) {
		return false
	}
	entries, err := os.ReadDir(wadDir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".wad.client") {
			return true
		}
	}
	return false
}

func shouldSkip(name string) (bool, string) {
	for _, pattern := range localePatterns {
		if strings.Contains(name, pattern) {
			return true, "locale"
		}
	}
	for _, pattern := range tftPatterns {
		if strings.Contains(name, pattern) {
			return true, "tft"
		}
	}
	if strings.HasSuffix(name, ".wad.client") {
		for _, pattern := range crashPatterns {
			if strings.Contains(name, pattern) {
				return true, "crash-prone"
			}
		}
	}
	return false, ""
}

func securePath(targetDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) || filepath.IsAbs(cleaned) {
		return "", errors.New("entry escapes target directory")
	}
	return filepath.Join(targetDir, cleaned), nil
}

func extractFile(entry *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %q: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create file %q: %w", destPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write %q: %w", destPath, err)
	}
	return dst.Close()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
