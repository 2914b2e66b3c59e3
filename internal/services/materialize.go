package services

import (
	"archive/zip"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelsos/doc2x-cli/internal/logger"
	"github.com/kelsos/doc2x-cli/internal/storage"
	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

// MaterializeResult describes an unpacked convert_zip.
type MaterializeResult struct {
	OutputDir string   `json:"output_dir"`
	ZipPath   string   `json:"zip_path"`
	Extracted bool     `json:"extracted"`
	Files     []string `json:"files,omitempty"`
}

// MaterializeZip decodes a base64 convert_zip into outputDir as assets.zip
// and extracts it there. Entries escaping outputDir are rejected.
func MaterializeZip(zipBase64, outputDir string) (*MaterializeResult, error) {
	if strings.TrimSpace(zipBase64) == "" {
		return nil, toolerr.InvalidArgument("convert_zip_base64 is required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, toolerr.InvalidArgument("output_dir is required")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(zipBase64))
	if err != nil {
		return nil, toolerr.InvalidArgument("convert_zip_base64 is not valid base64: %v", err)
	}

	outDir, err := storage.EnsureDir(outputDir)
	if err != nil {
		return nil, toolerr.New(toolerr.CodeInternalError, err.Error(), false)
	}

	zipPath, err := storage.WriteFile(filepath.Join(outDir, "assets.zip"), data)
	if err != nil {
		return nil, toolerr.New(toolerr.CodeInternalError, err.Error(), false)
	}

	result := &MaterializeResult{OutputDir: outDir, ZipPath: zipPath}
	files, err := extractZip(zipPath, outDir)
	if err != nil {
		// the archive stays on disk for manual inspection
		logger.Warn("Failed to extract %s: %v", zipPath, err)
		return result, nil
	}

	result.Extracted = true
	result.Files = files
	logger.Info("Extracted %d files into %s", len(files), outDir)
	return result, nil
}

func extractZip(zipPath, outDir string) ([]string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer reader.Close()

	var files []string
	for _, f := range reader.File {
		target, err := safeJoin(outDir, f.Name)
		if err != nil {
			return files, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return files, err
		}
		rel, _ := filepath.Rel(outDir, target)
		files = append(files, rel)
		logger.Debug("Extracted file: %s", rel)
	}
	return files, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return dst.Close()
}

// safeJoin resolves name inside dir, refusing absolute paths and ".." escapes.
func safeJoin(dir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("zip entry has absolute path: %s", name)
	}
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("zip entry escapes output directory: %s", name)
	}
	return target, nil
}
