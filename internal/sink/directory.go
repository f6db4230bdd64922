// Package sink persists dissection and extraction results to local disk.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"firestige.xyz/netcarve/internal/config"
	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/log"
)

// Manifest describes one extraction run written by Directory.SaveAll.
type Manifest struct {
	Session   string          `yaml:"session"`
	CreatedAt time.Time       `yaml:"created_at"`
	Source    string          `yaml:"source,omitempty"`
	Files     []ManifestEntry `yaml:"files"`
}

// ManifestEntry is an extracted file plus where its bytes landed.
type ManifestEntry struct {
	core.ExtractedFile `yaml:",inline"`
	Path               string `yaml:"path"` // Relative to the output directory
}

// Directory writes extracted files into a single output directory.
type Directory struct {
	dir      string
	manifest string
	source   string
}

// NewDirectory creates a directory sink from extraction settings. source is
// recorded in the manifest and may be empty.
func NewDirectory(cfg config.ExtractConfig, source string) *Directory {
	return &Directory{
		dir:      cfg.OutputDir,
		manifest: cfg.Manifest,
		source:   source,
	}
}

// Dir returns the output directory.
func (d *Directory) Dir() string {
	return d.dir
}

// SaveAll creates the output directory, writes every file's data and then
// the manifest. Files are written in order; the first failure aborts.
func (d *Directory) SaveAll(files []core.ExtractedFile) (*Manifest, error) {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manifest{
		Session:   uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Source:    d.source,
		Files:     make([]ManifestEntry, 0, len(files)),
	}

	used := make(map[string]struct{}, len(files))
	for _, f := range files {
		name := outputName(f, used)
		if err := SaveFile(f, filepath.Join(d.dir, name)); err != nil {
			return nil, err
		}
		m.Files = append(m.Files, ManifestEntry{ExtractedFile: f, Path: name})
	}

	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, d.manifest), out, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"dir":     d.dir,
		"session": m.Session,
		"files":   len(files),
	}).Info("Extracted files saved")

	return m, nil
}

// SaveFile writes one file's data to path, creating parent directories.
func SaveFile(file core.ExtractedFile, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, file.Data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", file.Filename, err)
	}
	return nil
}

// outputName reduces a carved filename to a bare base name and prefixes the
// file id when two files in one run share a name. Names come from traffic,
// so path separators are never trusted.
func outputName(f core.ExtractedFile, used map[string]struct{}) string {
	name := filepath.Base(strings.ReplaceAll(f.Filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		name = "unnamed.bin"
	}
	if _, taken := used[name]; taken && f.ID != "" {
		name = f.ID + "_" + name
	}
	used[name] = struct{}{}
	return name
}
