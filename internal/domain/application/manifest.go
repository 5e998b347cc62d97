package application

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
)

// Manifest lists applications installed for automation.
type Manifest struct {
	Applications []ManifestEntry `yaml:"applications" toml:"applications"`
}

// ManifestEntry describes one application bundle.
type ManifestEntry struct {
	Path     string            `yaml:"path" toml:"path"`
	BundleID string            `yaml:"bundle_id" toml:"bundle_id"`
	Name     string            `yaml:"name" toml:"name"`
	Version  string            `yaml:"version" toml:"version"`
	Locales  []string          `yaml:"locales" toml:"locales"`
	Metadata map[string]string `yaml:"metadata" toml:"metadata"`
}

// ParseManifest decodes manifest data; format is "yaml" or "toml".
func ParseManifest(data []byte, format string) (*Manifest, error) {
	var m Manifest
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid YAML manifest: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid TOML manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format: %q", format)
	}
	return &m, nil
}

// LoadManifest reads a manifest file and builds its applications. Relative
// bundle paths are resolved against the manifest's directory.
func LoadManifest(path string) ([]*Application, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := ParseManifest(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	apps := make([]*Application, 0, len(m.Applications))
	for i, entry := range m.Applications {
		if entry.Path == "" {
			return nil, fmt.Errorf("%s: application %d has no path", path, i)
		}
		appPath := entry.Path
		if !filepath.IsAbs(appPath) {
			appPath = filepath.Join(dir, appPath)
		}
		apps = append(apps, New(appPath, entry.metadata(), entry.Locales...))
	}
	return apps, nil
}

func (e ManifestEntry) metadata() map[string]string {
	meta := make(map[string]string, len(e.Metadata)+3)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	if e.BundleID != "" {
		meta[MetaBundleID] = e.BundleID
	}
	if e.Name != "" {
		meta[MetaBundleName] = e.Name
	}
	if e.Version != "" {
		meta[MetaBundleVersion] = e.Version
	}
	return meta
}

// LoadCatalog builds a catalog from every manifest matching pattern
// (doublestar syntax). Unreadable manifests are logged and skipped.
func LoadCatalog(pattern string, logger *logging.Logger) (*Catalog, error) {
	logger = logging.OrNop(logger)
	catalog := NewCatalog()

	if pattern == "" {
		return catalog, nil
	}

	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog pattern %q: %w", pattern, err)
	}

	var failed int
	for _, path := range paths {
		apps, err := LoadManifest(path)
		if err != nil {
			failed++
			logger.Warn("Skipping application manifest", zap.String("path", path), zap.Error(err))
			continue
		}
		catalog.Add(apps...)
	}

	logger.Info("Application catalog loaded",
		zap.Int("manifests", len(paths)),
		zap.Int("failed", failed),
		zap.Int("applications", catalog.Len()),
	)
	return catalog, nil
}
