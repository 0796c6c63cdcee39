package input

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Loader loads and parses human-readable deployment manifests.
type Loader struct{}

// NewLoader creates a new manifest loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadManifest loads a single manifest from a TOML file.
func (l *Loader) LoadManifest(filePath string) (*ManifestInput, error) {
	if !strings.HasSuffix(filePath, ".toml") {
		return nil, fmt.Errorf("manifest must be a .toml file: %s", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", filePath, err)
	}

	var manifest ManifestInput
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", filePath, err)
	}

	if manifest.Name == "" {
		// The file name is a reasonable default instance name.
		manifest.Name = strings.TrimSuffix(filepath.Base(filePath), ".toml")
	}

	return &manifest, nil
}

// LoadAllManifests loads every manifest from a directory. Returns a map of
// instance name to manifest.
func (l *Loader) LoadAllManifests(dirPath string) (map[string]*ManifestInput, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest directory %s: %w", dirPath, err)
	}

	manifests := make(map[string]*ManifestInput)
	var errs []error

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}

		manifest, err := l.LoadManifest(filepath.Join(dirPath, entry.Name()))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
			continue
		}
		if _, exists := manifests[manifest.Name]; exists {
			errs = append(errs, fmt.Errorf("%s: duplicate manifest name %q", entry.Name(), manifest.Name))
			continue
		}
		manifests[manifest.Name] = manifest
	}

	if len(errs) > 0 {
		return manifests, errors.Join(errs...)
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("no manifests found in %s", dirPath)
	}
	return manifests, nil
}
