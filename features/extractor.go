package features

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RyanBlaney/sonido-forma/logging"
	"gopkg.in/yaml.v3"
)

// Extractor supplies feature bundles. Any backend that can produce the bundle
// shape is interchangeable with the ones in this package.
type Extractor interface {
	Extract(ctx context.Context, source string) (*Bundle, error)
}

// FileExtractor reads bundles written by an external DSP backend as JSON or
// YAML documents, chosen by file extension.
type FileExtractor struct {
	logger logging.Logger
}

// NewFileExtractor creates a file-backed extractor
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{
		logger: logging.WithFields(logging.Fields{
			"component": "file_extractor",
		}),
	}
}

// Extract loads and validates the bundle at path
func (e *FileExtractor) Extract(ctx context.Context, path string) (*Bundle, error) {
	logger := e.logger.WithFields(logging.Fields{
		"function": "Extract",
		"path":     path,
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	bundle, err := Decode(data, filepath.Ext(path))
	if err != nil {
		logger.Error(err, "Failed to decode bundle")
		return nil, err
	}

	if len(bundle.ChromaFrames) == 0 {
		logger.Warn("Bundle has no chroma frames")
		return nil, fmt.Errorf("%s: %w", path, ErrNoFrames)
	}

	logger.Debug("Bundle loaded", logging.Fields{
		"frames": len(bundle.ChromaFrames),
		"beats":  len(bundle.BeatGrid.BeatTimestamps),
		"mfcc":   len(bundle.MFCCFrames) > 0,
	})
	return bundle, nil
}

// Decode parses a bundle document. ext selects the format (".json", ".yaml",
// ".yml").
func Decode(data []byte, ext string) (*Bundle, error) {
	var bundle Bundle

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &bundle); err != nil {
			return nil, NewBundleError("document", "invalid JSON", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &bundle); err != nil {
			return nil, NewBundleError("document", "invalid YAML", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// Encode serializes a bundle in the format selected by ext
func Encode(bundle *Bundle, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return json.MarshalIndent(bundle, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(bundle)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// WriteFile encodes a bundle to path using the extension to pick the format
func WriteFile(path string, bundle *Bundle) error {
	data, err := Encode(bundle, filepath.Ext(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// MemoryExtractor serves bundles registered in memory. Tests and embedding
// applications that compute features themselves use it.
type MemoryExtractor struct {
	mu      sync.RWMutex
	bundles map[string]*Bundle
}

// NewMemoryExtractor creates an empty in-memory extractor
func NewMemoryExtractor() *MemoryExtractor {
	return &MemoryExtractor{bundles: make(map[string]*Bundle)}
}

// Put registers a bundle under a source name
func (m *MemoryExtractor) Put(source string, bundle *Bundle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[source] = bundle
}

// Extract returns the bundle registered under source
func (m *MemoryExtractor) Extract(ctx context.Context, source string) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	bundle, ok := m.bundles[source]
	if !ok {
		return nil, fmt.Errorf("no bundle registered for %q", source)
	}
	if len(bundle.ChromaFrames) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrNoFrames)
	}
	return bundle, nil
}
