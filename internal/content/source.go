package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// Source fetches raw content documents by key. Implementations treat the
// underlying store as read-only.
type Source interface {
	Fetch(ctx context.Context, key, language string) ([]byte, error)
}

// FileSource reads YAML documents from a directory tree. The key maps to a
// path relative to the base; a language hint selects "<key>.<lang>.yaml"
// when present, falling back to "<key>.yaml".
type FileSource struct {
	basePath string
}

// NewFileSource creates a source rooted at basePath.
func NewFileSource(basePath string) *FileSource {
	return &FileSource{basePath: basePath}
}

// Fetch reads the document bytes for a key, preferring the localized file.
func (s *FileSource) Fetch(ctx context.Context, key, language string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	if language != "" {
		localized := filepath.Join(s.basePath, key+"."+language+".yaml")
		if data, err := os.ReadFile(localized); err == nil {
			return data, nil
		}
	}
	path := filepath.Join(s.basePath, key+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content %q %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrUpstream, path, err)
	}
	return data, nil
}
