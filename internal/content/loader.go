package content

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/pathwise-learning/pathwise/internal/domain"
)

// documentFile is the YAML envelope for a content document.
type documentFile struct {
	Kind      Kind           `yaml:"kind"`
	Version   string         `yaml:"version"`
	Bank      *QuestionBank  `yaml:"bank,omitempty"`
	Templates *TemplateSet   `yaml:"templates,omitempty"`
	Narrative *NarrativeTree `yaml:"narrative,omitempty"`
}

// Loader hydrates immutable content documents from a source, validates
// them, and caches successful loads by (key, language). The cache is an
// explicitly constructed object passed in at creation, never a package
// singleton.
type Loader struct {
	source   Source
	cache    Cache
	disabled bool
	logger   *slog.Logger
}

// NewLoader creates a loader. A nil cache or disabled=true turns caching
// off: every call re-fetches and re-validates.
func NewLoader(source Source, cache Cache, disabled bool, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, cache: cache, disabled: disabled, logger: logger}
}

// Load fetches, parses, and validates the document for key. The second
// return value reports whether the document came from the cache. Failed
// loads are never cached, so a later retry re-attempts the fetch.
func (l *Loader) Load(ctx context.Context, key, language string) (*Document, bool, error) {
	cacheKey := key + "|" + language
	if l.cacheEnabled() {
		if doc, ok := l.cache.Get(cacheKey); ok {
			return doc, true, nil
		}
	}

	data, err := l.source.Fetch(ctx, key, language)
	if err != nil {
		return nil, false, err
	}

	var file documentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, false, fmt.Errorf("%w: parse %s: %v", domain.ErrValidation, key, err)
	}

	doc := &Document{
		Key:          key,
		Language:     language,
		Version:      file.Version,
		Kind:         file.Kind,
		QuestionBank: file.Bank,
		Templates:    file.Templates,
		Narrative:    file.Narrative,
	}
	if err := doc.Validate(); err != nil {
		return nil, false, fmt.Errorf("document %s: %w", key, err)
	}

	if l.cacheEnabled() {
		l.cache.Add(cacheKey, doc)
	}
	l.logger.Debug("loaded content document", "key", key, "language", language, "kind", doc.Kind)
	return doc, false, nil
}

// ClearCache drops every cached document.
func (l *Loader) ClearCache() {
	if l.cache != nil {
		l.cache.Purge()
	}
}

func (l *Loader) cacheEnabled() bool {
	return !l.disabled && l.cache != nil
}
