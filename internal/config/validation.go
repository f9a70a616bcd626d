package config

import (
	"path/filepath"
	"strings"

	perrors "git.home.luguber.info/inful/presto/internal/errors"
)

// Validate checks required values and makes the destination naming rule
// bijective: no rendered name can be mistaken for another source's output.
func (c *Config) Validate() error {
	p := c.Presto
	required := []struct {
		field string
		value string
	}{
		{"markdown_dir", p.MarkdownDir},
		{"output_dir", p.OutputDir},
		{"template_file", p.TemplateFile},
		{"cache_file", p.CacheFile},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return perrors.ConfigRequired(r.field)
		}
	}

	switch p.Eligibility {
	case EligibilityPrefix, EligibilityExecutable:
	default:
		return perrors.ValidationFailed("presto.eligibility", "must be one of prefix, executable")
	}

	htmlExt := strings.ToLower(p.HTMLExtension)
	if htmlExt == "." {
		return perrors.ValidationFailed("presto.html_extension", "must not be empty")
	}
	for _, ext := range p.SourceExtensions {
		if ext == "." {
			return perrors.ValidationFailed("presto.source_extensions", "must not contain an empty extension")
		}
		if ext == htmlExt {
			return perrors.ValidationFailed("presto.html_extension", "collides with source extension "+ext)
		}
	}

	if strings.ContainsRune(p.Passthrough.Source, filepath.Separator) || strings.ContainsRune(p.Passthrough.Dest, filepath.Separator) {
		return perrors.ValidationFailed("presto.passthrough", "names must not contain path separators")
	}
	srcExt := strings.ToLower(filepath.Ext(p.Passthrough.Source))
	for _, ext := range p.SourceExtensions {
		if srcExt == ext {
			return perrors.ValidationFailed("presto.passthrough.source", "must not use a document extension")
		}
	}
	if strings.HasSuffix(strings.ToLower(p.Passthrough.Dest), htmlExt) {
		return perrors.ValidationFailed("presto.passthrough.dest", "must not use the html extension")
	}
	return nil
}
