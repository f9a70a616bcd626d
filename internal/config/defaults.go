package config

import "strings"

const (
	DefaultHTMLExtension     = ".html"
	DefaultPassthroughSource = "htaccess"
	DefaultPassthroughDest   = ".htaccess"
	DefaultDateFormat        = "January 2, 2006"
)

// DefaultSourceExtensions lists the Markdown extensions recognised as documents.
var DefaultSourceExtensions = []string{".markdown", ".md"}

func applyDefaults(cfg *Config) {
	p := &cfg.Presto

	if p.HTMLExtension == "" {
		p.HTMLExtension = DefaultHTMLExtension
	}
	p.HTMLExtension = normalizeExt(p.HTMLExtension)

	if len(p.SourceExtensions) == 0 {
		p.SourceExtensions = append([]string(nil), DefaultSourceExtensions...)
	}
	for i, ext := range p.SourceExtensions {
		p.SourceExtensions[i] = strings.ToLower(normalizeExt(ext))
	}

	if p.Eligibility == "" {
		p.Eligibility = EligibilityPrefix
	}
	p.Eligibility = EligibilityMode(strings.ToLower(string(p.Eligibility)))

	if p.Passthrough.Source == "" {
		p.Passthrough.Source = DefaultPassthroughSource
	}
	if p.Passthrough.Dest == "" {
		p.Passthrough.Dest = DefaultPassthroughDest
	}
	if p.DateFormat == "" {
		p.DateFormat = DefaultDateFormat
	}
	if cfg.Variables == nil {
		cfg.Variables = map[string]any{}
	}
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
