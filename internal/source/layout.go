package source

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/presto/internal/config"
)

// Layout is the destination naming rule: a document's source extension is
// replaced with the output extension, and the passthrough control file is
// renamed to its protected destination name. Configuration validation makes
// the rule bijective, so the inverse is unambiguous for any file it produced.
type Layout struct {
	SourceExtensions []string
	OutputExtension  string
	PassthroughName  string
	PassthroughDest  string
}

// NewLayout builds the naming rule from configuration.
func NewLayout(cfg *config.Config) Layout {
	return Layout{
		SourceExtensions: cfg.Presto.SourceExtensions,
		OutputExtension:  cfg.Presto.HTMLExtension,
		PassthroughName:  cfg.Presto.Passthrough.Source,
		PassthroughDest:  cfg.Presto.Passthrough.Dest,
	}
}

// DefaultLayout returns the rule used when no configuration overrides it.
func DefaultLayout() Layout {
	return Layout{
		SourceExtensions: append([]string(nil), config.DefaultSourceExtensions...),
		OutputExtension:  config.DefaultHTMLExtension,
		PassthroughName:  config.DefaultPassthroughSource,
		PassthroughDest:  config.DefaultPassthroughDest,
	}
}

// KindOf classifies a file name, reporting false for files that are not sources.
func (l Layout) KindOf(name string) (Kind, bool) {
	if name == l.PassthroughName {
		return KindPassthrough, true
	}
	if l.documentExt(name) != "" {
		return KindDocument, true
	}
	return 0, false
}

func (l Layout) documentExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range l.SourceExtensions {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return name[len(name)-len(ext):]
		}
	}
	return ""
}

// OutputRel maps a source-relative path to its destination-relative path.
func (l Layout) OutputRel(srcRel string) string {
	dir, name := filepath.Split(srcRel)
	if name == l.PassthroughName {
		return filepath.Join(dir, l.PassthroughDest)
	}
	if ext := l.documentExt(name); ext != "" {
		return filepath.Join(dir, strings.TrimSuffix(name, ext)+l.OutputExtension)
	}
	return srcRel
}

// SourceCandidates inverts OutputRel: it returns every source-relative path
// that would render to destRel. Files the rule never produces yield nil.
func (l Layout) SourceCandidates(destRel string) []string {
	dir, name := filepath.Split(destRel)
	if name == l.PassthroughDest {
		return []string{filepath.Join(dir, l.PassthroughName)}
	}
	if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(l.OutputExtension)) || len(name) <= len(l.OutputExtension) {
		return nil
	}
	stem := name[:len(name)-len(l.OutputExtension)]
	out := make([]string, 0, len(l.SourceExtensions))
	for _, ext := range l.SourceExtensions {
		out = append(out, filepath.Join(dir, stem+ext))
	}
	return out
}

// Ignored reports names the walker never considers: dot-files, editor
// autosave (#...) and backup (...~) files.
func Ignored(name string) bool {
	if name == "" {
		return true
	}
	return name[0] == '.' || name[0] == '#' || strings.HasSuffix(name, "~")
}
