package publish

import (
	"errors"
	"fmt"
	"regexp"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"git.home.luguber.info/inful/presto/internal/cache"
	"git.home.luguber.info/inful/presto/internal/directive"
	perrors "git.home.luguber.info/inful/presto/internal/errors"
	"git.home.luguber.info/inful/presto/internal/frontmatter"
	"git.home.luguber.info/inful/presto/internal/markdown"
	"git.home.luguber.info/inful/presto/internal/source"
)

// Pipeline stages, used in failure reports and stage metrics.
const (
	StageMetadata = "metadata"
	StageBody     = "body"
	StageRender   = "render"
	StageTemplate = "template"
)

// ErrMissingTitle is returned for documents whose header has no title.
var ErrMissingTitle = errors.New("metadata has no title")

var commentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)

// StripComments removes HTML comment spans, including multi-line ones.
func StripComments(text string) string {
	return commentPattern.ReplaceAllString(text, "")
}

// Failure is a document-level failure. Stamp is the sentinel recorded in the
// cache so the document is retried on the next run.
type Failure struct {
	Stage string
	Stamp string
	Err   error
}

func newFailure(desc source.Descriptor, stage, stamp string, err error) *Failure {
	return &Failure{
		Stage: stage,
		Stamp: stamp,
		Err:   perrors.DocumentError(desc.RelPath, stage+" failed", err),
	}
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Stage, f.Err) }

func (f *Failure) Unwrap() error { return f.Err }

// Directive reports whether the failure came from directive evaluation.
func (f *Failure) Directive() bool {
	var derr *directive.Error
	return errors.As(f.Err, &derr)
}

// Output is a rendered page. Errors holds directive failures that were
// replaced by empty strings.
type Output struct {
	HTML   string
	Meta   frontmatter.Metadata
	Errors []*directive.Error
}

// Pipeline renders one document at a time into the page template.
type Pipeline struct {
	converter *markdown.Converter
	evaluator *directive.Evaluator
	resolver  *directive.Resolver
	globals   starlark.StringDict
	template  string
}

// NewPipeline assembles a pipeline. globals are shared by every document and
// must not be mutated afterwards.
func NewPipeline(conv *markdown.Converter, eval *directive.Evaluator, resolver *directive.Resolver, globals starlark.StringDict, template string) *Pipeline {
	return &Pipeline{
		converter: conv,
		evaluator: eval,
		resolver:  resolver,
		globals:   globals,
		template:  template,
	}
}

// Render turns one document into a complete page: comments are stripped,
// metadata is read, directives in the body are evaluated, the body is
// converted to HTML and bound as content, and finally the template is
// evaluated and de-escaped.
func (p *Pipeline) Render(desc source.Descriptor, text []byte, hash string) (Output, error) {
	cleaned := StripComments(string(text))

	meta, err := p.converter.Meta([]byte(cleaned))
	if err != nil {
		return Output{}, newFailure(desc, StageMetadata, cache.StampBadMetadata, err)
	}
	if meta.Title() == "" {
		return Output{Meta: meta}, newFailure(desc, StageMetadata, cache.StampBadMetadata, ErrMissingTitle)
	}
	if p.resolver != nil {
		for _, dir := range meta["path"] {
			p.resolver.Append(dir)
		}
	}

	scope, err := p.scope(desc, meta, hash)
	if err != nil {
		return Output{Meta: meta}, newFailure(desc, StageMetadata, cache.StampBadMetadata, err)
	}

	body, err := p.evaluator.Evaluate(cleaned, scope)
	if err != nil {
		return Output{Meta: meta}, newFailure(desc, StageBody, cache.StampEvalFailed, err)
	}

	html, err := p.converter.Render([]byte(body.Text))
	if err != nil {
		return Output{Meta: meta}, newFailure(desc, StageRender, cache.StampEvalFailed, err)
	}
	scope.Set("content", starlark.String(html))

	page, err := p.evaluator.Evaluate(p.template, scope)
	if err != nil {
		return Output{Meta: meta}, newFailure(desc, StageTemplate, cache.StampEvalFailed, err)
	}

	errs := append(body.Errors, page.Errors...)
	return Output{HTML: directive.Deescape(page.Text), Meta: meta, Errors: errs}, nil
}

// scope binds the document's metadata both as a meta dict and as top-level
// names. A key with one value binds a string, several values a list.
func (p *Pipeline) scope(desc source.Descriptor, meta frontmatter.Metadata, hash string) (*directive.Scope, error) {
	scope := directive.NewScope(desc.RelPath, p.globals)

	for key, vals := range meta {
		if len(vals) == 1 {
			scope.Set(key, starlark.String(vals[0]))
			continue
		}
		if err := scope.SetGo(key, vals); err != nil {
			return nil, err
		}
	}
	if err := scope.SetGo("meta", map[string][]string(meta)); err != nil {
		return nil, err
	}

	scope.Set("source_path", starlark.String(desc.RelPath))
	scope.Set("output_path", starlark.String(desc.OutRel))
	scope.Set("hash", starlark.String(hash))
	scope.Set("page", starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"title":       starlark.String(meta.Title()),
		"source_path": starlark.String(desc.RelPath),
		"output_path": starlark.String(desc.OutRel),
		"hash":        starlark.String(hash),
	}))
	return scope, nil
}
