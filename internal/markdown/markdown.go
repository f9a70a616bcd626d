// Package markdown converts document bodies to HTML.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/presto/internal/frontmatter"
)

// Converter renders Markdown with the extension set documents are written
// against: tables, strikethrough, autolinks, task lists, footnotes,
// definition lists, smart quotes and dashes, heading IDs and highlighted
// fenced code. Raw HTML passes through untouched.
type Converter struct {
	md goldmark.Markdown
}

// Option adjusts a Converter.
type Option func(*options)

type options struct {
	style string
}

// WithHighlightStyle selects the chroma style used for fenced code.
func WithHighlightStyle(name string) Option {
	return func(o *options) { o.style = name }
}

// New returns a Converter. It is safe for sequential reuse across documents.
func New(opts ...Option) *Converter {
	o := options{style: DefaultHighlightStyle}
	for _, opt := range opts {
		opt(&o)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
			extension.NewTypographer(
				// Three dots stay three dots.
				extension.WithTypographicSubstitutions(map[extension.TypographicPunctuation][]byte{
					extension.Ellipsis: []byte("..."),
				}),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(newHighlighter(o.style), 100)),
		),
	)
	return &Converter{md: md}
}

// Meta parses only the metadata header of text.
func (c *Converter) Meta(text []byte) (frontmatter.Metadata, error) {
	meta, _, err := frontmatter.Extract(text)
	return meta, err
}

// Render converts text to HTML after removing its metadata header.
func (c *Converter) Render(text []byte) (string, error) {
	_, body, err := frontmatter.Extract(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := c.md.Convert(body, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
