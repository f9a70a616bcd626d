package markdown

import (
	"bytes"
	"html"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// DefaultHighlightStyle is the chroma style used when none is configured.
const DefaultHighlightStyle = "friendly"

// highlighter renders fenced code blocks through chroma, wrapped in a
// <div class="codehilite"> the way stylesheets for the site expect.
type highlighter struct {
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

func newHighlighter(style string) *highlighter {
	return &highlighter{
		formatter: chromahtml.New(chromahtml.WithClasses(true)),
		style:     styles.Get(style),
	}
}

func (h *highlighter) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, h.renderFencedCode)
}

func (h *highlighter) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	var lang string
	if n.Info != nil {
		lang = string(n.Language(source))
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	_, _ = w.WriteString(`<div class="codehilite">`)
	it, err := lexer.Tokenise(nil, code.String())
	if err == nil {
		err = h.formatter.Format(w, h.style, it)
	}
	if err != nil {
		_, _ = w.WriteString("<pre><code>")
		_, _ = w.WriteString(html.EscapeString(code.String()))
		_, _ = w.WriteString("</code></pre>")
	}
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}
