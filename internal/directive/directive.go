// Package directive evaluates the scripting directives embedded in document
// and template text.
//
// Three directive kinds are recognised, each delimited by a pair of identical
// marker characters:
//
//	{! statements !}   Exec: executed for effect; printed output is substituted
//	{~ expression ~}   ReprEval: the value's unambiguous representation
//	{= expression =}   StrEval: the value's display string
//
// Directives are found in a single left-to-right pass and never nest. A
// backslash before any of the characters { } ~ = ! makes it literal; Deescape
// removes those backslashes once all substitution is done.
//
// Code runs in an embedded Starlark interpreter. Only the bindings of the
// Scope (configuration variables, helpers, document metadata and names bound
// by earlier Exec directives of the same document) are reachable from it.
package directive

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies a directive's evaluation mode.
type Kind int

const (
	Exec Kind = iota + 1
	ReprEval
	StrEval
)

// String returns the directive's delimiter form, as shown to operators.
func (k Kind) String() string {
	switch k {
	case Exec:
		return "{! ... !}"
	case ReprEval:
		return "{~ ... ~}"
	case StrEval:
		return "{= ... =}"
	default:
		return "unknown"
	}
}

// Name returns a short identifier suitable for logs and metrics labels.
func (k Kind) Name() string {
	switch k {
	case Exec:
		return "exec"
	case ReprEval:
		return "repr"
	case StrEval:
		return "str"
	default:
		return "unknown"
	}
}

func (k Kind) verb() string {
	if k == Exec {
		return "executing"
	}
	return "evaluating"
}

// Policy selects how a failing directive affects the rest of the buffer.
type Policy int

const (
	// FailFast aborts evaluation of the whole buffer at the first failure.
	FailFast Policy = iota
	// UseEmpty substitutes an empty string for the failing directive and continues.
	UseEmpty
)

func (p Policy) String() string {
	if p == UseEmpty {
		return "use-empty"
	}
	return "fail-fast"
}

// Directive is one match found while scanning a buffer. Indent is the
// horizontal whitespace between the preceding newline and the opening
// marker; HasIndent distinguishes an empty indent from no preceding newline.
// Start and End delimit the matched text, indent included.
type Directive struct {
	Kind      Kind
	Code      string
	Indent    string
	HasIndent bool
	Line      int
	Start     int
	End       int
}

// Error is a failure raised while executing or evaluating one directive.
type Error struct {
	Kind   Kind
	Source string
	Line   int
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error occurred %s %s: %v", e.Kind.verb(), e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome of evaluating a buffer. Errors holds the failures
// that were replaced by empty strings under the UseEmpty policy.
type Result struct {
	Text   string
	Errors []*Error
}

// Escape sequences are matched as their own alternative so an escaped marker
// can never open a directive. Inside a body, a backslash pair is consumed as
// a unit, so an escaped closing marker does not terminate the directive.
var (
	directivePattern = regexp.MustCompile(
		`(?s)\\([{}~=!])` +
			`|(\n[ \t]*)?(?:\{!((?:\\.|[^\\])*?)!\}|\{~((?:\\.|[^\\])*?)~\}|\{=((?:\\.|[^\\])*?)=\})`)
	escapePattern = regexp.MustCompile(`\\([{}~=!])`)
)

const (
	groupEscape = 1
	groupIndent = 2
	groupExec   = 3
	groupRepr   = 4
	groupStr    = 5
)

// Deescape strips the backslash from \{ \} \~ \= and \!.
func Deescape(s string) string {
	return escapePattern.ReplaceAllString(s, "$1")
}

// Scan returns the directives of src in order of appearance, without
// evaluating them.
func Scan(src string) []Directive {
	var out []Directive
	for _, m := range directivePattern.FindAllStringSubmatchIndex(src, -1) {
		if d, ok := directiveAt(src, m); ok {
			out = append(out, d)
		}
	}
	return out
}

// directiveAt decodes one match; escape tokens report false.
func directiveAt(src string, m []int) (Directive, bool) {
	if m[2*groupEscape] >= 0 {
		return Directive{}, false
	}

	d := Directive{Line: 1 + strings.Count(src[:m[0]], "\n"), Start: m[0], End: m[1]}
	if start := m[2*groupIndent]; start >= 0 {
		d.HasIndent = true
		d.Indent = src[start+1 : m[2*groupIndent+1]]
		d.Line++
	}
	for _, g := range []struct {
		group int
		kind  Kind
	}{{groupExec, Exec}, {groupRepr, ReprEval}, {groupStr, StrEval}} {
		if start := m[2*g.group]; start >= 0 {
			d.Kind = g.kind
			d.Code = Deescape(src[start:m[2*g.group+1]])
			break
		}
	}
	return d, true
}

// dedent prepares Exec code: a single line is trimmed; otherwise the first
// line loses its leading whitespace and every later line loses at most width
// leading whitespace characters.
func dedent(code string, width int) string {
	lines := strings.Split(code, "\n")
	if len(lines) == 1 {
		return strings.TrimSpace(code)
	}
	lines[0] = strings.TrimLeft(lines[0], " \t")
	for i := 1; i < len(lines); i++ {
		lines[i] = trimIndent(lines[i], width)
	}
	return strings.Join(lines, "\n")
}

func trimIndent(line string, width int) string {
	i := 0
	for i < width && i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[i:]
}

// indent prefixes every line after the first with prefix.
func indent(text, prefix string) string {
	if prefix == "" || !strings.Contains(text, "\n") {
		return text
	}
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

// place positions a directive's output where the directive stood. Only Exec
// output is re-indented; expression values are inserted verbatim so that
// preformatted text keeps its layout.
func place(d Directive, out string) string {
	if !d.HasIndent {
		return out
	}
	if d.Kind == Exec {
		out = indent(out, d.Indent)
	}
	return "\n" + d.Indent + out
}
