package directive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"git.home.luguber.info/inful/presto/internal/logfields"
)

// Directive code may use top-level loops and conditionals, rebind names
// and recurse. Names bound by load() become document bindings like any other
// assignment.
var fileOptions = &syntax.FileOptions{
	Set:               true,
	While:             true,
	TopLevelControl:   true,
	GlobalReassign:    true,
	LoadBindsGlobally: true,
	Recursion:         true,
}

const outputKey = "presto.output"

// Evaluator substitutes directives in text buffers.
type Evaluator struct {
	policy   Policy
	resolver *Resolver
	logger   *slog.Logger
}

// NewEvaluator returns an evaluator applying policy on failures. resolver
// may be nil, in which case load() statements fail.
func NewEvaluator(policy Policy, resolver *Resolver) *Evaluator {
	return &Evaluator{policy: policy, resolver: resolver, logger: slog.Default()}
}

// WithLogger sets the logger used for per-directive debug output.
func (e *Evaluator) WithLogger(l *slog.Logger) *Evaluator {
	if l != nil {
		e.logger = l
	}
	return e
}

// Evaluate replaces every directive in src with its output, left to right,
// binding names into scope as Exec directives run. Under FailFast the first
// failure is returned as a *Error and the partial text is discarded. Under
// UseEmpty failures are collected in Result.Errors.
//
// Escape sequences are left in place; call Deescape once the buffer is final.
func (e *Evaluator) Evaluate(src string, scope *Scope) (Result, error) {
	directives := Scan(src)
	if len(directives) == 0 {
		return Result{Text: src}, nil
	}

	var (
		b    strings.Builder
		res  Result
		last int
	)
	b.Grow(len(src))
	for _, d := range directives {
		b.WriteString(src[last:d.Start])
		last = d.End

		out, err := e.run(d, scope)
		if err != nil {
			derr := &Error{Kind: d.Kind, Source: scope.Name, Line: d.Line, Err: err}
			e.logger.Debug("Directive failed",
				logfields.Path(scope.Name),
				logfields.Directive(d.Kind.Name()),
				slog.Int("line", d.Line),
				logfields.Error(err))
			if e.policy == FailFast {
				return Result{}, derr
			}
			// The directive vanishes together with its leading newline and
			// indent, so the surrounding paragraph stays joined.
			res.Errors = append(res.Errors, derr)
			continue
		}
		b.WriteString(place(d, out))
	}
	b.WriteString(src[last:])
	res.Text = b.String()
	return res, nil
}

func (e *Evaluator) run(d Directive, scope *Scope) (string, error) {
	thread := &starlark.Thread{Name: scope.Name}
	if e.resolver != nil {
		thread.Load = e.resolver.Load
	}
	filename := fmt.Sprintf("%s:%d", scope.Name, d.Line)

	if d.Kind == Exec {
		var out strings.Builder
		thread.Print = func(_ *starlark.Thread, msg string) {
			out.WriteString(msg)
			out.WriteByte('\n')
		}
		thread.SetLocal(outputKey, &out)

		f, err := fileOptions.Parse(filename, dedent(d.Code, len(d.Indent)), 0)
		if err != nil {
			return "", err
		}
		if err := scope.exec(thread, f); err != nil {
			return "", err
		}
		return out.String(), nil
	}

	// Output printed while evaluating an expression is discarded.
	thread.Print = func(*starlark.Thread, string) {}
	thread.SetLocal(outputKey, io.Discard)

	v, err := starlark.EvalOptions(fileOptions, thread, filename, strings.TrimSpace(d.Code), scope.env())
	if err != nil {
		return "", err
	}
	if d.Kind == StrEval {
		return Str(v), nil
	}
	return Repr(v), nil
}

// Repr returns the unambiguous representation of v.
func Repr(v starlark.Value) string {
	return v.String()
}

// Str returns the display string of v: strings unquoted, everything else as
// its representation.
func Str(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}

// Backtrace returns the interpreter call stack for err when it carries one.
func Backtrace(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return ""
}
