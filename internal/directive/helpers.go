package directive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"git.home.luguber.info/inful/presto/internal/frontmatter"
)

// Helpers builds the helper functions available to every directive.
type Helpers struct {
	SourceDir   string
	PartialsDir string
	Resolver    *Resolver
	DateFormat  string
	Now         func() time.Time
}

// Globals returns the helper bindings. They are frozen and shared by all
// documents of a run.
func (h Helpers) Globals() starlark.StringDict {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	format := h.DateFormat
	if format == "" {
		format = "January 2, 2006"
	}

	g := starlark.StringDict{
		"draft":   starlark.NewBuiltin("draft", h.draft),
		"partial": starlark.NewBuiltin("partial", h.partial),
		"shell":   starlark.NewBuiltin("shell", shell),
		"write":   starlark.NewBuiltin("write", write),
		"today":   starlark.String(now().Format(format)),
	}
	if h.Resolver != nil {
		g["add_path"] = starlark.NewBuiltin("add_path", h.addPath)
	}
	g.Freeze()
	return g
}

// draft(path) returns the body of another source document, header removed
// and surrounding whitespace trimmed. The directives it contains are not
// evaluated.
func (h Helpers) draft(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
		return nil, err
	}
	data, err := readWithin(h.SourceDir, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(strings.TrimSpace(string(frontmatter.StripHeader(data)))), nil
}

// partial(path) returns a file from the partials directory, trimmed.
func (h Helpers) partial(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &path); err != nil {
		return nil, err
	}
	root := h.PartialsDir
	if root == "" {
		root = h.SourceDir
	}
	data, err := readWithin(root, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(strings.TrimSpace(string(data))), nil
}

// add_path(dir) appends dir to the load() search path for the rest of the run.
func (h Helpers) addPath(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dir string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &dir); err != nil {
		return nil, err
	}
	return starlark.String(h.Resolver.Append(dir)), nil
}

// shell(func, args=None, kwargs=None, prompt=">>> ", followup=True) renders
// a call as an interactive session transcript: the prompt and call, the
// result's representation unless it is None, and optionally a trailing
// prompt.
func shell(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		fn       starlark.Callable
		fnArgs   starlark.Value = starlark.None
		fnKwargs starlark.Value = starlark.None
		prompt                  = ">>> "
		followup                = true
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"func", &fn, "args?", &fnArgs, "kwargs?", &fnKwargs, "prompt?", &prompt, "followup?", &followup); err != nil {
		return nil, err
	}

	var (
		callArgs   starlark.Tuple
		callKwargs []starlark.Tuple
		shown      []string
	)
	switch x := fnArgs.(type) {
	case starlark.NoneType:
	case starlark.Indexable:
		for i := 0; i < x.Len(); i++ {
			callArgs = append(callArgs, x.Index(i))
			shown = append(shown, Repr(x.Index(i)))
		}
	default:
		return nil, fmt.Errorf("%s: args must be a list or tuple, got %s", b.Name(), fnArgs.Type())
	}
	switch x := fnKwargs.(type) {
	case starlark.NoneType:
	case *starlark.Dict:
		for _, item := range x.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("%s: kwargs keys must be strings", b.Name())
			}
			callKwargs = append(callKwargs, starlark.Tuple{starlark.String(k), item[1]})
			shown = append(shown, k+"="+Repr(item[1]))
		}
	default:
		return nil, fmt.Errorf("%s: kwargs must be a dict, got %s", b.Name(), fnKwargs.Type())
	}

	rv, err := starlark.Call(thread, fn, callArgs, callKwargs)
	if err != nil {
		return nil, err
	}

	lines := []string{prompt + fn.Name() + "(" + strings.Join(shown, ", ") + ")"}
	if rv != starlark.None {
		lines = append(lines, Repr(rv))
	}
	if followup {
		lines = append(lines, prompt)
	}
	return starlark.String(strings.Join(lines, "\n")), nil
}

// write(*values) emits the display string of each value without a newline.
func write(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	w, ok := thread.Local(outputKey).(io.Writer)
	if !ok {
		return nil, fmt.Errorf("%s: no output available", b.Name())
	}
	for _, v := range args {
		if _, err := io.WriteString(w, Str(v)); err != nil {
			return nil, err
		}
	}
	return starlark.None, nil
}

// readWithin reads rel below root, refusing paths that leave root.
func readWithin(root, rel string) ([]byte, error) {
	if filepath.IsAbs(rel) {
		return nil, fmt.Errorf("path %q must be relative", rel)
	}
	full := filepath.Join(root, rel)
	r, err := filepath.Rel(root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q escapes %s", rel, root)
	}
	return os.ReadFile(full)
}
