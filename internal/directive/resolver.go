package directive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"go.starlark.net/starlark"
)

// Resolver answers load() statements from an ordered list of directories.
// The list only grows during a run: both the add_path helper and a
// document's "path" metadata append to it, and later documents see the
// additions. Loaded modules are cached for the life of the resolver.
type Resolver struct {
	mu          sync.Mutex
	base        string
	dirs        []string
	modules     map[string]*module
	predeclared starlark.StringDict
}

type module struct {
	globals starlark.StringDict
	err     error
}

// NewResolver creates a resolver. Relative directories are resolved against
// base, normally the source tree root.
func NewResolver(base string, dirs ...string) *Resolver {
	r := &Resolver{base: base, modules: make(map[string]*module)}
	for _, d := range dirs {
		r.Append(d)
	}
	return r
}

// Append adds dir to the end of the search list unless already present.
func (r *Resolver) Append(dir string) string {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.base, dir)
	}
	dir = filepath.Clean(dir)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.dirs, dir) {
		r.dirs = append(r.dirs, dir)
	}
	return dir
}

// Dirs returns a copy of the current search list.
func (r *Resolver) Dirs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dirs)
}

// SetPredeclared sets the bindings every loaded module starts with.
func (r *Resolver) SetPredeclared(p starlark.StringDict) {
	r.mu.Lock()
	r.predeclared = p
	r.mu.Unlock()
}

// Load implements starlark.Thread.Load.
func (r *Resolver) Load(thread *starlark.Thread, name string) (starlark.StringDict, error) {
	path, err := r.find(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	m, seen := r.modules[path]
	if seen {
		r.mu.Unlock()
		if m == nil {
			return nil, fmt.Errorf("cycle in load graph at %s", name)
		}
		return m.globals, m.err
	}
	r.modules[path] = nil
	predeclared := r.predeclared
	r.mu.Unlock()

	src, err := os.ReadFile(path)
	if err == nil {
		sub := &starlark.Thread{Name: "load " + name, Print: thread.Print, Load: r.Load}
		var g starlark.StringDict
		g, err = starlark.ExecFileOptions(fileOptions, sub, path, src, predeclared)
		m = &module{globals: g, err: err}
	} else {
		m = &module{err: err}
	}

	r.mu.Lock()
	r.modules[path] = m
	r.mu.Unlock()
	return m.globals, m.err
}

func (r *Resolver) find(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	for _, dir := range r.Dirs() {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("module %q not found in search path", name)
}
