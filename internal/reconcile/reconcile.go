// Package reconcile keeps the destination tree in step with the sources: it
// deletes artifacts no current source produces and prunes directories left
// empty. Whitelisted directories are never entered.
package reconcile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/presto/internal/cache"
	perrors "git.home.luguber.info/inful/presto/internal/errors"
	"git.home.luguber.info/inful/presto/internal/logfields"
	"git.home.luguber.info/inful/presto/internal/source"
	"git.home.luguber.info/inful/presto/internal/util/sets"
)

// Reconciler walks one destination root.
type Reconciler struct {
	root      string
	layout    source.Layout
	whitelist sets.Set[string]
	dryRun    bool
	logger    *slog.Logger

	// removed tracks paths deleted so far, so a dry run can simulate
	// pruning the directories its file removals would have emptied.
	removed sets.Set[string]
}

// Result lists what a pass removed and what it failed to remove. Paths are
// relative to the destination root.
type Result struct {
	Removed     []string
	RemovedDirs []string
	Errors      []error
}

func (r *Result) merge(o Result) {
	r.Removed = append(r.Removed, o.Removed...)
	r.RemovedDirs = append(r.RemovedDirs, o.RemovedDirs...)
	r.Errors = append(r.Errors, o.Errors...)
}

// New returns a Reconciler for root. Whitelist entries are destination-relative
// directory paths.
func New(root string, layout source.Layout, whitelist []string, dryRun bool) *Reconciler {
	wl := sets.New[string]()
	for _, w := range whitelist {
		w = filepath.Clean(strings.TrimSpace(w))
		if w != "" && w != "." {
			wl.Add(w)
		}
	}
	return &Reconciler{
		root:      root,
		layout:    layout,
		whitelist: wl,
		dryRun:    dryRun,
		logger:    slog.Default(),
		removed:   sets.New[string](),
	}
}

// WithLogger sets the logger used for debug output.
func (r *Reconciler) WithLogger(l *slog.Logger) *Reconciler {
	if l != nil {
		r.logger = l
	}
	return r
}

// Run performs stale-file removal followed by empty-directory pruning.
func (r *Reconciler) Run(expected source.Expected, entries cache.Entries) Result {
	res := r.RemoveStale(expected, entries)
	res.merge(r.PruneEmpty())
	return res
}

// RemoveStale deletes every file under the root that no expected source
// renders to and drops the cache entries of the sources that would have.
// Dot-files other than the passthrough destination are left alone.
// Failures are recorded and the walk continues.
func (r *Reconciler) RemoveStale(expected source.Expected, entries cache.Entries) Result {
	var res Result
	if !source.IsDir(r.root) {
		return res
	}

	_ = filepath.WalkDir(r.root, func(path string, d fs.DirEntry, walkErr error) error {
		rel, relErr := filepath.Rel(r.root, path)
		if relErr != nil {
			return nil
		}
		if walkErr != nil {
			res.Errors = append(res.Errors, perrors.FilesystemError("read", rel, walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if rel != "." && r.whitelist.Has(rel) {
				r.logger.Debug("Skipping whitelisted directory", logfields.Dir(rel))
				return fs.SkipDir
			}
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") && name != r.layout.PassthroughDest {
			return nil
		}
		if expected.Has(rel) {
			return nil
		}

		for _, src := range r.layout.SourceCandidates(rel) {
			entries.Delete(src)
		}
		if !r.dryRun {
			if err := os.Remove(path); err != nil {
				res.Errors = append(res.Errors, perrors.FilesystemError("remove", rel, err))
				return nil
			}
		}
		r.removed.Add(rel)
		res.Removed = append(res.Removed, rel)
		return nil
	})
	return res
}

// PruneEmpty removes directories that hold no files and no remaining
// subdirectories, deepest first. The root itself is never removed and
// whitelisted directories count as content.
func (r *Reconciler) PruneEmpty() Result {
	var res Result
	if !source.IsDir(r.root) {
		return res
	}
	r.prune(r.root, ".", &res)
	return res
}

func (r *Reconciler) prune(dir, rel string, res *Result) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		res.Errors = append(res.Errors, perrors.FilesystemError("read", rel, err))
		return false
	}

	empty := true
	for _, e := range entries {
		childRel := filepath.Join(rel, e.Name())
		if e.IsDir() {
			if r.whitelist.Has(childRel) || !r.prune(filepath.Join(dir, e.Name()), childRel, res) {
				empty = false
			}
			continue
		}
		if r.removed.Has(childRel) {
			continue
		}
		empty = false
	}

	if rel == "." || !empty {
		return false
	}
	if !r.dryRun {
		if err := os.Remove(dir); err != nil {
			res.Errors = append(res.Errors, perrors.FilesystemError("remove directory", rel, err))
			return false
		}
	}
	r.removed.Add(rel)
	res.RemovedDirs = append(res.RemovedDirs, rel)
	return true
}

// IsPermission reports whether a reconciliation error was caused by missing
// permissions.
func IsPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}

// String summarises a result for logs.
func (r Result) String() string {
	return fmt.Sprintf("%d files removed, %d directories pruned, %d errors",
		len(r.Removed), len(r.RemovedDirs), len(r.Errors))
}
