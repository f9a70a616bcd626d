// Package source discovers the documents of a source tree and decides, per
// file, whether the previous run's stamp lets it be skipped.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/presto/internal/cache"
	"git.home.luguber.info/inful/presto/internal/config"
)

// Kind distinguishes rendered documents from verbatim control files.
type Kind int

const (
	KindDocument Kind = iota + 1
	KindPassthrough
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindPassthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// Descriptor describes one discovered source file. Eligible is decided once
// when the file is discovered and never changes afterwards.
type Descriptor struct {
	RelPath  string
	AbsPath  string
	OutRel   string
	Eligible bool
	Kind     Kind
}

// Policy decides publish eligibility from a file-level marker.
type Policy func(path string, info fs.FileInfo) bool

// PrefixPolicy treats names starting with '_' as drafts that are not published.
func PrefixPolicy(_ string, info fs.FileInfo) bool {
	return !strings.HasPrefix(info.Name(), "_")
}

// ExecutablePolicy publishes files with the owner execute bit set.
func ExecutablePolicy(_ string, info fs.FileInfo) bool {
	return info.Mode().Perm()&0o100 != 0
}

// PolicyFor returns the eligibility policy selected in configuration.
func PolicyFor(mode config.EligibilityMode) Policy {
	if mode == config.EligibilityExecutable {
		return ExecutablePolicy
	}
	return PrefixPolicy
}

// Collision reports a source whose destination is already claimed by another.
type Collision struct {
	RelPath string
	Claimed string
	OutRel  string
}

func (c Collision) Error() string {
	return fmt.Sprintf("%s renders to %s, already produced by %s", c.RelPath, c.OutRel, c.Claimed)
}

// Discover walks root in lexical order and returns every source file. Sources
// colliding on the same destination are returned separately and excluded.
func Discover(root string, layout Layout, policy Policy) ([]Descriptor, []Collision, error) {
	var (
		out        []Descriptor
		collisions []Collision
		claimed    = map[string]string{}
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if Ignored(name) {
			return nil
		}
		kind, ok := layout.KindOf(name)
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		desc := Descriptor{
			RelPath:  rel,
			AbsPath:  path,
			OutRel:   layout.OutputRel(rel),
			Eligible: policy(path, info),
			Kind:     kind,
		}
		if prev, taken := claimed[desc.OutRel]; taken {
			collisions = append(collisions, Collision{RelPath: rel, Claimed: prev, OutRel: desc.OutRel})
			return nil
		}
		claimed[desc.OutRel] = rel
		out = append(out, desc)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, collisions, nil
}

// Decision is the outcome of classifying a source against the cache.
type Decision int

const (
	// Unchanged sources are skipped without side effects.
	Unchanged Decision = iota + 1
	// Ineligible sources changed but are not published; their entry is removed.
	Ineligible
	// Publish sources changed and go through the pipeline.
	Publish
)

func (d Decision) String() string {
	switch d {
	case Unchanged:
		return "unchanged"
	case Ineligible:
		return "ineligible"
	case Publish:
		return "publish"
	default:
		return "unknown"
	}
}

// Classify compares the freshly computed hash against the recorded stamp.
// Ineligible sources are never stamped, so any entry they still carry is
// stale and is removed whether or not the content changed.
func Classify(desc Descriptor, hash string, entries cache.Entries) Decision {
	if !desc.Eligible {
		entries.Delete(desc.RelPath)
		return Ineligible
	}
	if entries.Matches(desc.RelPath, hash) {
		return Unchanged
	}
	return Publish
}

// Expected is the set of destination paths the current run considers
// legitimate, mapped to the source each was derived from.
type Expected map[string]string

// Add records desc's destination.
func (e Expected) Add(desc Descriptor) { e[desc.OutRel] = desc.RelPath }

// Has reports whether destRel is legitimate.
func (e Expected) Has(destRel string) bool {
	_, ok := e[destRel]
	return ok
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
