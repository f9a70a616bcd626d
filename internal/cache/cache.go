// Package cache persists the mapping from a document's source-relative path to
// the stamp recorded for it by the previous run.
//
// A stamp is either the hex content hash of the source file or one of the
// sentinel failure markers below. Sentinels never equal a content hash, so a
// document carrying one is always reprocessed on the next run.
package cache

import (
	"context"
	"crypto/md5" // #nosec G501 -- change detection only, compatible with existing cache files
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sentinel stamps recorded when processing failed after the hash was computed.
const (
	StampBadMetadata = "bad-metadata"
	StampDirsFailed  = "dirs-failed"
	StampWriteFailed = "write-failed"
	StampEvalFailed  = "eval-failed"
	StampReadFailed  = "read-failed"
)

// IsSentinel reports whether stamp is one of the failure markers.
func IsSentinel(stamp string) bool {
	switch stamp {
	case StampBadMetadata, StampDirsFailed, StampWriteFailed, StampEvalFailed, StampReadFailed:
		return true
	}
	return false
}

// Entries maps a source-relative path to its stamp.
type Entries map[string]string

// Get returns the stamp for path and whether one was recorded.
func (e Entries) Get(path string) (string, bool) {
	s, ok := e[path]
	return s, ok
}

// Set records stamp for path.
func (e Entries) Set(path, stamp string) { e[path] = stamp }

// Delete drops the entry for path if present and reports whether it existed.
func (e Entries) Delete(path string) bool {
	if _, ok := e[path]; !ok {
		return false
	}
	delete(e, path)
	return true
}

// Matches reports whether path is recorded with exactly this stamp.
func (e Entries) Matches(path, stamp string) bool {
	s, ok := e[path]
	return ok && s == stamp
}

// Paths returns the recorded paths in lexical order.
func (e Entries) Paths() []string {
	out := make([]string, 0, len(e))
	for p := range e {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Store loads and persists cache entries.
//
// Load on a missing or malformed store yields an empty mapping, not an error;
// I/O failures such as permission problems are returned to the caller.
type Store interface {
	Load(ctx context.Context) (Entries, error)
	Save(ctx context.Context, entries Entries) error
	Close() error
}

// Open returns the store backend matching the file extension of path:
// ".db", ".sqlite" and ".sqlite3" select SQLite, anything else the text format.
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteStore(path)
	default:
		return NewTextStore(path), nil
	}
}

// ComputeHash returns the hex MD5 digest of the file's raw bytes.
func ComputeHash(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the source tree walk
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New() // #nosec G401
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex MD5 digest of data.
func HashBytes(data []byte) string {
	sum := md5.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:])
}
