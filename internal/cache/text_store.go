package cache

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	perrors "git.home.luguber.info/inful/presto/internal/errors"
)

// TextStore keeps entries in a UTF-8 file with one "path<TAB>stamp" line per
// entry. Paths containing tabs or newlines are not supported.
type TextStore struct {
	path string
}

// NewTextStore creates a store backed by the file at path.
func NewTextStore(path string) *TextStore {
	return &TextStore{path: path}
}

// Path returns the backing file.
func (s *TextStore) Path() string { return s.path }

// Load reads all entries. Malformed lines are skipped.
func (s *TextStore) Load(_ context.Context) (Entries, error) {
	entries := Entries{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entries, nil
		}
		return entries, perrors.CacheIOError("load", s.path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		path, stamp, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		stamp = strings.TrimSpace(stamp)
		if path == "" || stamp == "" || strings.ContainsRune(stamp, '\t') {
			continue
		}
		entries[path] = stamp
	}
	if err := scanner.Err(); err != nil {
		// A malformed file degrades to an empty cache.
		return Entries{}, nil
	}
	return entries, nil
}

// Save writes all entries sorted by path, replacing the file atomically.
func (s *TextStore) Save(_ context.Context, entries Entries) error {
	if err := s.write(entries); err != nil {
		return perrors.CacheIOError("save", s.path, err)
	}
	return nil
}

func (s *TextStore) write(entries Entries) error {
	var buf bytes.Buffer
	for _, p := range entries.Paths() {
		fmt.Fprintf(&buf, "%s\t%s\n", p, entries[p])
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".presto-cache-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { // #nosec G302 -- cache is not secret
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Close implements Store.
func (s *TextStore) Close() error { return nil }
