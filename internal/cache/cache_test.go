package cache

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "git.home.luguber.info/inful/presto/internal/errors"
)

func TestEntries_Operations(t *testing.T) {
	e := Entries{}
	e.Set("b.md", "h2")
	e.Set("a.md", "h1")

	assert.True(t, e.Matches("a.md", "h1"))
	assert.False(t, e.Matches("a.md", "h2"))
	assert.False(t, e.Matches("c.md", ""))
	assert.Equal(t, []string{"a.md", "b.md"}, e.Paths())

	assert.True(t, e.Delete("a.md"))
	assert.False(t, e.Delete("a.md"))
	_, ok := e.Get("a.md")
	assert.False(t, ok)
}

func TestIsSentinel(t *testing.T) {
	for _, s := range []string{StampBadMetadata, StampDirsFailed, StampWriteFailed, StampEvalFailed, StampReadFailed} {
		assert.True(t, IsSentinel(s), s)
	}
	assert.False(t, IsSentinel(HashBytes([]byte("x"))))
}

func TestComputeHash_MatchesRawBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("title: x\n\nbody\n"), 0o600))

	h, err := ComputeHash(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("title: x\n\nbody\n")), h)
	assert.Len(t, h, 32)

	require.NoError(t, os.WriteFile(path, []byte("title: x\n\nbody \n"), 0o600))
	h2, err := ComputeHash(path)
	require.NoError(t, err)
	assert.NotEqual(t, h, h2, "whitespace changes must change the hash")
}

func TestTextStore_MissingFileLoadsEmpty(t *testing.T) {
	s := NewTextStore(filepath.Join(t.TempDir(), "cache"))
	entries, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTextStore_SaveLoadPreservesEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache")
	s := NewTextStore(path)

	in := Entries{"sub/page.md": "abc", "index.md": StampBadMetadata}
	require.NoError(t, s.Save(ctx, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "index.md\tbad-metadata\nsub/page.md\tabc\n", string(raw))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTextStore_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.WriteFile(path, []byte("good.md\th1\nno-tab-here\n\t\nother.md\t\nlast.md\th2\r\n"), 0o600))

	out, err := NewTextStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Entries{"good.md": "h1", "last.md": "h2"}, out)
}

func TestTextStore_UnreadableFileIsAnError(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	path := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.WriteFile(path, []byte("a.md\th\n"), 0o000))

	_, err := NewTextStore(path).Load(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryCache))
}

func TestTextStore_SaveFailureIsCacheError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "cache")

	err := NewTextStore(path).Save(context.Background(), Entries{"a.md": "h"})
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryCache))
	assert.False(t, perrors.IsFatal(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSQLiteStore_ClosedStoreIsCacheError(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Load(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryCache))

	err = s.Save(context.Background(), Entries{"a.md": "h"})
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryCache))
}

func TestSQLiteStore_SaveLoadReplaces(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(ctx, Entries{"a.md": "1", "b.md": "2"}))
	require.NoError(t, s.Save(ctx, Entries{"a.md": "3"}))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Entries{"a.md": "3"}, out)
}

func TestOpen_SelectsBackendByExtension(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, ".presto-cache"))
	require.NoError(t, err)
	_, isText := s.(*TextStore)
	assert.True(t, isText)
	require.NoError(t, s.Close())

	s, err = Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	_, isSQLite := s.(*SQLiteStore)
	assert.True(t, isSQLite)
	require.NoError(t, s.Close())
}
