package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/presto/internal/cache"
)

func touch(t *testing.T, root, rel string, mode os.FileMode) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(rel), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func TestLayout_OutputRelAndInverse(t *testing.T) {
	l := DefaultLayout()

	tests := []struct {
		src       string
		dest      string
		candidate string
	}{
		{"index.md", "index.html", "index.md"},
		{"blog/post.markdown", "blog/post.html", "blog/post.markdown"},
		{"blog/UPPER.MD", "blog/UPPER.html", "blog/UPPER.md"},
		{"sub/htaccess", "sub/.htaccess", "sub/htaccess"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.dest, l.OutputRel(tt.src))
			assert.Contains(t, l.SourceCandidates(tt.dest), tt.candidate)
		})
	}

	assert.Nil(t, l.SourceCandidates("images/logo.png"))
	assert.Nil(t, l.SourceCandidates(".html"))
	assert.Equal(t, []string{"a/b.markdown", "a/b.md"}, l.SourceCandidates("a/b.html"))
}

func TestIgnored(t *testing.T) {
	for _, name := range []string{".hidden.md", "#autosave.md#", "backup.md~", ""} {
		assert.True(t, Ignored(name), name)
	}
	assert.False(t, Ignored("index.md"))
	assert.False(t, Ignored("_draft.md"))
}

func TestDiscover_FiltersAndOrders(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "b.md", 0o644)
	touch(t, root, "a.markdown", 0o644)
	touch(t, root, "_draft.md", 0o644)
	touch(t, root, "notes.txt", 0o644)
	touch(t, root, ".secret.md", 0o644)
	touch(t, root, "page.md~", 0o644)
	touch(t, root, "dir/htaccess", 0o644)
	touch(t, root, "dir/c.md", 0o644)

	descs, collisions, err := Discover(root, DefaultLayout(), PrefixPolicy)
	require.NoError(t, err)
	assert.Empty(t, collisions)

	var rels []string
	for _, d := range descs {
		rels = append(rels, d.RelPath)
	}
	assert.Equal(t, []string{"_draft.md", "a.markdown", "b.md", "dir/c.md", "dir/htaccess"}, rels)

	byRel := map[string]Descriptor{}
	for _, d := range descs {
		byRel[d.RelPath] = d
	}
	assert.False(t, byRel["_draft.md"].Eligible)
	assert.True(t, byRel["b.md"].Eligible)
	assert.Equal(t, KindPassthrough, byRel["dir/htaccess"].Kind)
	assert.Equal(t, "dir/.htaccess", byRel["dir/htaccess"].OutRel)
	assert.Equal(t, filepath.Join(root, "dir", "c.md"), byRel["dir/c.md"].AbsPath)
}

func TestDiscover_ExecutablePolicy(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "on.md", 0o755)
	touch(t, root, "off.md", 0o644)

	descs, _, err := Discover(root, DefaultLayout(), ExecutablePolicy)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.False(t, descs[0].Eligible, descs[0].RelPath)
	assert.True(t, descs[1].Eligible, descs[1].RelPath)
}

func TestDiscover_ReportsCollisions(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "page.markdown", 0o644)
	touch(t, root, "page.md", 0o644)

	descs, collisions, err := Discover(root, DefaultLayout(), PrefixPolicy)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.Len(t, collisions, 1)
	assert.Equal(t, "page.markdown", descs[0].RelPath)
	assert.Equal(t, "page.md", collisions[0].RelPath)
	assert.Equal(t, "page.html", collisions[0].OutRel)
}

func TestClassify(t *testing.T) {
	eligible := Descriptor{RelPath: "a.md", Eligible: true}
	ineligible := Descriptor{RelPath: "_b.md", Eligible: false}

	t.Run("unchanged", func(t *testing.T) {
		e := cache.Entries{"a.md": "h"}
		assert.Equal(t, Unchanged, Classify(eligible, "h", e))
		assert.True(t, e.Matches("a.md", "h"))
	})
	t.Run("changed", func(t *testing.T) {
		e := cache.Entries{"a.md": "old"}
		assert.Equal(t, Publish, Classify(eligible, "h", e))
	})
	t.Run("sentinel forces publish", func(t *testing.T) {
		e := cache.Entries{"a.md": cache.StampWriteFailed}
		assert.Equal(t, Publish, Classify(eligible, "h", e))
	})
	t.Run("never seen", func(t *testing.T) {
		assert.Equal(t, Publish, Classify(eligible, "h", cache.Entries{}))
	})
	t.Run("ineligible drops stale entry", func(t *testing.T) {
		e := cache.Entries{"_b.md": "h"}
		assert.Equal(t, Ineligible, Classify(ineligible, "h2", e))
		_, ok := e.Get("_b.md")
		assert.False(t, ok)
	})
}

func TestExpected(t *testing.T) {
	e := Expected{}
	e.Add(Descriptor{RelPath: "a.md", OutRel: "a.html"})
	assert.True(t, e.Has("a.html"))
	assert.False(t, e.Has("b.html"))
}
