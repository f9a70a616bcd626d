package publish

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/presto/internal/cache"
	"git.home.luguber.info/inful/presto/internal/config"
	"git.home.luguber.info/inful/presto/internal/console"
	"git.home.luguber.info/inful/presto/internal/metrics"
)

const testConfig = `presto:
  markdown_dir: src
  output_dir: out
  template_file: template.html
  cache_file: cache.txt
  partials_dir: partials
  whitelist: static
variables:
  site_name: Example
`

const testTemplate = "<title>{= title =} | {= site_name =}</title>\n{= content =}"

type testSite struct {
	dir    string
	out    bytes.Buffer
	errOut bytes.Buffer
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	s := &testSite{dir: t.TempDir()}
	s.write(t, "presto.yaml", testConfig)
	s.write(t, "template.html", testTemplate)
	require.NoError(t, os.MkdirAll(filepath.Join(s.dir, "src"), 0o755))
	return s
}

func (s *testSite) path(rel string) string { return filepath.Join(s.dir, rel) }

func (s *testSite) write(t *testing.T, rel, content string) {
	t.Helper()
	p := s.path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (s *testSite) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(s.path(rel))
	require.NoError(t, err)
	return string(data)
}

func (s *testSite) entries(t *testing.T) cache.Entries {
	t.Helper()
	entries, err := cache.NewTextStore(s.path("cache.txt")).Load(context.Background())
	require.NoError(t, err)
	return entries
}

func (s *testSite) run(t *testing.T, opts Options) Summary {
	t.Helper()
	return s.runWith(t, opts, nil)
}

func (s *testSite) runWith(t *testing.T, opts Options, rec metrics.Recorder) Summary {
	t.Helper()
	cfg, err := config.Load(s.path("presto.yaml"))
	require.NoError(t, err)
	store, err := cache.Open(cfg.CacheFile())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	s.out.Reset()
	s.errOut.Reset()
	con := console.New(&s.out, &s.errOut, console.WithColor(false), console.WithHideSkipped(opts.HideSkipped))
	sum, err := New(cfg, store, con, opts).WithRecorder(rec).Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, sum.RunID)
	return sum
}

func TestRun_PublishesAndIsIdempotent(t *testing.T) {
	s := newTestSite(t)
	src := "Title: Home\n\n# Welcome to {= site_name =}\n\nTwo: {~ 1 + 1 ~} and {= 1 + 1 =}.\n"
	s.write(t, "src/index.md", src)

	sum := s.run(t, Options{})
	assert.Equal(t, 1, sum.Published)
	assert.Zero(t, sum.Errors)
	assert.Zero(t, sum.Removed)

	page := s.read(t, "out/index.html")
	assert.Contains(t, page, "<title>Home | Example</title>")
	assert.Contains(t, page, `<h1 id="welcome-to-example">Welcome to Example</h1>`)
	assert.Contains(t, page, "Two: 2 and 2.")
	assert.Equal(t, cache.Entries{"index.md": cache.HashBytes([]byte(src))}, s.entries(t))
	assert.Contains(t, s.out.String(), "[published] index.md")
	assert.Contains(t, s.out.String(), "1 files published, 0 files skipped, 0 files removed; 0 errors")

	before, err := os.Stat(s.path("out/index.html"))
	require.NoError(t, err)

	sum = s.run(t, Options{})
	assert.Equal(t, Summary{RunID: sum.RunID, Duration: sum.Duration}, sum)
	after, err := os.Stat(s.path("out/index.html"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.Equal(t, page, s.read(t, "out/index.html"))
}

func TestRun_RepublishesChangedSource(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/a.md", "Title: A\n\nfirst\n")
	s.run(t, Options{})

	s.write(t, "src/a.md", "Title: A\n\nsecond\n")
	sum := s.run(t, Options{})
	assert.Equal(t, 1, sum.Published)
	assert.Contains(t, s.read(t, "out/a.html"), "second")
}

func TestRun_FailFastSkipsDocument(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/bad.md", "Title: Bad\n\nBefore {= missing =} after.\n")

	sum := s.run(t, Options{})
	assert.Equal(t, 0, sum.Published)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 1, sum.Skipped)
	assert.NoFileExists(t, s.path("out/bad.html"))
	assert.Equal(t, cache.Entries{"bad.md": cache.StampEvalFailed}, s.entries(t))
	assert.Contains(t, s.errOut.String(), "error: bad.md: error occurred evaluating {= ... =}")

	// The sentinel forces a retry even though the file did not change.
	sum = s.run(t, Options{})
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 1, sum.Skipped)
}

func TestRun_UseEmptyPublishesWithErrors(t *testing.T) {
	s := newTestSite(t)
	src := "Title: Bad\n\nBefore {= missing =} after.\n"
	s.write(t, "src/bad.md", src)

	sum := s.run(t, Options{UseEmpty: true})
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, 1, sum.Errors)
	assert.Zero(t, sum.Skipped)
	assert.Contains(t, s.read(t, "out/bad.html"), "<p>Before  after.</p>")
	assert.Equal(t, cache.HashBytes([]byte(src)), s.entries(t)["bad.md"])
}

func TestRun_DebugPrintsBacktrace(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/bad.md", "Title: Bad\n\n{! def f():\n    fail('deep')\nf()\n!}\n")

	sum := s.run(t, Options{Debug: true})
	assert.Equal(t, 1, sum.Errors)
	assert.Contains(t, s.errOut.String(), "Traceback")
}

func TestRun_MissingTitle(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/untitled.md", "Author: x\n\nbody\n")

	sum := s.run(t, Options{})
	assert.Equal(t, 1, sum.Errors)
	assert.Zero(t, sum.Skipped)
	assert.Equal(t, cache.Entries{"untitled.md": cache.StampBadMetadata}, s.entries(t))
	assert.Contains(t, s.errOut.String(), "'untitled.md' has no title")
}

func TestRun_IneligibleNeverPublished(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/_draft.md", "Title: Draft\n\nsecret\n")
	s.write(t, "cache.txt", "_draft.md\tstale\n")

	for i := 0; i < 2; i++ {
		sum := s.run(t, Options{})
		assert.Zero(t, sum.Published)
		assert.Equal(t, 1, sum.Skipped)
		assert.NoFileExists(t, s.path("out/_draft.html"))
		assert.Empty(t, s.entries(t))
	}

	s.run(t, Options{HideSkipped: true})
	assert.NotContains(t, s.out.String(), "[skipped]")
}

func TestRun_HelpersAndModules(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/_intro.md", "Title: Intro\n\nIntro *text*.\n")
	s.write(t, "partials/nav.html", "<nav>n</nav>\n")
	s.write(t, "src/lib/util.star", "def shout(s):\n    return s.upper() + '!'\n")
	s.write(t, "src/index.md", "Title: Home\nPath: lib\n\n{= draft(\"_intro.md\") =}\n\n{= partial(\"nav.html\") =}\n\n{! load('util.star', 'shout') !}{= shout('hi') =}\n")

	sum := s.run(t, Options{})
	assert.Zero(t, sum.Errors, s.errOut.String())
	page := s.read(t, "out/index.html")
	assert.Contains(t, page, "Intro <em>text</em>.")
	assert.Contains(t, page, "<nav>n</nav>")
	assert.Contains(t, page, "HI!")
}

func TestRun_ReconcilesDestination(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/a.md", "Title: A\n\na\n")
	s.write(t, "out/stale.html", "old")
	s.write(t, "out/old/gone.html", "old")
	s.write(t, "out/static/site.css", "body{}")

	sum := s.run(t, Options{})
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, 2, sum.Removed)
	assert.NoFileExists(t, s.path("out/stale.html"))
	assert.NoDirExists(t, s.path("out/old"))
	assert.FileExists(t, s.path("out/static/site.css"))
	assert.FileExists(t, s.path("out/a.html"))

	require.NoError(t, os.Remove(s.path("src/a.md")))
	sum = s.run(t, Options{})
	assert.Equal(t, 1, sum.Removed)
	assert.NoFileExists(t, s.path("out/a.html"))
	assert.Empty(t, s.entries(t))
	assert.DirExists(t, s.path("out"))
}

func TestRun_ReportsPermissionFailuresDuringCleanup(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	site := newTestSite(t)
	site.write(t, "out/locked/stale.html", "old")
	locked := site.path("out/locked")
	require.NoError(t, os.Chmod(locked, 0o555))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	sum := site.run(t, Options{})
	assert.Equal(t, 1, sum.Errors)
	assert.Contains(t, site.errOut.String(), "insufficient permissions cleaning up 'locked/stale.html'")
	assert.FileExists(t, filepath.Join(locked, "stale.html"))
}

func TestRun_CacheWriteFailureIsReported(t *testing.T) {
	site := newTestSite(t)
	site.write(t, "presto.yaml", strings.Replace(testConfig, "cache_file: cache.txt", "cache_file: missing/cache.txt", 1))
	site.write(t, "src/a.md", "Title: A\n\nbody\n")

	sum := site.run(t, Options{})
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, 1, sum.Errors)
	assert.Contains(t, site.errOut.String(), "could not write cache file: ")
	assert.NotContains(t, site.errOut.String(), "cache (warning)")
}

func TestRun_PassthroughCopy(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/htaccess", "Deny from all\n")

	sum := s.run(t, Options{})
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, "Deny from all\n", s.read(t, "out/.htaccess"))
	info, err := os.Stat(s.path("out/.htaccess"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o011), info.Mode().Perm()&0o011)
	assert.Contains(t, s.out.String(), "created htaccess file '.htaccess'")

	// The permission bump is applied only when the file is first created.
	require.NoError(t, os.Chmod(s.path("out/.htaccess"), 0o644))
	s.write(t, "src/htaccess", "Allow from all\n")
	sum = s.run(t, Options{})
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, "Allow from all\n", s.read(t, "out/.htaccess"))
	info, err = os.Stat(s.path("out/.htaccess"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/a.md", "Title: A\n\na\n")
	s.write(t, "out/stale.html", "old")

	sum := s.run(t, Options{DryRun: true})
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, 1, sum.Removed)
	assert.NoFileExists(t, s.path("out/a.html"))
	assert.FileExists(t, s.path("out/stale.html"))
	assert.NoFileExists(t, s.path("cache.txt"))
}

func TestRun_CollidingSourcesReported(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/page.markdown", "Title: One\n\none\n")
	s.write(t, "src/page.md", "Title: Two\n\ntwo\n")

	sum := s.run(t, Options{})
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, 1, sum.Errors)
	assert.Contains(t, s.read(t, "out/page.html"), "one")
}

func TestRun_MissingTemplateIsFatal(t *testing.T) {
	s := newTestSite(t)
	require.NoError(t, os.Remove(s.path("template.html")))

	cfg, err := config.Load(s.path("presto.yaml"))
	require.NoError(t, err)
	_, err = New(cfg, cache.NewTextStore(cfg.CacheFile()), console.New(&s.out, &s.errOut), Options{}).Run(context.Background())
	require.Error(t, err)
}

type countingRecorder struct {
	metrics.NoopRecorder
	documents map[metrics.ResultLabel]int
	runs      int
}

func (c *countingRecorder) IncDocument(r metrics.ResultLabel) { c.documents[r]++ }
func (c *countingRecorder) ObserveRunDuration(time.Duration)  { c.runs++ }

func TestRun_RecordsMetrics(t *testing.T) {
	s := newTestSite(t)
	s.write(t, "src/a.md", "Title: A\n\na\n")
	s.write(t, "src/_b.md", "Title: B\n\nb\n")

	rec := &countingRecorder{documents: map[metrics.ResultLabel]int{}}
	s.runWith(t, Options{}, rec)
	s.runWith(t, Options{}, rec)

	assert.Equal(t, 1, rec.documents[metrics.ResultPublished])
	assert.Equal(t, 1, rec.documents[metrics.ResultUnchanged])
	assert.Equal(t, 2, rec.documents[metrics.ResultSkipped])
	assert.Equal(t, 2, rec.runs)
}
