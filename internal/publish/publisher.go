// Package publish runs the incremental publish: it discovers sources,
// renders the ones whose content changed, copies passthrough control files,
// reconciles the destination tree and persists the cache.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.starlark.net/starlark"

	"git.home.luguber.info/inful/presto/internal/cache"
	"git.home.luguber.info/inful/presto/internal/config"
	"git.home.luguber.info/inful/presto/internal/console"
	"git.home.luguber.info/inful/presto/internal/directive"
	perrors "git.home.luguber.info/inful/presto/internal/errors"
	"git.home.luguber.info/inful/presto/internal/logfields"
	"git.home.luguber.info/inful/presto/internal/markdown"
	"git.home.luguber.info/inful/presto/internal/metrics"
	"git.home.luguber.info/inful/presto/internal/observability"
	"git.home.luguber.info/inful/presto/internal/reconcile"
	"git.home.luguber.info/inful/presto/internal/source"
)

// Options are the run-wide switches chosen on the command line.
type Options struct {
	UseEmpty    bool
	Debug       bool
	HideSkipped bool
	DryRun      bool
}

// Summary holds the counters reported once at the end of a run.
type Summary struct {
	RunID     string
	Published int
	Errors    int
	Skipped   int
	Removed   int
	Duration  time.Duration
}

// Outcome classifies the run for metrics.
func (s Summary) Outcome() string {
	if s.Errors > 0 {
		return "errors"
	}
	return "clean"
}

const (
	fileMode = 0o664
	dirMode  = 0o775

	// passthroughBump is added to a passthrough destination when it is first created.
	passthroughBump = 0o011
)

// Publisher performs publish runs for one configuration.
type Publisher struct {
	cfg      *config.Config
	opts     Options
	store    cache.Store
	console  *console.Console
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New returns a Publisher. A nil console prints to the process streams.
func New(cfg *config.Config, store cache.Store, con *console.Console, opts Options) *Publisher {
	if con == nil {
		con = console.New(os.Stdout, os.Stderr, console.WithHideSkipped(opts.HideSkipped))
	}
	return &Publisher{
		cfg:      cfg,
		opts:     opts,
		store:    store,
		console:  con,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// WithRecorder sets the metrics recorder.
func (p *Publisher) WithRecorder(r metrics.Recorder) *Publisher {
	if r != nil {
		p.recorder = r
	}
	return p
}

// WithLogger sets the structured logger.
func (p *Publisher) WithLogger(l *slog.Logger) *Publisher {
	if l != nil {
		p.logger = l
	}
	return p
}

// run carries the state of one publish run.
type run struct {
	*Publisher
	ctx      context.Context
	layout   source.Layout
	pipeline *Pipeline
	entries  cache.Entries
	expected source.Expected
	summary  Summary
}

// Run performs one complete publish. Per-document problems are counted in
// the summary; an error is returned only when the run could not start.
func (p *Publisher) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)

	template, err := os.ReadFile(p.cfg.TemplateFile())
	if err != nil {
		return Summary{RunID: runID}, perrors.Wrap(err, perrors.CategoryFileSystem, perrors.SeverityFatal, "cannot read template file").
			WithContext("path", p.cfg.TemplateFile())
	}

	layout := source.NewLayout(p.cfg)
	stageStart := time.Now()
	descs, collisions, err := source.Discover(p.cfg.MarkdownDir(), layout, source.PolicyFor(p.cfg.Presto.Eligibility))
	if err != nil {
		return Summary{RunID: runID}, perrors.Wrap(err, perrors.CategoryFileSystem, perrors.SeverityFatal, "cannot read source tree").
			WithContext("path", p.cfg.MarkdownDir())
	}
	p.recorder.ObserveStageDuration("discover", time.Since(stageStart))

	r := &run{
		Publisher: p,
		ctx:       ctx,
		layout:    layout,
		expected:  source.Expected{},
		summary:   Summary{RunID: runID},
	}
	r.entries = r.loadCache()
	r.pipeline, err = p.newPipeline(string(template))
	if err != nil {
		return r.summary, err
	}

	for _, c := range collisions {
		r.fail(c.RelPath, "%v", c)
	}

	observability.InfoContext(ctx, "Publishing sources",
		logfields.Dir(p.cfg.MarkdownDir()), logfields.Count(len(descs)))
	stageStart = time.Now()
	for _, desc := range descs {
		if err := ctx.Err(); err != nil {
			return r.summary, err
		}
		r.process(desc)
	}
	p.recorder.ObserveStageDuration("documents", time.Since(stageStart))

	stageStart = time.Now()
	r.reconcile()
	p.recorder.ObserveStageDuration("reconcile", time.Since(stageStart))

	r.saveCache()

	r.summary.Duration = time.Since(start)
	p.recorder.ObserveRunDuration(r.summary.Duration)
	p.recorder.IncRunOutcome(r.summary.Outcome())
	p.console.Summary(r.summary.Published, r.summary.Skipped, r.summary.Removed, r.summary.Errors)
	observability.InfoContext(ctx, "Publish finished",
		slog.Int("published", r.summary.Published),
		slog.Int("skipped", r.summary.Skipped),
		slog.Int("removed", r.summary.Removed),
		slog.Int("errors", r.summary.Errors),
		logfields.DurationMS(float64(r.summary.Duration.Milliseconds())))
	return r.summary, nil
}

func (p *Publisher) newPipeline(template string) (*Pipeline, error) {
	resolver := directive.NewResolver(p.cfg.MarkdownDir(), p.cfg.MarkdownDir())

	vars, err := directive.Globals(p.cfg.Variables)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryConfig, perrors.SeverityFatal, "invalid variables section")
	}
	helpers := directive.Helpers{
		SourceDir:   p.cfg.MarkdownDir(),
		PartialsDir: p.cfg.PartialsDir(),
		Resolver:    resolver,
		DateFormat:  p.cfg.Presto.DateFormat,
	}

	// Helpers shadow configuration variables of the same name.
	globals := make(starlark.StringDict, len(vars)+8)
	maps.Copy(globals, vars)
	maps.Copy(globals, helpers.Globals())
	resolver.SetPredeclared(globals)

	policy := directive.FailFast
	if p.opts.UseEmpty {
		policy = directive.UseEmpty
	}
	eval := directive.NewEvaluator(policy, resolver).WithLogger(p.logger)
	return NewPipeline(markdown.New(), eval, resolver, globals, template), nil
}

func (r *run) loadCache() cache.Entries {
	entries, err := r.store.Load(r.ctx)
	if err != nil {
		r.summary.Errors++
		r.console.Error("could not open cache file: %v", cause(err))
		observability.WarnContext(r.ctx, "Cache load failed, starting empty", logfields.Error(err))
		return cache.Entries{}
	}
	if entries == nil {
		entries = cache.Entries{}
	}
	return entries
}

func (r *run) saveCache() {
	if r.opts.DryRun {
		return
	}
	if err := r.store.Save(r.ctx, r.entries); err != nil {
		r.summary.Errors++
		r.console.Error("could not write cache file: %v", cause(err))
		observability.ErrorContext(r.ctx, "Cache save failed", logfields.Error(err))
	}
}

// process handles one discovered source.
func (r *run) process(desc source.Descriptor) {
	rel := desc.RelPath
	if desc.Eligible {
		r.expected.Add(desc)
	}

	hash, err := cache.ComputeHash(desc.AbsPath)
	if err != nil {
		if desc.Eligible {
			r.entries.Set(rel, cache.StampReadFailed)
		}
		r.fail(rel, "unable to read '%s': %v", rel, err)
		return
	}

	switch source.Classify(desc, hash, r.entries) {
	case source.Unchanged:
		r.recorder.IncDocument(metrics.ResultUnchanged)
		return
	case source.Ineligible:
		r.skip(rel)
		return
	}

	observability.DebugContext(r.ctx, "Source changed", logfields.Path(rel), logfields.Stamp(hash))
	if desc.Kind == source.KindPassthrough {
		r.copyPassthrough(desc, hash)
		return
	}

	text, err := os.ReadFile(desc.AbsPath)
	if err != nil {
		r.entries.Set(rel, cache.StampReadFailed)
		r.fail(rel, "unable to read '%s': %v", rel, err)
		return
	}

	out, err := r.pipeline.Render(desc, text, hash)
	if err != nil {
		r.renderFailed(desc, err)
		return
	}
	for _, derr := range out.Errors {
		r.directiveFailed(rel, derr)
	}

	dest := filepath.Join(r.cfg.OutputDir(), desc.OutRel)
	if !r.opts.DryRun {
		if err := r.makeDirs(filepath.Dir(dest)); err != nil {
			r.entries.Set(rel, cache.StampDirsFailed)
			r.fail(rel, "cannot make directories for '%s': %v", rel, err)
			return
		}
		if err := os.WriteFile(dest, []byte(out.HTML), fileMode); err != nil { // #nosec G306 -- published pages are world readable
			r.entries.Set(rel, cache.StampWriteFailed)
			r.fail(rel, "cannot write output file '%s': %v", rel, err)
			return
		}
	}
	r.entries.Set(rel, hash)
	r.published(rel)
}

func (r *run) renderFailed(desc source.Descriptor, err error) {
	rel := desc.RelPath
	stamp := cache.StampEvalFailed
	var f *Failure
	if errors.As(err, &f) {
		stamp = f.Stamp
	}
	r.entries.Set(rel, stamp)

	var derr *directive.Error
	if errors.As(err, &derr) {
		r.directiveFailed(rel, derr)
		// The failure is reported as an error and the document is also
		// listed as skipped; the summary counts it under both.
		r.skip(rel)
		return
	}
	if errors.Is(err, ErrMissingTitle) {
		r.fail(rel, "'%s' has no title in its metadata", rel)
		return
	}
	r.fail(rel, "unable to convert '%s': %v", rel, cause(err))
}

func (r *run) directiveFailed(rel string, derr *directive.Error) {
	r.recorder.IncDirectiveError(derr.Kind.Name())
	r.report(rel, "%s: %v", rel, derr)
	if r.opts.Debug {
		r.console.Detail(directive.Backtrace(derr))
	}
}

// copyPassthrough copies a control file byte for byte. A destination created
// by this call gets group and other execute bits added once.
func (r *run) copyPassthrough(desc source.Descriptor, hash string) {
	rel := desc.RelPath
	if r.opts.DryRun {
		r.entries.Set(rel, hash)
		r.published(rel)
		return
	}

	dest := filepath.Join(r.cfg.OutputDir(), desc.OutRel)
	if err := r.makeDirs(filepath.Dir(dest)); err != nil {
		r.entries.Set(rel, cache.StampDirsFailed)
		r.fail(rel, "cannot make directories for '%s': %v", rel, err)
		return
	}

	_, statErr := os.Stat(dest)
	created := errors.Is(statErr, os.ErrNotExist)

	data, err := os.ReadFile(desc.AbsPath)
	if err == nil {
		err = os.WriteFile(dest, data, fileMode) // #nosec G306 -- served by the web server
	}
	if err == nil && created {
		var info os.FileInfo
		if info, err = os.Stat(dest); err == nil {
			err = os.Chmod(dest, info.Mode().Perm()|passthroughBump)
		}
	}
	if err != nil {
		r.entries.Set(rel, cache.StampWriteFailed)
		r.fail(rel, "cannot write '%s': %v", desc.OutRel, err)
		return
	}
	if created {
		r.console.Info("created %s file '%s'", r.layout.PassthroughName, desc.OutRel)
	}
	r.entries.Set(rel, hash)
	r.published(rel)
}

// makeDirs creates dir and any missing parents, announcing each one created.
func (r *run) makeDirs(dir string) error {
	var missing []string
	for d := dir; !source.IsDir(d); d = filepath.Dir(d) {
		missing = append(missing, d)
		if filepath.Dir(d) == d {
			break
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return err
	}
	for i := len(missing) - 1; i >= 0; i-- {
		r.console.Info("created directory '%s'", missing[i])
	}
	return nil
}

func (r *run) reconcile() {
	rec := reconcile.New(r.cfg.OutputDir(), r.layout, r.cfg.Presto.Whitelist, r.opts.DryRun).WithLogger(r.logger)
	res := rec.Run(r.expected, r.entries)

	for _, rel := range res.Removed {
		r.summary.Removed++
		r.recorder.IncDocument(metrics.ResultRemoved)
		r.console.Removed(rel)
	}
	for _, rel := range res.RemovedDirs {
		r.console.Removed("empty directory " + rel)
	}
	for _, err := range res.Errors {
		r.summary.Errors++
		pe, ok := perrors.As(err)
		switch {
		case !ok:
			r.console.Error("%v", err)
		case reconcile.IsPermission(err):
			r.console.Error("insufficient permissions cleaning up '%v'", pe.Context["path"])
		default:
			r.console.Error("unable to clean up '%v': %v", pe.Context["path"], pe.Cause)
		}
	}
	observability.DebugContext(r.ctx, "Reconciled output tree", slog.String("result", res.String()))
}

// cause strips the classification wrapper for console output.
func cause(err error) error {
	if pe, ok := perrors.As(err); ok && pe.Cause != nil {
		return pe.Cause
	}
	return err
}

func (r *run) published(rel string) {
	r.summary.Published++
	r.recorder.IncDocument(metrics.ResultPublished)
	r.console.Published(rel)
}

func (r *run) skip(rel string) {
	r.summary.Skipped++
	r.recorder.IncDocument(metrics.ResultSkipped)
	r.console.Skipped(rel)
}

func (r *run) fail(rel, format string, args ...any) {
	r.recorder.IncDocument(metrics.ResultFailed)
	r.report(rel, format, args...)
}

// report counts and prints an error without classifying the document.
func (r *run) report(rel, format string, args ...any) {
	r.summary.Errors++
	r.console.Error(format, args...)
	observability.DebugContext(r.ctx, "Source failed", logfields.Path(rel), slog.String("detail", fmt.Sprintf(format, args...)))
}
