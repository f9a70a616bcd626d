// Package commands holds the presto command-line interface.
package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/muesli/termenv"

	"git.home.luguber.info/inful/presto/internal/cache"
	"git.home.luguber.info/inful/presto/internal/config"
	"git.home.luguber.info/inful/presto/internal/console"
	"git.home.luguber.info/inful/presto/internal/logfields"
	"git.home.luguber.info/inful/presto/internal/metrics"
	"git.home.luguber.info/inful/presto/internal/publish"
)

// Global carries the process streams into commands.
type Global struct {
	Stdout io.Writer
	Stderr io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"presto.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Publish PublishCmd `cmd:"" default:"withargs" help:"Publish changed documents and clean up the output directory"`
	Watch   WatchCmd   `cmd:"" help:"Publish, then republish whenever sources change"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// PublishFlags are shared by the publish and watch commands.
type PublishFlags struct {
	UseEmpty    bool `short:"e" name:"use-empty" help:"Replace failing directives with empty text instead of skipping the document"`
	Debug       bool `help:"Print a backtrace for every directive error"`
	HideSkipped bool `name:"hide-skipped" help:"Do not report skipped sources"`
	DryRun      bool `short:"n" name:"dry-run" help:"Report what would change without writing anything"`
	NoColor     bool `name:"no-color" help:"Disable colored output"`
}

func (f PublishFlags) options() publish.Options {
	return publish.Options{
		UseEmpty:    f.UseEmpty,
		Debug:       f.Debug,
		HideSkipped: f.HideSkipped,
		DryRun:      f.DryRun,
	}
}

// session bundles a publisher with the resources it holds open.
type session struct {
	cfg       *config.Config
	publisher *publish.Publisher
	store     cache.Store
	recorder  *metrics.PrometheusRecorder
}

func openSession(g *Global, root *CLI, flags PublishFlags) (*session, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	store, err := cache.Open(cfg.CacheFile())
	if err != nil {
		return nil, err
	}

	color := !flags.NoColor
	if f, ok := g.Stdout.(*os.File); ok && color {
		color = termenv.NewOutput(f).EnvColorProfile() != termenv.Ascii
	}
	con := console.New(g.Stdout, g.Stderr,
		console.WithColor(color),
		console.WithHideSkipped(flags.HideSkipped))

	s := &session{
		cfg:       cfg,
		store:     store,
		publisher: publish.New(cfg, store, con, flags.options()).WithLogger(slog.Default()),
	}
	if cfg.MetricsFile() != "" {
		s.recorder = metrics.NewPrometheusRecorder(nil)
		s.publisher.WithRecorder(s.recorder)
	}
	return s, nil
}

// run performs one publish and refreshes the metrics textfile.
func (s *session) run(ctx context.Context) error {
	if _, err := s.publisher.Run(ctx); err != nil {
		return err
	}
	if s.recorder != nil {
		if err := s.recorder.WriteTextfile(s.cfg.MetricsFile()); err != nil {
			slog.Warn("Failed to write metrics file", logfields.Path(s.cfg.MetricsFile()), logfields.Error(err))
		}
	}
	return nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// interrupted reports whether err only reflects a cancelled run.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
