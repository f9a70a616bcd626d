package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/presto/internal/source"
	"git.home.luguber.info/inful/presto/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	PublishFlags `embed:""`

	Interval time.Duration `help:"Also republish on this interval; 0 disables" default:"0s"`
	Debounce time.Duration `help:"Quiet period after a change before republishing" default:"500ms"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	s, err := openSession(g, root, w.PublishFlags)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := watch.NewRunner(s.run)
	if err := runner.Run(ctx, watch.TriggerStartup); err != nil {
		if interrupted(err) {
			return nil
		}
		return err
	}

	watcher, err := watch.NewWatcher(runner, w.Debounce)
	if err != nil {
		return err
	}
	watcher.WithLogger(slog.Default())
	watcher.Ignore(s.cfg.OutputDir())
	watcher.Ignore(s.cfg.CacheFile())
	if mf := s.cfg.MetricsFile(); mf != "" {
		watcher.Ignore(mf)
	}
	if err := watcher.AddTree(s.cfg.MarkdownDir()); err != nil {
		return err
	}
	if err := watcher.AddFile(s.cfg.TemplateFile()); err != nil {
		return err
	}
	if pd := s.cfg.PartialsDir(); pd != s.cfg.MarkdownDir() && source.IsDir(pd) {
		if err := watcher.AddTree(pd); err != nil {
			return err
		}
	}

	if w.Interval > 0 {
		sched, err := watch.NewScheduler()
		if err != nil {
			return err
		}
		if _, err := sched.Every(ctx, w.Interval, runner); err != nil {
			return err
		}
		sched.Start()
		defer func() { _ = sched.Stop() }()
	}

	slog.Info("Watching for changes", slog.String("source", s.cfg.MarkdownDir()))
	return watcher.Run(ctx)
}
