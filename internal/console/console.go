// Package console prints the per-file progress lines and the run summary
// that operators read on the terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Console writes tagged status lines. Progress goes to out, errors to errOut.
type Console struct {
	mu          sync.Mutex
	out         io.Writer
	errOut      io.Writer
	hideSkipped bool

	published lipgloss.Style
	removed   lipgloss.Style
	skipped   lipgloss.Style
	errTag    lipgloss.Style
}

// Option configures a Console.
type Option func(*config)

type config struct {
	color       bool
	hideSkipped bool
}

// WithColor forces ANSI colors on or off.
func WithColor(on bool) Option {
	return func(c *config) { c.color = on }
}

// WithHideSkipped suppresses [skipped] lines.
func WithHideSkipped(hide bool) Option {
	return func(c *config) { c.hideSkipped = hide }
}

// New returns a Console writing to out and errOut.
func New(out, errOut io.Writer, opts ...Option) *Console {
	cfg := config{color: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	profile := termenv.Ascii
	if cfg.color {
		profile = termenv.ANSI
	}
	r := lipgloss.NewRenderer(out, termenv.WithProfile(profile))
	r.SetColorProfile(profile)

	return &Console{
		out:         out,
		errOut:      errOut,
		hideSkipped: cfg.hideSkipped,
		published:   r.NewStyle().Foreground(lipgloss.Color("2")),
		removed:     r.NewStyle().Foreground(lipgloss.Color("5")),
		skipped:     r.NewStyle().Foreground(lipgloss.Color("6")),
		errTag:      r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Published reports a written output file.
func (c *Console) Published(path string) {
	c.line(c.out, c.published.Render("[published]"), path)
}

// Removed reports a deleted output file or directory.
func (c *Console) Removed(path string) {
	c.line(c.out, c.removed.Render("[removed]"), path)
}

// Skipped reports a source that was not published.
func (c *Console) Skipped(path string) {
	if c.hideSkipped {
		return
	}
	c.line(c.out, c.skipped.Render("[skipped]"), path)
}

// Info prints an untagged message.
func (c *Console) Info(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}

// Error reports a failure on the error stream.
func (c *Console) Error(format string, args ...any) {
	c.line(c.errOut, c.errTag.Render("error:"), fmt.Sprintf(format, args...))
}

// Detail prints supplementary text, such as a backtrace, on the error stream.
func (c *Console) Detail(text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.errOut, text)
}

// Summary prints the one-line run summary.
func (c *Console) Summary(published, skipped, removed, errors int) {
	c.Info("%d files published, %d files skipped, %d files removed; %d errors",
		published, skipped, removed, errors)
}

func (c *Console) line(w io.Writer, tag, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(w, tag, msg)
}
