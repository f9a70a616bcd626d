package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
		out:     os.Stderr,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if _, ok := As(err); !ok {
		return 1
	}
	return exitCodeForCategory(GetCategory(err))
}

// exitCodeForCategory maps error categories to exit codes.
func exitCodeForCategory(category ErrorCategory) int {
	switch category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryCache, CategoryDocument, CategoryDirective, CategoryFileSystem:
		return 11 // Publish error
	case CategoryRuntime:
		return 12 // Runtime error
	case CategoryInternal:
		return 10 // Internal error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if pe, ok := As(err); ok {
		return a.formatPresto(pe)
	}

	return fmt.Sprintf("error: %v", err)
}

// formatPresto formats a PrestoError for display.
func (a *CLIErrorAdapter) formatPresto(err *PrestoError) string {
	if a.verbose {
		return err.Error()
	}

	msg := err.Message
	if field, ok := err.Context["field"]; ok {
		msg = fmt.Sprintf("%s %q", msg, field)
	}

	switch err.Category {
	case CategoryConfig, CategoryValidation:
		return "error: " + msg
	default:
		return fmt.Sprintf("error: %s: %s", err.Category, msg)
	}
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(a.out, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if _, ok := As(err); !ok {
		return true
	}
	return IsCategory(err, CategoryInternal) || IsCategory(err, CategoryRuntime)
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if pe, ok := As(err); ok {
		level := a.slogLevelFromSeverity(pe.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(pe.Category)),
		}
		for k, v := range pe.Context {
			attrs = append(attrs, slog.Any(k, v))
		}
		if pe.Cause != nil {
			attrs = append(attrs, slog.String("cause", pe.Cause.Error()))
		}

		a.logger.LogAttrs(context.Background(), level, pe.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

// slogLevelFromSeverity converts PrestoError severity to slog level.
func (a *CLIErrorAdapter) slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
