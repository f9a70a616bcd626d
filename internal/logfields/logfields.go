package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyPath       = "path"
	KeyDir        = "dir"
	KeyStamp      = "stamp"
	KeyDirective  = "directive"
	KeyStage      = "stage"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyTrigger    = "trigger"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Dir(d string) slog.Attr          { return slog.String(KeyDir, d) }
func Stamp(s string) slog.Attr        { return slog.String(KeyStamp, s) }
func Directive(kind string) slog.Attr { return slog.String(KeyDirective, kind) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Trigger(reason string) slog.Attr { return slog.String(KeyTrigger, reason) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
