package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyLoop       = "loop"
	KeyStage      = "stage"
	KeySource     = "source"
	KeyPlatform   = "platform"
	KeyFormat     = "format"
	KeySkill      = "skill"
	KeyDiscovery  = "discovery_id"
	KeyCreation   = "creation_id"
	KeyMode       = "mode"
	KeyDurationMS = "duration_ms"
	KeyCount      = "count"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Loop(name string) slog.Attr      { return slog.String(KeyLoop, name) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func Platform(p string) slog.Attr     { return slog.String(KeyPlatform, p) }
func Format(f string) slog.Attr       { return slog.String(KeyFormat, f) }
func Skill(name string) slog.Attr     { return slog.String(KeySkill, name) }
func DiscoveryID(id string) slog.Attr { return slog.String(KeyDiscovery, id) }
func CreationID(id string) slog.Attr  { return slog.String(KeyCreation, id) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
