package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyModule      = "module"
	KeyReference   = "reference"
	KeyTransformer = "transformer"
	KeyEntry       = "entry"
	KeyArtifact    = "artifact"
	KeyHook        = "hook"
	KeyPlugin      = "plugin"
	KeyGeneration  = "generation"
	KeyBuildID     = "build_id"
	KeyMode        = "mode"
	KeyStage       = "stage"
	KeyDurationMS  = "duration_ms"
	KeyPath        = "path"
	KeyCount       = "count"
	KeyClients     = "clients"
	KeyState       = "state"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Module(id string) slog.Attr      { return slog.String(KeyModule, id) }
func Reference(r string) slog.Attr    { return slog.String(KeyReference, r) }
func Transformer(n string) slog.Attr  { return slog.String(KeyTransformer, n) }
func Entry(name string) slog.Attr     { return slog.String(KeyEntry, name) }
func Artifact(name string) slog.Attr  { return slog.String(KeyArtifact, name) }
func Hook(h string) slog.Attr         { return slog.String(KeyHook, h) }
func Plugin(name string) slog.Attr    { return slog.String(KeyPlugin, name) }
func Generation(n uint64) slog.Attr   { return slog.Uint64(KeyGeneration, n) }
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Clients(n int) slog.Attr         { return slog.Int(KeyClients, n) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

// Since reports the elapsed time from start in milliseconds.
func Since(start time.Time) slog.Attr {
	return DurationMS(float64(time.Since(start).Microseconds()) / 1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
