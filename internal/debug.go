package internal

import "log/slog"

// LevelTrace is one notch below slog.LevelDebug, used for per-packet
// pipeline tracing that would otherwise drown out ordinary debug logs.
const LevelTrace slog.Level = slog.LevelDebug - 2
