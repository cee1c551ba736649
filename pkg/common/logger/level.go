package logger

import "log/slog"

// Level mirrors slog.Level so callers of this package don't need to import
// log/slog directly.
type Level int

const (
	LevelDebug Level = Level(slog.LevelDebug)
	LevelInfo  Level = Level(slog.LevelInfo)
	LevelWarn  Level = Level(slog.LevelWarn)
	LevelError Level = Level(slog.LevelError)
)
