// Package logging builds the process logger.
//
// Hook handlers run as short-lived subprocesses of an interactive tool, so
// stdout stays clean for hook responses. Diagnostics go to a rotating file
// under the state directory, with warnings and above mirrored to stderr.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger writing to the rotating file at path. level follows
// zerolog naming (debug, info, warn, error); unknown values mean info.
func New(path, level string) zerolog.Logger {
	fileSink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MiB per file
		MaxBackups: 3,
		MaxAge:     30, // days
	}

	stderrSink := zerolog.ConsoleWriter{Out: os.Stderr}
	out := zerolog.MultiLevelWriter(fileSink, &levelFilter{w: stderrSink, min: zerolog.WarnLevel})

	return zerolog.New(out).
		Level(parseLevel(level)).
		With().Timestamp().Logger()
}

// Nop returns a disabled logger for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// levelFilter drops events below min for one sink. The file sink keeps the
// full stream; only the stderr mirror is filtered.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f *levelFilter) Write(p []byte) (int, error) {
	// Without level information, pass through.
	return f.w.Write(p)
}

func (f *levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
