// Package logger holds the process-wide logger every package shares.
package logger

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

var std = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "clarium",
})

// SetLevel applies a named level (debug, info, warn, error, fatal).
// Names that do not parse leave the level unchanged.
func SetLevel(name string) {
	lvl, err := log.ParseLevel(name)
	if err != nil {
		return
	}
	std.SetLevel(lvl)
}

func Debug(msg string, keyvals ...any) { std.Debug(msg, keyvals...) }

func Info(msg string, keyvals ...any) { std.Info(msg, keyvals...) }

func Warn(msg string, keyvals ...any) { std.Warn(msg, keyvals...) }

func Error(msg string, keyvals ...any) { std.Error(msg, keyvals...) }

// With returns a child logger carrying additional context keys.
func With(keyvals ...any) *log.Logger {
	return std.With(keyvals...)
}
