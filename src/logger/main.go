package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/dusted-go/logging/prettylog"
)

type Options struct {
	Debug   bool
	NoColor bool
}

// New builds a prettylog logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	logLevel := slog.LevelInfo

	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	prettyOpts := []prettylog.Option{prettylog.WithDestinationWriter(w)}
	if !opts.NoColor {
		prettyOpts = append(prettyOpts, prettylog.WithColor())
	}

	return slog.New(prettylog.New(
		&slog.HandlerOptions{
			Level:     logLevel,
			AddSource: opts.Debug,
		},
		prettyOpts...,
	))
}

func PrepareLogger(opts Options) {
	slog.SetDefault(New(os.Stderr, opts))
}
