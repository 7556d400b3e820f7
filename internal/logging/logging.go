// Package logging builds the *log.Logger handed to every component.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where log lines go. With no File the logger writes to
// Console only; with a File lines also go to a size-rotated file.
type Options struct {
	Console    io.Writer
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger and the closer for any file it opened. Console
// defaults to stderr; pass io.Discard to log to the file only.
func New(opts Options) (*log.Logger, io.Closer) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	if opts.File == "" {
		return log.New(console, "", log.LstdFlags|log.Lmicroseconds), nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	return log.New(io.MultiWriter(console, file), "", log.LstdFlags|log.Lmicroseconds), file
}
