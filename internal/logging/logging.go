// Package logging composes the standard logger's output: stderr, an
// in-memory tail for the web UI, and an optional rotating file.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// File enables a rotating log file when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Output is the installed writer. Close flushes and closes the log file.
type Output struct {
	io.Writer
	file *lumberjack.Logger
}

func (o *Output) Close() error {
	if o == nil || o.file == nil {
		return nil
	}
	return o.file.Close()
}

// Setup points the standard logger at stderr, each extra writer, and the
// rotating file if configured.
func Setup(cfg Config, extra ...io.Writer) *Output {
	out := build(cfg, os.Stderr, extra...)
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return out
}

func build(cfg Config, console io.Writer, extra ...io.Writer) *Output {
	writers := []io.Writer{console}
	for _, w := range extra {
		if w != nil {
			writers = append(writers, w)
		}
	}
	o := &Output{}
	if path := strings.TrimSpace(cfg.File); path != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		o.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		writers = append(writers, o.file)
	}
	o.Writer = io.MultiWriter(writers...)
	return o
}
