// Package logging routes the standard logger to stdout and, when a file is
// configured, to a size-rotated log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dg645-sim/internal/config"
)

// Setup configures the standard logger. The returned closer releases the
// log file and is safe to call when no file is configured.
func Setup(cfg config.LoggingConfig) io.Closer {
	return setup(cfg, os.Stdout)
}

func setup(cfg config.LoggingConfig, console io.Writer) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if cfg.File == "" {
		log.SetOutput(console)
		return nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(console, rotator))
	return rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
