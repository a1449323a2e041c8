// Package logging wires up the process-wide zerolog logger, matching the
// console-writer setup in the teacher's cmd/cryptorun/main.go.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds a zerolog.Logger writing human-readable console output when
// pretty is true, and newline-delimited JSON otherwise (the shape you want
// piped into a log aggregator), installs it as the package-level log.Logger
// that library code logs through, and returns it.
func New(levelName string, pretty bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
