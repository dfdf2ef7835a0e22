package logger

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// log writes human-readable console output; every message carries a short
// component tag so startup and per-request lines stay greppable.
var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
	With().Timestamp().Logger()

// Info logs a neutral progress message for a component.
func Info(tag, msg string) {
	log.Info().Str("tag", tag).Msg(msg)
}

// Success logs a completed step.
func Success(tag, msg string) {
	log.Info().Str("tag", tag).Msg("✓ " + msg)
}

// Warn logs a recoverable problem.
func Warn(tag, msg string) {
	log.Warn().Str("tag", tag).Msg(msg)
}

// Error logs a failure.
func Error(tag, msg string) {
	log.Error().Str("tag", tag).Msg(msg)
}

// Banner prints the startup banner with the build version.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	fmt.Printf("\n  folio-optimizer %s\n  factor-model capital allocation service\n\n", version)
}

// Section prints a visual separator before a group of log lines.
func Section(title string) {
	fmt.Printf("\n── %s ──\n", title)
}

// Stats logs a single labeled value.
func Stats(label string, value any) {
	log.Info().Interface(label, value).Msg("stats")
}

// Server logs the listen address once the HTTP server is up.
func Server(addr string) {
	log.Info().Str("addr", addr).Msg("HTTP server listening")
}
