// Package logging provides structured logging for the gateway.
//
// Grounded on the teacher's internal/logger/logger.go: a global zerolog
// logger configured once at startup, with per-component child loggers
// obtained by name rather than ad hoc log.Printf calls scattered through
// the codebase.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log defaults to a plain stderr writer so components that log before
// Initialize runs (unit tests, early config errors) don't panic on a
// zero-value Logger.
var Log = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Initialize configures the global logger. pretty selects a human-readable
// console writer for local development; the default is JSON for production.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "mudmesh-gateway").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

func Connection() *zerolog.Logger  { return component("connection") }
func Auth() *zerolog.Logger        { return component("auth") }
func Router() *zerolog.Logger      { return component("router") }
func Registry() *zerolog.Logger    { return component("registry") }
func Channel() *zerolog.Logger     { return component("channel") }
func Maintenance() *zerolog.Logger { return component("maintenance") }
func Admin() *zerolog.Logger       { return component("admin") }
