package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Logger = zerolog.Nop()

func Init(serviceName, level string) {
	var logLevel zerolog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info", "":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)
	Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

func WithLinkID(linkID string) *zerolog.Logger {
	l := Logger.With().Str("link_id", linkID).Logger()
	return &l
}

func WithBatchID(batchID string) *zerolog.Logger {
	l := Logger.With().Str("batch_id", batchID).Logger()
	return &l
}

func WithCorrelationID(correlationID string) *zerolog.Logger {
	l := Logger.With().Str("correlation_id", correlationID).Logger()
	return &l
}
