package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/diagnosa/backend/internal/config"
)

// Init configures the global zerolog logger. Format "text" gives a console
// writer, anything else JSON.
func Init(cfg config.LogConfig) {
	Setup(os.Stderr, cfg)
}

// Setup is Init with an explicit output.
func Setup(out io.Writer, cfg config.LogConfig) {
	var writer io.Writer = out
	if cfg.Format == "text" {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
}

func parseLevel(raw string) zerolog.Level {
	switch raw {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
