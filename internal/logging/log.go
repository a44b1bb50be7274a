package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := newLogger(os.Stderr, defaultConfig(ProfileRuntime))
	current.Store(&l)
}

func apply(cfg Config) {
	l := newLogger(os.Stderr, cfg)
	current.Store(&l)
}

func newLogger(out io.Writer, cfg Config) zerolog.Logger {
	if cfg.Bypass {
		return zerolog.Nop()
	}
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

// Logger returns the configured logger for callers that want structured fields.
func Logger() *zerolog.Logger {
	return current.Load()
}

func Tracef(format string, args ...any) { Logger().Trace().Msgf(format, args...) }
func Debugf(format string, args ...any) { Logger().Debug().Msgf(format, args...) }
func Infof(format string, args ...any)  { Logger().Info().Msgf(format, args...) }
func Warnf(format string, args ...any)  { Logger().Warn().Msgf(format, args...) }
func Errf(format string, args ...any)   { Logger().Error().Msgf(format, args...) }

// Logf writes at info level without a level gate; used for test narration.
func Logf(format string, args ...any) { Logger().Log().Msgf(format, args...) }
