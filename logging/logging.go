// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Options struct {
	Level  string
	Format string
	// Writer defaults to stderr.
	Writer io.Writer
	Caller bool
}

// New builds a logger from options without touching global state.
func New(options *Options) (zerolog.Logger, error) {
	if options == nil {
		options = &Options{}
	}
	level := zerolog.InfoLevel
	if options.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(options.Level))
		if err != nil {
			return zerolog.Nop(), errors.Wrapf(err, "log level %q", options.Level)
		}
		level = l
	}
	w := options.Writer
	if w == nil {
		w = os.Stderr
	}
	switch options.Format {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON:
	default:
		return zerolog.Nop(), errors.Errorf("unknown log format %q", options.Format)
	}
	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if options.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

// Setup installs the logger built from options as the global logger and
// returns it.
func Setup(options *Options) (*zerolog.Logger, error) {
	logger, err := New(options)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(logger.GetLevel())
	log.Logger = logger
	return &log.Logger, nil
}
