// Package logger builds the structured slog logger shared by the bot process.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Proton-105/chatflow/pkg/config"
	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a slog.Logger with a mutable level and owned resources.
type Logger struct {
	*slog.Logger

	// Level can be changed at runtime, e.g. on config reload.
	Level *slog.LevelVar

	closers []func() error
}

// New builds the process logger from cfg. Records go to stdout, to an optional
// rotated file, and at error level to Sentry when it is enabled.
func New(cfg *config.Config) (*Logger, error) {
	if cfg == nil {
		return nil, errors.New("logger: nil config")
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Logger.Level))

	l := &Logger{Level: level}

	var out io.Writer = os.Stdout
	if cfg.Logger.File.Path != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.Logger.File.Path,
			MaxSize:    cfg.Logger.File.MaxSizeMB,
			MaxBackups: cfg.Logger.File.MaxBackups,
			MaxAge:     cfg.Logger.File.MaxAgeDays,
			Compress:   cfg.Logger.File.Compress,
		}
		l.closers = append(l.closers, rotated.Close)
		out = io.MultiWriter(os.Stdout, rotated)
	}

	handlers := []slog.Handler{newFormatHandler(cfg.Logger.Format, out, level)}

	if cfg.Sentry.Enabled {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: sentryEnvironment(cfg),
			SampleRate:  cfg.Sentry.SampleRate,
		})
		if err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
		l.closers = append(l.closers, func() error {
			sentry.Flush(2 * time.Second)
			return nil
		})

		handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = slogmulti.Fanout(handlers...)
	}

	handler = NewContextHandler(NewMaskingHandler(handler))
	l.Logger = slog.New(handler).With(slog.String("env", cfg.AppEnv))

	return l, nil
}

// Close flushes Sentry and closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// ParseLevel maps a config level name to a slog level. Unknown names yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newFormatHandler(format string, w io.Writer, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func sentryEnvironment(cfg *config.Config) string {
	if cfg.Sentry.Environment != "" {
		return cfg.Sentry.Environment
	}
	return cfg.AppEnv
}
