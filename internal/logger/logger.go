package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Log is the global logger instance
var Log *slog.Logger

// Init installs the global logger.
// Development: Text format with Debug level
// Production: JSON format with Info level
// With a Sentry DSN, errors are also reported to Sentry.
func Init(isDev bool, sentryDSN string) {
	Log = slog.New(newHandler(os.Stdout, isDev, sentryDSN))
	slog.SetDefault(Log)
}

func newHandler(w io.Writer, isDev bool, sentryDSN string) slog.Handler {
	var handlers []slog.Handler

	if isDev {
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	if sentryDSN != "" {
		environment := "production"
		if isDev {
			environment = "development"
		}
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: environment,
		})
		if err == nil {
			handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
		} else {
			slog.New(handlers[0]).Warn("sentry disabled", "error", err)
		}
	}

	if len(handlers) == 1 {
		return handlers[0]
	}
	return slogmulti.Fanout(handlers...)
}

// Flush waits for buffered Sentry events. It is a no-op without Sentry.
func Flush() {
	sentry.Flush(2 * time.Second)
}
