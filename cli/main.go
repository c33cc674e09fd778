package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/testlabtools/debipa/cmd"
	"github.com/testlabtools/debipa/errs"
)

func main() {
	l := slog.Default()

	// An empty DSN disables sending events.
	err := sentry.Init(sentry.ClientOptions{
		Dsn: os.Getenv("DEBIPA_SENTRY_DSN"),
	})
	if err != nil {
		l.Error("failed to initialize sentry", "err", err)
		os.Exit(1)
	}

	// Flush buffered events before the program terminates.
	defer func() {
		err := recover()

		if err != nil {
			sentry.CurrentHub().Recover(err)
			sentry.Flush(5 * time.Second)
			l.Error("failed to run", "err", err)
			os.Exit(1)
		}
	}()

	if err := cmd.Root.Execute(); err != nil {
		sentry.CaptureException(err)
		sentry.Flush(5 * time.Second)
		l.Error("failed to run", "kind", errs.Kind(err), "err", err)
		os.Exit(1)
	}
}
