package cmd

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	sentryslog "github.com/getsentry/sentry-go/slog"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func SetBuildVersion(v string, c string, d string) {
	version = v
	commit = c
	date = d
}

// Root represents the base command when called without any subcommands.
// Without a subcommand it builds the ipa with the default settings.
var Root = &cobra.Command{
	Use:   "debipa",
	Short: "Repackage a Debian iOS package as an ipa",
	Long: `debipa downloads a Debian package, extracts its data member and
packages the application directory it contains as an ipa.`,
	Args: cobra.NoArgs,
	RunE: runBuild,

	// Dont show CLI usage on error.
	SilenceUsage:  true,
	SilenceErrors: true,
}

var programLevel = new(slog.LevelVar)

func setLogLevel(l slog.Level) {
	programLevel.Set(l)
}

// newHandler sends records to w at programLevel and reports errors to
// sentry.
func newHandler(w io.Writer, color bool) slog.Handler {
	return slogmulti.Fanout(
		tint.NewHandler(w, &tint.Options{
			Level:      programLevel,
			TimeFormat: time.Kitchen,
			NoColor:    !color,
		}),
		sentryslog.Option{
			Level:     slog.LevelError,
			AddSource: true,
		}.NewSentryHandler(),
	)
}

func init() {
	slog.SetDefault(slog.New(newHandler(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))))

	Root.PersistentFlags().Bool("debug", false, "enable verbose debug logs")

	addBuildFlags(Root)
}
