package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/testlabtools/debipa"
)

type setup struct {
	env map[string]string
	log *slog.Logger
}

func setupCommand(cmd *cobra.Command, args []string) setup {
	env := getEnv(cmd.Context())

	debug := cmd.Flag("debug").Value.String() == "true"
	if !debug {
		debug = env["DEBIPA_DEBUG"] != ""
	}

	if debug {
		setLogLevel(slog.LevelDebug)
	}

	l := slog.Default()

	var flags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		val := flag.Value.String()
		if flag.Name == "url" {
			val = debipa.MaskURL(val)
		}
		flags = append(flags, fmt.Sprintf("%s=%s", flag.Name, val))
	})

	l.Info(fmt.Sprintf("start %s command", cmd.Name()),
		"args", args,
		"flags", flags,
		"version", version,
		"commit", commit,
		"built", date,
	)

	return setup{
		env: env,
		log: l,
	}
}
