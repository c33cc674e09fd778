package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/testlabtools/debipa"
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Download a package and repackage its app as an ipa",
	Args:  cobra.NoArgs,
	RunE:  runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	setup := setupCommand(cmd, args)

	flags := cmd.Flags()

	attempts, err := flags.GetInt("attempts")
	if err != nil {
		return err
	}
	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return err
	}

	o := debipa.BuildOptions{
		URL:     cmd.Flag("url").Value.String(),
		DebFile: cmd.Flag("deb").Value.String(),
		Source:  cmd.Flag("source").Value.String(),
		Output:  cmd.Flag("output").Value.String(),
		WorkDir: cmd.Flag("workdir").Value.String(),
		App:     cmd.Flag("app").Value.String(),

		ForceDownload: cmd.Flag("force-download").Value.String() == "true",
		KeepWorkDir:   cmd.Flag("keep-workdir").Value.String() == "true",
		NoZstd:        cmd.Flag("no-zstd").Value.String() == "true",

		Attempts: attempts,
		Timeout:  timeout,
		Progress: progressOutput(),
	}

	return debipa.Build(cmd.Context(), setup.log, setup.env, o)
}

// progressOutput returns stderr if it is a terminal.
func progressOutput() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return os.Stderr
	}
	return nil
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", "package URL (env DEBIPA_URL)")
	cmd.Flags().String("deb", "", "path the package is downloaded to (env DEBIPA_DEB)")
	cmd.Flags().String("source", "", "local package to use instead of downloading")
	cmd.Flags().StringP("output", "o", "", "path of the ipa (env DEBIPA_OUTPUT)")
	cmd.Flags().String("workdir", "", "scratch directory, removed after the build (env DEBIPA_WORKDIR)")
	cmd.Flags().String("app", "", "name of the application directory (env DEBIPA_APP)")
	cmd.Flags().Bool("force-download", false, "download the package even if it exists")
	cmd.Flags().Bool("keep-workdir", false, "keep the scratch directory after the build")
	cmd.Flags().Int("attempts", 1, "number of download attempts (1 disables retries)")
	cmd.Flags().Duration("timeout", debipa.DefaultTimeout, "download timeout")
	cmd.Flags().Bool("no-zstd", false, "disable zstd decompression")
}

func init() {
	Root.AddCommand(buildCmd)

	addBuildFlags(buildCmd)
}
