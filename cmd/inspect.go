package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/testlabtools/debipa"
	"github.com/testlabtools/debipa/decompress"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <file.deb>",
	Short: "List the members of a package and detect its data compression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setup := setupCommand(cmd, args)

		report, err := debipa.Inspect(setup.log, args[0], decompress.Options{
			DisableZstd: cmd.Flag("no-zstd").Value.String() == "true",
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, m := range report.Members {
			fmt.Fprintf(w, "%s\t%d\n", m.Name, m.Size)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if report.Data == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "data: none")
			return nil
		}

		support := ""
		if !report.Supported {
			support = ", unsupported"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "data: %s (%s%s)\n", report.Data.Name, report.Compression, support)
		return nil
	},
}

func init() {
	Root.AddCommand(inspectCmd)

	inspectCmd.Flags().Bool("no-zstd", false, "report zstd data members as unsupported")
}
