package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oriys/dbkit/internal/backend"
)

func backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List supported backends and whether they are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := backend.Describe(appConfig)
			out := cmd.OutOrStdout()
			if outputFmt == "json" {
				return writeJSON(out, infos)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSELECTED\tCONFIGURED\tREASON")
			for _, info := range infos {
				selected := ""
				if info.Selected {
					selected = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", info.Name, selected, info.Configured, info.Reason)
			}
			return tw.Flush()
		},
	}
}
