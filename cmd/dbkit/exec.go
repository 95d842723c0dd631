package main

import (
	"github.com/spf13/cobra"

	"github.com/oriys/dbkit/internal/db"
)

func execCmd() *cobra.Command {
	var (
		raw        bool
		prefix     string
		dropPrefix string
	)

	cmd := &cobra.Command{
		Use:   "exec <query> [params...]",
		Short: "Execute one statement on a pooled connection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:], raw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, appConfig)
			if err != nil {
				return err
			}
			defer s.Close()

			rs, err := s.gw.Execute(ctx, args[0], params...)
			if err != nil {
				return err
			}

			if prefix != "" || dropPrefix != "" {
				for i, row := range rs.Rows {
					if prefix != "" {
						row = db.PickWithPrefix(row, prefix)
					}
					if dropPrefix != "" {
						row = db.PickWithoutPrefix(row, dropPrefix)
					}
					rs.Rows[i] = row
				}
			}

			return printRows(cmd.OutOrStdout(), rs, outputFmt)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Bind every param as a string")
	cmd.Flags().StringVar(&prefix, "pick", "", "Keep only columns with this prefix, stripping it")
	cmd.Flags().StringVar(&dropPrefix, "drop", "", "Remove columns with this prefix")

	return cmd
}
