package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriys/dbkit/internal/db"
	"github.com/oriys/dbkit/internal/store"
)

func insertCmd() *cobra.Command {
	var (
		file        string
		ttl         int
		notExists   bool
		stampColumn string
		execute     bool
	)

	cmd := &cobra.Command{
		Use:   "insert <table>",
		Short: "Build a prepared insert from a YAML row",
		Long:  "Builds a parameterised insert with alphabetically ordered columns, prints it, and optionally executes it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := map[string]any{}
			if err := readYAMLFile(file, &values); err != nil {
				return err
			}
			if stampColumn != "" {
				values[stampColumn] = db.Now()
			}

			stmt, err := store.PreparedInsert(args[0], values, store.InsertOptions{
				TTL:       ttl,
				NotExists: notExists,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !execute {
				return printStatement(cmd, stmt)
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, appConfig)
			if err != nil {
				return err
			}
			defer s.Close()

			rs, err := s.gw.Execute(ctx, stmt.Query, stmt.Params...)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, stmt.Query)
			return printRows(out, rs, outputFmt)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML mapping of column to value, - for stdin")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "Row TTL in seconds")
	cmd.Flags().BoolVar(&notExists, "if-not-exists", false, "Insert only if the row does not exist")
	cmd.Flags().StringVar(&stampColumn, "stamp", "", "Set this column to the current UTC timestamp")
	cmd.Flags().BoolVar(&execute, "exec", false, "Execute the statement instead of printing it")
	cmd.MarkFlagRequired("file")

	return cmd
}

func printStatement(cmd *cobra.Command, stmt db.Statement) error {
	out := cmd.OutOrStdout()
	if outputFmt == "json" {
		return writeJSON(out, stmt)
	}
	fmt.Fprintln(out, stmt.Query)
	for i, p := range stmt.Params {
		fmt.Fprintf(out, "  $%d = %s\n", i+1, formatValue(p))
	}
	return nil
}
