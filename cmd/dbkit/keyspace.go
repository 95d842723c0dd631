package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriys/dbkit/internal/store"
)

func keyspaceCmd() *cobra.Command {
	var (
		class  string
		factor int
		dcs    map[string]int
		create bool
	)

	cmd := &cobra.Command{
		Use:   "keyspace <name>",
		Short: "Print or create a Cassandra keyspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repl := store.Replication{
				Class:       class,
				Factor:      factor,
				DataCenters: dcs,
			}
			if len(dcs) > 0 && class == "" {
				repl.Class = store.NetworkTopologyStrategy
			}

			stmt, err := store.CreateKeyspace(args[0], repl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), stmt)

			if !create {
				return nil
			}
			if err := store.EnsureKeyspace(cmd.Context(), appConfig.Cassandra, args[0], repl); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "keyspace %s ready\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "Replication class: SimpleStrategy, NetworkTopologyStrategy")
	cmd.Flags().IntVar(&factor, "replication-factor", 1, "Replication factor for SimpleStrategy")
	cmd.Flags().StringToIntVar(&dcs, "dc", nil, "Data center replication, e.g. --dc eu=3,us=2")
	cmd.Flags().BoolVar(&create, "create", false, "Create the keyspace on the configured Cassandra cluster")

	return cmd
}
