package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oriys/dbkit/internal/db"
)

// txFile is the statements file accepted by "dbkit tx". Either a bare list
// of statements or a document with a statements key.
type txFile struct {
	Statements []db.Statement `yaml:"statements"`
}

func loadStatements(path string) ([]db.Statement, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	return parseStatements(data)
}

func parseStatements(data []byte) ([]db.Statement, error) {
	var list []db.Statement
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc txFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse statements: %w", err)
	}
	return doc.Statements, nil
}

func txCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Run a list of statements as one transaction",
		Long:  "Runs every statement of the file in order on one connection and commits, or rolls back on the first failure",
		RunE: func(cmd *cobra.Command, args []string) error {
			stmts, err := loadStatements(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, appConfig)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.gw.Transaction(ctx, stmts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "committed %d statements\n", len(stmts))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML statements file, - for stdin")
	cmd.MarkFlagRequired("file")

	return cmd
}
