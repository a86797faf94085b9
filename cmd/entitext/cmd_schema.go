package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with entity type schemas",
	}
	cmd.AddCommand(schemaValidateCmd())
	return cmd
}

func schemaValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a JSON or YAML schema file",
		Long: `Checks a schema the way an entity type write would: every field needs a
name, label and registered type, names must be unique, a display_name field
must exist, and reference targets must exist in the configured store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			s, err := readSchemaFile(args[0])
			if err != nil {
				return fmt.Errorf("schema validate: %w", err)
			}

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("schema validate: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			if err := svc.catalog.Validator().ValidateSchema(ctx, s); err != nil {
				return fmt.Errorf("schema validate: %w", err)
			}
			fmt.Printf("%s: valid (%d fields: %v)\n", args[0], len(s), s.Names())
			return nil
		},
	}
	return cmd
}
