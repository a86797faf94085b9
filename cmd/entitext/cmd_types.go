package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/entitext/internal/catalog"
)

func typesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Manage entity types",
	}
	cmd.AddCommand(typesCreateCmd(), typesListCmd(), typesDeleteCmd())
	return cmd
}

func typesCreateCmd() *cobra.Command {
	var (
		projectID   string
		schemaFile  string
		color       string
		description string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an entity type from a JSON or YAML schema file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			s, err := readSchemaFile(schemaFile)
			if err != nil {
				return fmt.Errorf("types create: %w", err)
			}

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("types create: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			in := catalog.EntityTypeInput{Name: &args[0], Schema: s}
			if color != "" {
				in.Color = &color
			}
			if description != "" {
				in.Description = &description
			}
			et, err := svc.catalog.CreateEntityType(ctx, projectID, in)
			if err != nil {
				return fmt.Errorf("types create: %w", err)
			}
			fmt.Printf("Created entity type %s (%s, %d fields)\n", et.ID, et.Name, len(et.Schema))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "schema file, .json or .yaml (required)")
	cmd.Flags().StringVar(&color, "color", "", "display color, e.g. #aa5500")
	cmd.Flags().StringVar(&description, "description", "", "entity type description")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func typesListCmd() *cobra.Command {
	var (
		projectID  string
		all        bool
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's entity types",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("types list: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			if all {
				types, listErr := svc.catalog.AllEntityTypes(ctx, projectID)
				if listErr != nil {
					return fmt.Errorf("types list: %w", listErr)
				}
				if outputJSON {
					return printJSON(types)
				}
				for i := range types {
					et := &types[i]
					state := "active"
					if !et.IsActive {
						state = "inactive"
					}
					fmt.Printf("%-36s  %-8s  %-8s  %s\n", et.ID, et.Color, state, et.Name)
				}
				return nil
			}

			types, err := svc.catalog.ListEntityTypes(ctx, projectID)
			if err != nil {
				return fmt.Errorf("types list: %w", err)
			}
			if outputJSON {
				return printJSON(types)
			}
			if len(types) == 0 {
				fmt.Println("No entity types found.")
				return nil
			}
			for i := range types {
				et := &types[i]
				fmt.Printf("%-36s  %-8s  %s %v\n", et.ID, et.Color, et.Name, et.Schema.Names())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive entity types")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func typesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <entity-type-id>",
		Short: "Delete an entity type that has no entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("types delete: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			if err := svc.catalog.DeleteEntityType(ctx, args[0]); err != nil {
				return fmt.Errorf("types delete: %w", err)
			}
			fmt.Printf("Deleted entity type %s\n", args[0])
			return nil
		},
	}
	return cmd
}
