package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func entitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Search and create entities",
	}
	cmd.AddCommand(entitiesSearchCmd(), entitiesCreateCmd(), entitiesGetCmd())
	return cmd
}

func entitiesSearchCmd() *cobra.Command {
	var (
		projectID  string
		typeID     string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find entities whose display name contains the query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities search: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			entities, err := svc.catalog.SearchEntities(ctx, projectID, args[0], typeID)
			if err != nil {
				return fmt.Errorf("entities search: %w", err)
			}
			if outputJSON {
				return printJSON(entities)
			}
			if len(entities) == 0 {
				fmt.Println("No entities found.")
				return nil
			}
			for i := range entities {
				e := &entities[i]
				fmt.Printf("%-36s  %-20s  %s\n", e.ID, truncate(e.EntityTypeName, 20), e.DisplayName)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().StringVar(&typeID, "type", "", "restrict to an entity type ID")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func entitiesCreateCmd() *cobra.Command {
	var (
		projectID string
		typeID    string
	)

	cmd := &cobra.Command{
		Use:   "create <metadata-json | @file>",
		Short: "Create an entity with metadata validated against its type's schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			md, err := readMetadata(args[0])
			if err != nil {
				return fmt.Errorf("entities create: %w", err)
			}

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities create: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			sum, err := svc.catalog.CreateEntity(ctx, projectID, typeID, md)
			if err != nil {
				return fmt.Errorf("entities create: %w", err)
			}
			fmt.Printf("Created entity %s (%s: %s)\n", sum.ID, sum.EntityTypeName, sum.DisplayName)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().StringVar(&typeID, "type", "", "entity type ID (required)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func entitiesGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <entity-id>",
		Short: "Retrieve a single entity by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities get: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			sum, err := svc.catalog.GetEntity(ctx, args[0])
			if err != nil {
				return fmt.Errorf("entities get: %w", err)
			}
			return printJSON(sum)
		},
	}
	return cmd
}
