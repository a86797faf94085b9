package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Create and inspect documents",
	}
	cmd.AddCommand(documentsCreateCmd(), documentsGetCmd())
	return cmd
}

func documentsCreateCmd() *cobra.Command {
	var (
		projectID   string
		description string
	)

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a document in a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("documents create: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			d, err := svc.catalog.CreateDocument(ctx, projectID, args[0], description)
			if err != nil {
				return fmt.Errorf("documents create: %w", err)
			}
			fmt.Printf("Created document %s (%s)\n", d.ID, d.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project ID (required)")
	cmd.Flags().StringVar(&description, "description", "", "document description")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func documentsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <document-id>",
		Short: "Show a document and its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("documents get: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			d, err := svc.catalog.GetDocument(ctx, args[0])
			if err != nil {
				return fmt.Errorf("documents get: %w", err)
			}
			pages, err := svc.catalog.ListPages(ctx, d.ID)
			if err != nil {
				return fmt.Errorf("documents get: %w", err)
			}
			return printJSON(map[string]any{"document": d, "pages": pages})
		},
	}
	return cmd
}
