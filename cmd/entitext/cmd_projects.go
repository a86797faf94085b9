package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/entitext/internal/api"
)

func projectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Create and list projects",
	}
	cmd.AddCommand(projectsCreateCmd(), projectsListCmd())
	return cmd
}

func projectsCreateCmd() *cobra.Command {
	var (
		owner       string
		description string
	)

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("projects create: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			p, err := svc.catalog.CreateProject(ctx, owner, args[0], description)
			if err != nil {
				return fmt.Errorf("projects create: %w", err)
			}
			fmt.Printf("Created project %s (%s)\n", p.ID, p.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", api.AnonymousIdentity, "owner identity")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	return cmd
}

func projectsListCmd() *cobra.Command {
	var (
		owner      string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the projects owned by an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("projects list: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			projects, err := svc.catalog.ListProjects(ctx, owner)
			if err != nil {
				return fmt.Errorf("projects list: %w", err)
			}
			if outputJSON {
				return printJSON(projects)
			}
			if len(projects) == 0 {
				fmt.Println("No projects found.")
				return nil
			}
			for i := range projects {
				p := &projects[i]
				fmt.Printf("%-36s  %s\n", p.ID, truncate(p.Title, 60))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", api.AnonymousIdentity, "owner identity")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
