package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/entitext/internal/lifecycle"
)

func auditCmd() *cobra.Command {
	var (
		projectID  string
		documentID string
		prune      bool
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report drifted annotations and entities that fail their current schema",
		Long: `Checks a document's annotations against the current page text and re-validates
a project's entities against the current entity type schemas. Nothing is changed
unless --prune is given, which deletes drifted annotations (entities are kept).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" && documentID == "" {
				return errors.New("audit: --project or --document is required")
			}
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("audit: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			mgr := lifecycle.NewManager(svc.store, svc.engine, svc.catalog.Validator(), logger)
			report, err := mgr.Run(ctx, lifecycle.Scope{ProjectID: projectID, DocumentID: documentID}, !prune)
			if err != nil {
				return fmt.Errorf("audit: %w", err)
			}
			if outputJSON {
				return printJSON(report)
			}

			if documentID != "" {
				fmt.Printf("Pages scanned: %d, drifted annotations: %d, pruned: %d\n",
					report.PagesScanned, len(report.Drifted), report.Pruned)
				for _, d := range report.Drifted {
					fmt.Printf("  %s [%d,%d) %q now %q\n", d.ID, d.StartOffset, d.EndOffset, d.AnnotatedText, d.CurrentText)
				}
			}
			if projectID != "" {
				fmt.Printf("Entities scanned: %d, failing current schema: %d\n",
					report.EntitiesScanned, len(report.InvalidEntities))
				for _, e := range report.InvalidEntities {
					if e.Error != "" {
						fmt.Printf("  %s %s (%s): %s\n", e.EntityID, e.DisplayName, e.EntityTypeName, e.Error)
						continue
					}
					fmt.Printf("  %s %s (%s): %v\n", e.EntityID, e.DisplayName, e.EntityTypeName, e.Fields)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "re-validate this project's entities")
	cmd.Flags().StringVar(&documentID, "document", "", "check this document's annotations for drift")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete drifted annotations")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
