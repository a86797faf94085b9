package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/entitext/internal/importer"
)

func pagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Add and list document pages",
	}
	cmd.AddCommand(pagesAddCmd(), pagesListCmd(), pagesAnnotationsCmd())
	return cmd
}

func pagesAddCmd() *cobra.Command {
	var (
		documentID    string
		splitHeadings bool
		headingDepth  int
		maxRunes      int
	)

	cmd := &cobra.Command{
		Use:   "add <file-or-dir>...",
		Short: "Append text and markdown files to a document as pages, ordered by path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("pages add: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			opts := importer.DefaultOptions()
			opts.SplitHeadings = splitHeadings
			opts.HeadingDepth = headingDepth
			opts.MaxRunes = maxRunes

			pages, err := importer.New(svc.catalog, logger).ImportFiles(ctx, documentID, args, opts)
			if err != nil {
				return fmt.Errorf("pages add: %w", err)
			}
			for i := range pages {
				fmt.Printf("Added page %s (order %d, %s)\n", pages[i].ID, pages[i].Order, pages[i].Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "document", "", "document ID (required)")
	cmd.Flags().BoolVar(&splitHeadings, "split-headings", false, "start a new page at each markdown heading")
	cmd.Flags().IntVar(&headingDepth, "heading-depth", 2, "deepest heading level that starts a page")
	cmd.Flags().IntVar(&maxRunes, "max-chars", 0, "split pages longer than this many characters (0 = no limit)")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}

func pagesListCmd() *cobra.Command {
	var (
		documentID string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a document's pages in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("pages list: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			pages, err := svc.catalog.ListPages(ctx, documentID)
			if err != nil {
				return fmt.Errorf("pages list: %w", err)
			}
			if outputJSON {
				return printJSON(pages)
			}
			if len(pages) == 0 {
				fmt.Println("No pages found.")
				return nil
			}
			for i := range pages {
				p := &pages[i]
				fmt.Printf("%4d  %-36s  %-20s  %s\n", p.Order, p.ID, truncate(p.Title, 20), truncate(p.Text, 60))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "document", "", "document ID (required)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}

func pagesAnnotationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotations <page-id>",
		Short: "List a page's annotations, marking those that drifted from the text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newServices(ctx, logger)
			if err != nil {
				return fmt.Errorf("pages annotations: opening store: %w", err)
			}
			defer func() { _ = svc.Close() }()

			recs, err := svc.engine.ListForPage(ctx, args[0])
			if err != nil {
				return fmt.Errorf("pages annotations: %w", err)
			}
			if len(recs) == 0 {
				fmt.Println("No annotations found.")
				return nil
			}
			for i := range recs {
				r := &recs[i]
				mark := " "
				if r.Drifted {
					mark = "!"
				}
				fmt.Printf("%s [%d,%d) %q -> %s (%s)\n", mark, r.StartOffset, r.EndOffset, r.AnnotatedText, r.EntityDisplayName, r.EntityTypeName)
			}
			return nil
		},
	}
	return cmd
}
