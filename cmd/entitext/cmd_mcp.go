package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	entitextmcp "github.com/ajitpratap0/entitext/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  list_entity_types  list a project's active entity types and schemas
  search_entities    find entities by display name
  create_entity      create an entity with validated metadata
  update_entity      replace an entity's metadata
  list_annotations   list a page's annotations with drift flags
  create_annotation  anchor an entity to a span of page text
  delete_annotation  delete an annotation
  edit_page_text     replace page text and report invalidated annotations

If the store cannot be opened the server still starts; tool calls return
MCP error responses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			var srv *entitextmcp.Server
			svc, storeErr := newServices(cmd.Context(), logger)
			if storeErr != nil {
				// Tool calls will return per-call errors rather than crashing.
				logger.Error("mcp: failed to open store; tool calls will fail", "error", storeErr)
				srv = entitextmcp.NewServer(nil, nil, version, logger)
			} else {
				defer func() { _ = svc.Close() }()
				srv = entitextmcp.NewServer(svc.catalog, svc.engine, version, logger)
			}

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: entitext MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
