// Package mcp implements the Model Context Protocol server for entitext.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/entitext/internal/annotation"
	"github.com/ajitpratap0/entitext/internal/catalog"
	"github.com/ajitpratap0/entitext/internal/schema"
)

// Server wraps an MCPServer with the catalog and annotation services.
type Server struct {
	mcp     *mcpserver.MCPServer
	catalog *catalog.Service
	engine  *annotation.Engine
	logger  *slog.Logger
}

// NewServer creates a new MCP server. If cat or eng are nil, the
// corresponding tool calls return an error result instead of panicking.
func NewServer(cat *catalog.Service, eng *annotation.Engine, version string, logger *slog.Logger) *Server {
	s := &Server{
		catalog: cat,
		engine:  eng,
		logger:  logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"entitext",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildListEntityTypesTool(), s.handleListEntityTypes)
	mcpSrv.AddTool(buildSearchEntitiesTool(), s.handleSearchEntities)
	mcpSrv.AddTool(buildCreateEntityTool(), s.handleCreateEntity)
	mcpSrv.AddTool(buildUpdateEntityTool(), s.handleUpdateEntity)
	mcpSrv.AddTool(buildListAnnotationsTool(), s.handleListAnnotations)
	mcpSrv.AddTool(buildCreateAnnotationTool(), s.handleCreateAnnotation)
	mcpSrv.AddTool(buildDeleteAnnotationTool(), s.handleDeleteAnnotation)
	mcpSrv.AddTool(buildEditPageTextTool(), s.handleEditPageText)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleListEntityTypes is the exported handler for the "list_entity_types" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleListEntityTypes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleListEntityTypes(ctx, req)
}

// HandleSearchEntities is the exported handler for the "search_entities" tool.
func (s *Server) HandleSearchEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearchEntities(ctx, req)
}

// HandleCreateEntity is the exported handler for the "create_entity" tool.
func (s *Server) HandleCreateEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleCreateEntity(ctx, req)
}

// HandleUpdateEntity is the exported handler for the "update_entity" tool.
func (s *Server) HandleUpdateEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleUpdateEntity(ctx, req)
}

// HandleListAnnotations is the exported handler for the "list_annotations" tool.
func (s *Server) HandleListAnnotations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleListAnnotations(ctx, req)
}

// HandleCreateAnnotation is the exported handler for the "create_annotation" tool.
func (s *Server) HandleCreateAnnotation(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleCreateAnnotation(ctx, req)
}

// HandleDeleteAnnotation is the exported handler for the "delete_annotation" tool.
func (s *Server) HandleDeleteAnnotation(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleDeleteAnnotation(ctx, req)
}

// HandleEditPageText is the exported handler for the "edit_page_text" tool.
func (s *Server) HandleEditPageText(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleEditPageText(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// toolError turns a service error into an error result. Metadata validation
// failures carry every failing field.
func (s *Server) toolError(op string, err error) *mcpgo.CallToolResult {
	var fieldErrs schema.FieldErrors
	if errors.As(err, &fieldErrs) {
		b, marshalErr := json.Marshal(map[string]any{"error": "metadata validation failed", "fields": fieldErrs.Map()})
		if marshalErr == nil {
			return mcpgo.NewToolResultError(string(b))
		}
	}
	if errors.Is(err, catalog.ErrCorruptSchema) {
		s.logger.Error("mcp: "+op, "error", err)
	}
	return mcpgo.NewToolResultErrorf("%s: %s", op, err.Error())
}

// requiredString returns the trimmed string argument name, or an error result.
func requiredString(req mcpgo.CallToolRequest, name string) (string, *mcpgo.CallToolResult) {
	v := strings.TrimSpace(req.GetString(name, ""))
	if v == "" {
		return "", mcpgo.NewToolResultErrorf("%s is required and must not be empty", name)
	}
	return v, nil
}

// requiredInt reads an argument that must be an integral number. Strings and
// fractions are rejected rather than coerced.
func requiredInt(req mcpgo.CallToolRequest, name string) (int, *mcpgo.CallToolResult) {
	raw, ok := req.GetArguments()[name]
	if !ok || raw == nil {
		return 0, mcpgo.NewToolResultErrorf("%s is required", name)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) <= 1<<53 {
			return int(v), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), nil
		}
	}
	return 0, mcpgo.NewToolResultErrorf("%s must be an integer, got %v", name, raw)
}

// metadataArg accepts metadata either as an object or as a JSON string.
func metadataArg(req mcpgo.CallToolRequest) (map[string]any, error) {
	switch v := req.GetArguments()["metadata"].(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		var md map[string]any
		if err := json.Unmarshal([]byte(v), &md); err != nil {
			return nil, fmt.Errorf("metadata is not a JSON object: %w", err)
		}
		return md, nil
	default:
		return nil, fmt.Errorf("metadata must be an object, got %T", v)
	}
}

// --- tool definitions ---

func buildListEntityTypesTool() mcpgo.Tool {
	return mcpgo.NewTool("list_entity_types",
		mcpgo.WithDescription("List the active entity types of a project with their schemas."),
		mcpgo.WithString("project_id",
			mcpgo.Required(),
			mcpgo.Description("The project ID"),
		),
	)
}

func buildSearchEntitiesTool() mcpgo.Tool {
	return mcpgo.NewTool("search_entities",
		mcpgo.WithDescription("Find entities whose display name contains the query (case-insensitive). Returns at most 20."),
		mcpgo.WithString("project_id",
			mcpgo.Required(),
			mcpgo.Description("The project ID"),
		),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("Substring of the display name"),
		),
		mcpgo.WithString("entity_type_id",
			mcpgo.Description("Restrict results to one entity type"),
		),
	)
}

func buildCreateEntityTool() mcpgo.Tool {
	return mcpgo.NewTool("create_entity",
		mcpgo.WithDescription("Create an entity. Metadata is validated against the entity type's schema and must include display_name."),
		mcpgo.WithString("project_id",
			mcpgo.Required(),
			mcpgo.Description("The project ID"),
		),
		mcpgo.WithString("entity_type_id",
			mcpgo.Required(),
			mcpgo.Description("The entity type ID; must belong to the project"),
		),
		mcpgo.WithObject("metadata",
			mcpgo.Required(),
			mcpgo.Description("Field name to value, following the entity type's schema"),
		),
	)
}

func buildUpdateEntityTool() mcpgo.Tool {
	return mcpgo.NewTool("update_entity",
		mcpgo.WithDescription("Replace an entity's metadata after validating it against the entity type's schema."),
		mcpgo.WithString("entity_id",
			mcpgo.Required(),
			mcpgo.Description("The entity ID"),
		),
		mcpgo.WithObject("metadata",
			mcpgo.Required(),
			mcpgo.Description("Field name to value, following the entity type's schema"),
		),
	)
}

func buildListAnnotationsTool() mcpgo.Tool {
	return mcpgo.NewTool("list_annotations",
		mcpgo.WithDescription("List a page's annotations ordered by start offset, flagging any that drifted from the page text."),
		mcpgo.WithString("page_id",
			mcpgo.Required(),
			mcpgo.Description("The page ID"),
		),
	)
}

func buildCreateAnnotationTool() mcpgo.Tool {
	return mcpgo.NewTool("create_annotation",
		mcpgo.WithDescription("Link the page text in [start_offset, end_offset) to an entity. Offsets count Unicode code points."),
		mcpgo.WithString("page_id",
			mcpgo.Required(),
			mcpgo.Description("The page ID"),
		),
		mcpgo.WithString("entity_id",
			mcpgo.Required(),
			mcpgo.Description("The entity ID"),
		),
		mcpgo.WithNumber("start_offset",
			mcpgo.Required(),
			mcpgo.Description("Inclusive start offset"),
		),
		mcpgo.WithNumber("end_offset",
			mcpgo.Required(),
			mcpgo.Description("Exclusive end offset; must be greater than start_offset"),
		),
	)
}

func buildDeleteAnnotationTool() mcpgo.Tool {
	return mcpgo.NewTool("delete_annotation",
		mcpgo.WithDescription("Delete an annotation. The entity is kept."),
		mcpgo.WithString("annotation_id",
			mcpgo.Required(),
			mcpgo.Description("The annotation ID"),
		),
	)
}

func buildEditPageTextTool() mcpgo.Tool {
	return mcpgo.NewTool("edit_page_text",
		mcpgo.WithDescription("Replace a page's text. Always saved; returns the annotations whose text no longer matches."),
		mcpgo.WithString("page_id",
			mcpgo.Required(),
			mcpgo.Description("The page ID"),
		),
		mcpgo.WithString("text",
			mcpgo.Required(),
			mcpgo.Description("The new page text"),
		),
	)
}

// --- tool handlers ---

func (s *Server) handleListEntityTypes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.catalog == nil {
		return mcpgo.NewToolResultError("catalog is unavailable"), nil
	}
	projectID, errRes := requiredString(req, "project_id")
	if errRes != nil {
		return errRes, nil
	}
	types, err := s.catalog.ListEntityTypes(ctx, projectID)
	if err != nil {
		return s.toolError("list entity types failed", err), nil
	}
	return toolResultJSON(map[string]any{"entity_types": types})
}

func (s *Server) handleSearchEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.catalog == nil {
		return mcpgo.NewToolResultError("catalog is unavailable"), nil
	}
	projectID, errRes := requiredString(req, "project_id")
	if errRes != nil {
		return errRes, nil
	}
	entities, err := s.catalog.SearchEntities(ctx, projectID, req.GetString("query", ""), req.GetString("entity_type_id", ""))
	if err != nil {
		return s.toolError("search failed", err), nil
	}
	return toolResultJSON(map[string]any{"entities": entities})
}

func (s *Server) handleCreateEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.catalog == nil {
		return mcpgo.NewToolResultError("catalog is unavailable"), nil
	}
	projectID, errRes := requiredString(req, "project_id")
	if errRes != nil {
		return errRes, nil
	}
	typeID, errRes := requiredString(req, "entity_type_id")
	if errRes != nil {
		return errRes, nil
	}
	md, err := metadataArg(req)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	sum, err := s.catalog.CreateEntity(ctx, projectID, typeID, md)
	if err != nil {
		return s.toolError("create entity failed", err), nil
	}
	s.logger.Info("mcp: created entity", "entity_id", sum.ID)
	return toolResultJSON(sum)
}

func (s *Server) handleUpdateEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.catalog == nil {
		return mcpgo.NewToolResultError("catalog is unavailable"), nil
	}
	id, errRes := requiredString(req, "entity_id")
	if errRes != nil {
		return errRes, nil
	}
	md, err := metadataArg(req)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	sum, err := s.catalog.UpdateEntity(ctx, id, md)
	if err != nil {
		return s.toolError("update entity failed", err), nil
	}
	return toolResultJSON(sum)
}

func (s *Server) handleListAnnotations(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("annotation engine is unavailable"), nil
	}
	pageID, errRes := requiredString(req, "page_id")
	if errRes != nil {
		return errRes, nil
	}
	recs, err := s.engine.ListForPage(ctx, pageID)
	if err != nil {
		return s.toolError("list annotations failed", err), nil
	}
	return toolResultJSON(map[string]any{"annotations": recs})
}

func (s *Server) handleCreateAnnotation(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("annotation engine is unavailable"), nil
	}
	pageID, errRes := requiredString(req, "page_id")
	if errRes != nil {
		return errRes, nil
	}
	entityID, errRes := requiredString(req, "entity_id")
	if errRes != nil {
		return errRes, nil
	}
	start, errRes := requiredInt(req, "start_offset")
	if errRes != nil {
		return errRes, nil
	}
	end, errRes := requiredInt(req, "end_offset")
	if errRes != nil {
		return errRes, nil
	}

	rec, err := s.engine.Create(ctx, pageID, entityID, start, end)
	if err != nil {
		return s.toolError("create annotation failed", err), nil
	}
	s.logger.Info("mcp: created annotation", "annotation_id", rec.ID)
	return toolResultJSON(rec)
}

func (s *Server) handleDeleteAnnotation(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("annotation engine is unavailable"), nil
	}
	id, errRes := requiredString(req, "annotation_id")
	if errRes != nil {
		return errRes, nil
	}
	if err := s.engine.Delete(ctx, id); err != nil {
		return s.toolError("delete failed", err), nil
	}
	return toolResultJSON(map[string]any{"deleted": true})
}

func (s *Server) handleEditPageText(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.engine == nil {
		return mcpgo.NewToolResultError("annotation engine is unavailable"), nil
	}
	pageID, errRes := requiredString(req, "page_id")
	if errRes != nil {
		return errRes, nil
	}
	text, ok := req.GetArguments()["text"].(string)
	if !ok {
		return mcpgo.NewToolResultError("text is required"), nil
	}
	res, err := s.engine.ApplyPageEdit(ctx, pageID, text)
	if err != nil {
		return s.toolError("edit page text failed", err), nil
	}
	return toolResultJSON(res)
}
