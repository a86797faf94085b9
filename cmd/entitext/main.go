package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/entitext/internal/annotation"
	"github.com/ajitpratap0/entitext/internal/catalog"
	"github.com/ajitpratap0/entitext/internal/config"
	"github.com/ajitpratap0/entitext/internal/schema"
	"github.com/ajitpratap0/entitext/internal/store"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:     "entitext",
		Short:   "entitext: schema-driven entities linked to spans of document text",
		Long:    "entitext keeps user-defined entity types, validates entity metadata against their schemas, and anchors entities to character ranges of page text.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		mcpCmd(),
		schemaCmd(),
		projectsCmd(),
		documentsCmd(),
		typesCmd(),
		entitiesCmd(),
		pagesCmd(),
		auditCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver == config.DriverMemory {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(ctx, cfg.Store.Path)
}

// services bundles the store with the services built on top of it.
type services struct {
	store   store.Store
	catalog *catalog.Service
	engine  *annotation.Engine
}

func (s *services) Close() error { return s.store.Close() }

func newServices(ctx context.Context, logger *slog.Logger) (*services, error) {
	st, err := newStore(ctx)
	if err != nil {
		return nil, err
	}
	return &services{
		store:   st,
		catalog: catalog.NewService(st, nil, logger, cfg.Search.Limit),
		engine:  annotation.NewEngine(st, logger),
	}, nil
}

// readSchemaFile loads a schema from a JSON or YAML file.
func readSchemaFile(path string) (schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return schema.Parse(data)
	default:
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return schema.Decode(raw)
	}
}

// readMetadata decodes inline JSON metadata, or reads it from a file when
// the argument starts with '@'.
func readMetadata(arg string) (map[string]any, error) {
	data := []byte(arg)
	if name, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		data, err = os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
	}
	var md map[string]any
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("metadata must be a JSON object: %w", err)
	}
	return md, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
