// Package mcp provides a Model Context Protocol server for the timeline.
//
// It exposes classification, post lookup, search, import and connector
// management as MCP tools, and timeline statistics and recent entries as MCP
// resources. Transport is stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/hurttlocker/timeline/internal/connect"
	"github.com/hurttlocker/timeline/internal/extract"
	"github.com/hurttlocker/timeline/internal/schedule"
	"github.com/hurttlocker/timeline/internal/store"
	"github.com/hurttlocker/timeline/internal/timeline"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store
	Version string // version string for MCP server info
	Logger  zerolog.Logger

	// DefaultSource tags imported posts that name no source.
	DefaultSource extract.SourceTag

	// SyncSchedule, when set, syncs enabled connectors in the background
	// on this cron schedule while the server runs.
	SyncSchedule string
}

// dbMu serializes tool calls that touch the database. mcp-go dispatches
// handlers concurrently and SQLite has a single writer.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all timeline tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Timeline",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	svc := timeline.New(cfg.Store)
	log := cfg.Logger.With().Str("component", "mcp").Logger()

	registerClassifyTool(s)
	registerPostTool(s, svc)
	registerRecentTool(s, svc)
	registerSearchTool(s, svc)

	var connStore *connect.ConnectorStore
	if sqlStore, ok := cfg.Store.(*store.SQLiteStore); ok {
		connStore = connect.NewConnectorStore(sqlStore.GetDB())
		engine := connect.NewSyncEngine(connect.DefaultRegistry, connStore, cfg.Store, log)

		registerImportTool(s, engine, cfg.DefaultSource)
		registerConnectListTool(s, connStore)
		registerConnectAddTool(s, connStore)
		registerConnectSyncTool(s, engine)
	}

	registerStatsResource(s, svc, cfg.Store)
	registerRecentResource(s, svc)

	return s
}

// ServeStdio runs the server on stdin/stdout until the client disconnects.
func ServeStdio(cfg ServerConfig) error {
	sched, err := backgroundSync(cfg)
	if err != nil {
		return err
	}
	if sched != nil {
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	cfg.Logger.Info().Str("version", cfg.Version).Msg("serving MCP on stdio")
	return server.ServeStdio(NewServer(cfg))
}

const backgroundSyncJob = "connector-sync"

// backgroundSync builds the scheduler for cfg.SyncSchedule. It returns nil
// when no schedule is configured. Runs share dbMu with tool calls.
func backgroundSync(cfg ServerConfig) (*schedule.Scheduler, error) {
	if strings.TrimSpace(cfg.SyncSchedule) == "" {
		return nil, nil
	}
	sqlStore, ok := cfg.Store.(*store.SQLiteStore)
	if !ok {
		return nil, errors.New("background sync requires the SQLite store")
	}

	log := cfg.Logger.With().Str("component", "mcp").Logger()
	engine := connect.NewSyncEngine(connect.DefaultRegistry, connect.NewConnectorStore(sqlStore.GetDB()), cfg.Store, log)

	sched := schedule.New(log)
	err := sched.Add(backgroundSyncJob, cfg.SyncSchedule, func(ctx context.Context) error {
		dbMu.Lock()
		defer dbMu.Unlock()
		results, err := engine.SyncAll(ctx)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Error != "" {
				log.Warn().Str("provider", r.Provider).Str("error", r.Error).Msg("background sync failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// --- Tools ---

func registerClassifyTool(s *server.MCPServer) {
	tool := mcp.NewTool("timeline_classify",
		mcp.WithDescription("Classify post text as sleep, nap, exercise, daily_activity or plain_text and return the recovered health record. Nothing is stored."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Post text exactly as published"),
		),
		mcp.WithString("source",
			mcp.Description("Source tag hint: generic-social, fitbit, googlefit, unspecified-health"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}

		hint := extract.SourceUnknown
		if src, err := req.RequireString("source"); err == nil && src != "" {
			hint, err = extract.ParseSourceTag(src)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		result := extract.Classify(text, hint)
		out := struct {
			Result       extract.Result `json:"result"`
			HintMismatch bool           `json:"hint_mismatch"`
		}{result, result.HintMismatch()}

		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerPostTool(s *server.MCPServer, svc *timeline.Service) {
	tool := mcp.NewTool("timeline_post",
		mcp.WithDescription("Fetch one stored post by id with its classification."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Post id, e.g. export:1234"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		entry, err := svc.Get(ctx, id)
		if errors.Is(err, timeline.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("post %q not found", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("post error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(entry, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRecentTool(s *server.MCPServer, svc *timeline.Service) {
	tool := mcp.NewTool("timeline_recent",
		mcp.WithDescription("List the newest stored posts with their classification."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of posts (default: 10, max: 50)"),
		),
		mcp.WithString("source",
			mcp.Description("Only posts stored with this source tag"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		source, _ := req.RequireString("source")
		entries, err := svc.Recent(ctx, limitArg(req), source)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("recent error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(entries, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerSearchTool(s *server.MCPServer, svc *timeline.Service) {
	tool := mcp.NewTool("timeline_search",
		mcp.WithDescription("Find stored posts whose text contains the query, with their classification."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Substring to look for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10, max: 50)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		entries, err := svc.Search(ctx, query, limitArg(req))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(entries, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerImportTool(s *server.MCPServer, engine *connect.SyncEngine, defaultSource extract.SourceTag) {
	tool := mcp.NewTool("timeline_import",
		mcp.WithDescription("Store posts. Pass either text for a single post, or path to a JSON/YAML export file."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Description("Text of a single post"),
		),
		mcp.WithString("id",
			mcp.Description("Id of the single post (default: derived from text)"),
		),
		mcp.WithString("posted_at",
			mcp.Description("Publish time of the single post, RFC3339 or YYYY-MM-DD HH:MM"),
		),
		mcp.WithString("path",
			mcp.Description("Export file to import instead of text"),
		),
		mcp.WithString("source",
			mcp.Description("Source tag for posts that carry none"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		source := defaultSource
		if src, err := req.RequireString("source"); err == nil && src != "" {
			source, err = extract.ParseSourceTag(src)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		text, _ := req.RequireString("text")
		path, _ := req.RequireString("path")

		var (
			provider string
			records  []connect.Record
		)
		switch {
		case path != "" && text != "":
			return mcp.NewToolResultError("pass either text or path, not both"), nil
		case path != "":
			data, err := os.ReadFile(path)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("reading %s: %v", path, err)), nil
			}
			records, err = connect.ParseExport(data, path, source)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("import error: %v", err)), nil
			}
			provider = "export"
		case strings.TrimSpace(text) != "":
			id, _ := req.RequireString("id")
			postedAt, _ := req.RequireString("posted_at")
			rec, err := connect.NewRecord(id, text, source, postedAt)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("import error: %v", err)), nil
			}
			records = []connect.Record{rec}
			provider = "mcp"
		default:
			return mcp.NewToolResultError("text or path is required"), nil
		}

		result := engine.Import(ctx, provider, records)
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerConnectListTool(s *server.MCPServer, connStore *connect.ConnectorStore) {
	tool := mcp.NewTool("timeline_connect_list",
		mcp.WithDescription("List configured connectors and their sync status."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		connectors, err := connStore.List(ctx, false)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list connectors error: %v", err)), nil
		}
		if len(connectors) == 0 {
			return mcp.NewToolResultText("No connectors configured. Use timeline_connect_add to set one up."), nil
		}

		data, _ := json.MarshalIndent(connectors, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerConnectAddTool(s *server.MCPServer, connStore *connect.ConnectorStore) {
	providerNames := connect.DefaultRegistry.List()

	tool := mcp.NewTool("timeline_connect_add",
		mcp.WithDescription(fmt.Sprintf("Add a new connector. Available providers: %s. Pass provider-specific config as JSON.", strings.Join(providerNames, ", "))),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("provider", mcp.Required(),
			mcp.Description("Provider name (e.g., export)"),
		),
		mcp.WithString("config", mcp.Required(),
			mcp.Description("Provider configuration as JSON string"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		providerName, err := req.RequireString("provider")
		if err != nil {
			return mcp.NewToolResultError("provider is required"), nil
		}
		configStr, err := req.RequireString("config")
		if err != nil {
			return mcp.NewToolResultError("config is required"), nil
		}

		provider := connect.DefaultRegistry.Get(providerName)
		if provider == nil {
			return mcp.NewToolResultError(fmt.Sprintf("unknown provider %q. Available: %s", providerName, strings.Join(providerNames, ", "))), nil
		}

		configJSON := json.RawMessage(configStr)
		if err := provider.ValidateConfig(configJSON); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid config: %v", err)), nil
		}

		id, err := connStore.Add(ctx, providerName, configJSON)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("add connector error: %v", err)), nil
		}

		result := map[string]interface{}{
			"id":       id,
			"provider": providerName,
			"message":  fmt.Sprintf("Connector %q added (id: %d). Run timeline_connect_sync to sync.", providerName, id),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerConnectSyncTool(s *server.MCPServer, engine *connect.SyncEngine) {
	tool := mcp.NewTool("timeline_connect_sync",
		mcp.WithDescription("Sync a connector (or all enabled connectors if no provider is given) into the post store."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("provider",
			mcp.Description("Provider name to sync. Leave empty to sync all enabled connectors."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		providerName, _ := req.RequireString("provider")
		if providerName != "" {
			result, err := engine.SyncProvider(ctx, providerName)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("sync error: %v", err)), nil
			}
			data, _ := json.MarshalIndent(result, "", "  ")
			return mcp.NewToolResultText(string(data)), nil
		}

		results, err := engine.SyncAll(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("sync all error: %v", err)), nil
		}
		if len(results) == 0 {
			return mcp.NewToolResultText("No enabled connectors to sync."), nil
		}
		data, _ := json.MarshalIndent(results, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// limitArg reads the optional "limit" argument, clamped to maxLimit.
func limitArg(req mcp.CallToolRequest) int {
	limit := defaultLimit
	if v, err := req.RequireFloat("limit"); err == nil && v > 0 {
		limit = int(v)
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
