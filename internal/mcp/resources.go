package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/timeline/internal/store"
	"github.com/hurttlocker/timeline/internal/timeline"
)

// recentResourceLimit is how many entries timeline://recent returns.
const recentResourceLimit = 20

// statsView is the body of timeline://stats.
type statsView struct {
	Posts          int64               `json:"posts"`
	PostsBySource  map[string]int64    `json:"posts_by_source"`
	Connectors     int64               `json:"connectors"`
	DBSizeBytes    int64               `json:"db_size_bytes"`
	Classification *timeline.Breakdown `json:"classification"`
}

func registerStatsResource(s *server.MCPServer, svc *timeline.Service, st store.Store) {
	resource := mcp.NewResource(
		"timeline://stats",
		"Timeline Statistics",
		mcp.WithResourceDescription("Post counts per source and how stored posts classify: per-category counts, dialects seen, and source-tag mismatches."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}
		breakdown, err := svc.Breakdown(ctx)
		if err != nil {
			return nil, fmt.Errorf("classifying posts: %w", err)
		}

		data, _ := json.MarshalIndent(statsView{
			Posts:          stats.PostCount,
			PostsBySource:  stats.PostsBySource,
			Connectors:     stats.ConnectorCount,
			DBSizeBytes:    stats.DBSizeBytes,
			Classification: breakdown,
		}, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerRecentResource(s *server.MCPServer, svc *timeline.Service) {
	resource := mcp.NewResource(
		"timeline://recent",
		"Recent Posts",
		mcp.WithResourceDescription("The 20 newest posts with their classification."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		entries, err := svc.Recent(ctx, recentResourceLimit, "")
		if err != nil {
			return nil, fmt.Errorf("listing recent posts: %w", err)
		}

		data, _ := json.MarshalIndent(entries, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
