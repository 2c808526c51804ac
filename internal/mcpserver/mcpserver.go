// Package mcpserver exposes the research client over the Model Context
// Protocol, so agent hosts can start runs, browse the local registry, and
// pull finished reports.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/resrun/internal/report"
	"github.com/kalambet/resrun/internal/runstore"
	"github.com/kalambet/resrun/internal/session"
)

// EventFetcher abstracts past-run event retrieval for the MCP layer.
type EventFetcher interface {
	RunEvents(ctx context.Context, runID string) ([]session.Event, error)
}

// Deps holds dependencies for the MCP server.
type Deps struct {
	Backend session.Backend
	Events  EventFetcher
	Runs    *runstore.Store
	// RunTimeout bounds how long start_research waits for a run to finish.
	RunTimeout time.Duration
}

// NewMCPServer creates an MCP server with all resrun tools and resources
// registered.
func NewMCPServer(deps Deps) *server.MCPServer {
	if deps.RunTimeout <= 0 {
		deps.RunTimeout = 5 * time.Minute
	}

	s := server.NewMCPServer(
		"resrun",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("resrun — start research runs, track their progress, and fetch finished reports."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("start_research",
			mcp.WithDescription("Submit a research query, follow the run to completion, and return its outcome."),
			mcp.WithString("query", mcp.Description("The research question"), mcp.Required()),
		),
		mcpStartResearch(deps),
	)

	s.AddTool(
		mcp.NewTool("list_runs",
			mcp.WithDescription("List locally recorded research runs, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 10)")),
		),
		mcpListRuns(deps),
	)

	s.AddTool(
		mcp.NewTool("get_report",
			mcp.WithDescription("Rebuild and return the report of a past run as portable text."),
			mcp.WithString("run_id", mcp.Description("Identifier of the run"), mcp.Required()),
		),
		mcpGetReport(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"runs://recent",
			"Recent Runs",
			mcp.WithResourceDescription("Last 10 locally recorded research runs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpStartResearch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		sess := session.New(deps.Backend, deps.Runs)
		if err := sess.Start(ctx, query); err != nil {
			return mcpError(fmt.Sprintf("failed to start run: %v", err)), nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, deps.RunTimeout)
		defer cancel()
		if err := sess.Wait(waitCtx); err != nil {
			sess.Stop()
			return mcpError(fmt.Sprintf("run %s did not finish: %v", sess.RunID(), err)), nil
		}

		status, log := sess.Snapshot()
		out := map[string]any{
			"run_id": sess.RunID(),
			"status": string(status),
			"events": len(log),
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListRuns(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		runs := deps.Runs.List()
		if len(runs) > limit {
			runs = runs[:limit]
		}
		if len(runs) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(runs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetReport(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := req.RequireString("run_id")
		if err != nil {
			return mcpError("run_id is required"), nil
		}

		topic := runID
		for _, rec := range deps.Runs.List() {
			if rec.ID == runID {
				topic = rec.Query
				break
			}
		}

		events, err := deps.Events.RunEvents(ctx, runID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to fetch events for %s: %v", runID, err)), nil
		}

		doc := report.Build(topic, events)
		return mcpText(doc.Markdown()), nil
	}
}

func mcpResourceRecent(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs := deps.Runs.List()
		if len(runs) > 10 {
			runs = runs[:10]
		}

		b, err := json.Marshal(runs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
