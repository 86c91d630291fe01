// Package mcp exposes the orchestrator over the Model Context Protocol so
// agent tooling can trigger builds and inspect their outcomes.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"cadence-ci/src/buildsvc"
	"cadence-ci/src/store"
)

// Server is the MCP server for the build orchestrator.
type Server struct {
	mcpServer *server.MCPServer
	store     store.Store
	builds    *buildsvc.Service
}

// NewServer creates a new MCP server.
func NewServer(s store.Store, builds *buildsvc.Service) *Server {
	mcpServer := server.NewMCPServer(
		"cadence-ci",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: mcpServer,
		store:     s,
		builds:    builds,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	triggerTool := mcp.NewTool("trigger_build",
		mcp.WithDescription("Trigger a manual build for a project. Returns the created build's ID. The build runs asynchronously; poll build_status for the result."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project ID to build"),
		),
		mcp.WithString("commit",
			mcp.Description("Commit ID to build (default: the branch head)"),
		),
		mcp.WithString("branch",
			mcp.Description("Branch to build (default: the project's default branch)"),
		),
		mcp.WithString("environment",
			mcp.Description("Deployment environment name to build against"),
		),
	)

	statusTool := mcp.NewTool("build_status",
		mcp.WithDescription("Get the current status, error counts, and log of a build."),
		mcp.WithNumber("build_id",
			mcp.Required(),
			mcp.Description("Build ID from trigger_build or recent_builds"),
		),
	)

	recentTool := mcp.NewTool("recent_builds",
		mcp.WithDescription("List the most recent builds across all projects, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Max builds to return (default: 10)"),
		),
	)

	s.mcpServer.AddTool(triggerTool, s.handleTriggerBuild)
	s.mcpServer.AddTool(statusTool, s.handleBuildStatus)
	s.mcpServer.AddTool(recentTool, s.handleRecentBuilds)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleTriggerBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := request.GetInt("project_id", 0)
	if projectID == 0 {
		return mcp.NewToolResultError("project_id parameter is required"), nil
	}

	build, err := s.builds.CreateManual(ctx,
		int64(projectID),
		request.GetString("commit", ""),
		request.GetString("branch", ""),
		request.GetString("environment", ""),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trigger failed: %v", err)), nil
	}

	jsonBytes, err := json.Marshal(map[string]interface{}{
		"build_id": build.ID,
		"status":   build.Status.String(),
		"branch":   build.Branch,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleBuildStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	buildID := request.GetInt("build_id", 0)
	if buildID == 0 {
		return mcp.NewToolResultError("build_id parameter is required"), nil
	}

	build, err := s.store.GetBuild(ctx, int64(buildID))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("build not found: %v", err)), nil
	}

	errs, err := s.store.BuildErrorsByBuild(ctx, build.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load build errors: %v", err)), nil
	}

	jsonBytes, err := json.Marshal(map[string]interface{}{
		"build":  build,
		"errors": errs,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleRecentBuilds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 10)

	builds, err := s.store.RecentBuilds(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load builds: %v", err)), nil
	}

	jsonBytes, err := json.Marshal(builds)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
