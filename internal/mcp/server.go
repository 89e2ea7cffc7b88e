package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"socialpulse/backend/internal/orchestrator"
	"socialpulse/backend/internal/repository"
	"socialpulse/backend/pkg/models"
)

type Server struct {
	mcpServer  *server.MCPServer
	controller *orchestrator.Controller
	store      repository.Store
}

func NewServer(controller *orchestrator.Controller, store repository.Store) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"SocialPulse Onboarding",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		controller: controller,
		store:      store,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_onboarding_status",
			mcp.WithDescription("Get the current onboarding workflow state"),
		),
		s.handleGetStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"advance_step",
			mcp.WithDescription("Run the current onboarding step and move to the next one"),
		),
		s.handleAdvanceStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"update_connection",
			mcp.WithDescription("Record whether the company has an account on a platform"),
			mcp.WithString("platform", mcp.Required(), mcp.Description("Platform name: instagram, facebook, linkedin or tiktok")),
			mcp.WithString("has_account", mcp.Required(), mcp.Description("yes, no or unknown")),
			mcp.WithString("profile_url", mcp.Description("Profile URL on the platform, if known")),
		),
		s.handleUpdateConnection,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_insights",
			mcp.WithDescription("List generated insights for the company, newest first"),
			mcp.WithNumber("limit", mcp.Description("Maximum number of insights to return")),
		),
		s.handleListInsights,
	)
}

func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jsonBytes, _ := json.Marshal(s.controller.Status())
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleAdvanceStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.controller.Advance(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to advance: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(s.controller.Status())
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleUpdateConnection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	platform, ok := args["platform"].(string)
	if !ok || platform == "" {
		return mcp.NewToolResultError("Missing required parameter: platform"), nil
	}

	hasAccount, ok := args["has_account"].(string)
	if !ok || hasAccount == "" {
		return mcp.NewToolResultError("Missing required parameter: has_account"), nil
	}
	switch models.HasAccount(hasAccount) {
	case models.HasAccountYes, models.HasAccountNo, models.HasAccountUnknown:
	default:
		return mcp.NewToolResultError("has_account must be yes, no or unknown"), nil
	}

	profileURL, _ := args["profile_url"].(string)

	err := s.controller.UpdateConnection(models.Platform(platform), profileURL, models.HasAccount(hasAccount))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update connection: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(s.controller.Connections())
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListInsights(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 20
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if n, ok := args["limit"].(float64); ok && n > 0 {
			limit = int(n)
		}
	}

	insights, err := s.store.ListInsights(ctx, s.controller.Username(), limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list insights: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(insights)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
