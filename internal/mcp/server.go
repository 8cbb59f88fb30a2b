// Package mcp exposes the session orchestrator as MCP tools, so agent
// clients can create and poll fix sessions without the REST layer.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/remedyhq/remedy/internal/orchestrator"
	"github.com/remedyhq/remedy/internal/store"
)

// Server wraps the orchestrator and exposes it as MCP tools.
type Server struct {
	orch *orchestrator.Orchestrator
}

// NewServer creates the MCP server wrapper.
func NewServer(orch *orchestrator.Orchestrator) *Server {
	return &Server{orch: orch}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("remedy", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.createSessionTool())
	srv.AddTool(s.getSessionTool())
	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.generateFixesTool())
	srv.AddTool(s.refinePlanTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// toolError renders orchestrator errors as tool results so agent
// clients see the reason instead of a protocol failure.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	case errors.Is(err, orchestrator.ErrNoPlan), errors.Is(err, orchestrator.ErrBusy):
		return mcp.NewToolResultError(fmt.Sprintf("conflict: %v", err))
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// remedy_create_session
func (s *Server) createSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("remedy_create_session",
		mcp.WithDescription("Start a fix session for a GitHub issue. Returns the session snapshot; poll remedy_get_session until status is complete or error."),
		mcp.WithString("issue_ref", mcp.Required(), mcp.Description("Issue reference in owner/repo#number form")),
	)
	return tool, s.handleCreateSession
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueRef, err := request.RequireString("issue_ref")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_ref"), nil
	}

	sess, err := s.orch.CreateSession(ctx, issueRef)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sess)
}

// remedy_get_session
func (s *Server) getSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("remedy_get_session",
		mcp.WithDescription("Get a session snapshot: status, progress, current step, and the overview/plan/fixes fields populated so far."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleGetSession
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	sess, err := s.orch.GetSession(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sess)
}

// remedy_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("remedy_list_sessions",
		mcp.WithDescription("List recent fix sessions, newest first. Returns a JSON array of session snapshots."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of sessions to return (default 20)")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)

	sessions, err := s.orch.ListSessions(ctx, limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sessions)
}

// remedy_generate_fixes
func (s *Server) generateFixesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("remedy_generate_fixes",
		mcp.WithDescription("Generate concrete code fixes and a PR draft for a complete session that already has a plan. Runs in the background; poll remedy_get_session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleGenerateFixes
}

func (s *Server) handleGenerateFixes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	if err := s.orch.GenerateFixes(ctx, id); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]string{"status": "accepted", "session_id": id})
}

// remedy_refine_plan
func (s *Server) refinePlanTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("remedy_refine_plan",
		mcp.WithDescription("Revise a session's fix plan from free-text feedback. Steps and suggestions are regenerated, questions and resources kept, version incremented."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("feedback", mcp.Required(), mcp.Description("Reviewer feedback on the current plan")),
	)
	return tool, s.handleRefinePlan
}

func (s *Server) handleRefinePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	feedback, err := request.RequireString("feedback")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: feedback"), nil
	}

	sess, err := s.orch.RefinePlan(ctx, id, feedback)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sess)
}
