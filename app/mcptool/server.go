package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"moodreply/app/label"
	"moodreply/app/service/session"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"
)

const (
	serverName    = "moodreply"
	serverVersion = "1.0.0"
)

// Server exposes the responder as MCP tools over stdio.
type Server struct {
	sessionMgr *session.Manager
	mcpServer  *server.MCPServer
}

func New(di *do.Injector) (*Server, error) {
	return NewServer(do.MustInvoke[*session.Manager](di)), nil
}

func NewServer(sessionMgr *session.Manager) *Server {
	s := &Server{
		sessionMgr: sessionMgr,
		mcpServer:  server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}

	s.mcpServer.AddTool(
		mcp.NewTool("respond",
			mcp.WithDescription("Pick a reply for a classified user turn and advance the session"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session id")),
			mcp.WithString("emotion", mcp.Required(), mcp.Description("Emotion label predicted for the user turn")),
			mcp.WithString("intent", mcp.Required(), mcp.Description("Intent label predicted for the user turn")),
		),
		s.handleRespond,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("session_state",
			mcp.WithDescription("Return the tracked emotional state of a session"),
			mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session id")),
		),
		s.handleSessionState,
	)

	return s
}

func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	slog.Info("MCP server listening on stdio")

	if err := server.NewStdioServer(s.mcpServer).Listen(ctx, in, out); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}

	return nil
}

func (s *Server) handleRespond(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	emotion, err := request.RequireString("emotion")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	intent, err := request.RequireString("intent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reply := s.sessionMgr.Respond(sessionID, label.Emotion(emotion), label.Intent(intent))

	return mcp.NewToolResultText(reply.Text), nil
}

func (s *Server) handleSessionState(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, ok := s.sessionMgr.Snapshot(sessionID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", sessionID)), nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}
