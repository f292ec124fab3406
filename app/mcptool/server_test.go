package mcptool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"moodreply/app/service/conversation"
	"moodreply/app/service/selector"
	"moodreply/app/service/session"
	"moodreply/app/service/template"

	"github.com/mark3labs/mcp-go/mcp"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := template.Load(map[string][]string{
		"happy,greeting": {"Hey there!"},
		"*,*":            {"I see."},
	}, nil)
	if err != nil {
		t.Fatalf("template.Load: %v", err)
	}

	scale, err := conversation.NewScale(map[string]int{"neutral": 0, "happy": 1, "angry": -2}, nil)
	if err != nil {
		t.Fatalf("NewScale: %v", err)
	}

	mgr := session.NewManager(selector.NewSelector(store, nil), scale, session.Options{
		ReplyWindow:   2,
		IdleTTL:       time.Minute,
		EvictInterval: time.Minute,
	})

	return NewServer(mgr)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestRespondTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleRespond(ctx, callRequest("respond", map[string]any{
		"session_id": "mcp-1",
		"emotion":    "happy",
		"intent":     "greeting",
	}))
	if err != nil {
		t.Fatalf("handleRespond: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if got := resultText(t, result); got != "Hey there!" {
		t.Fatalf("expected greeting, got %q", got)
	}

	result, err = s.handleRespond(ctx, callRequest("respond", map[string]any{
		"session_id": "mcp-1",
		"emotion":    "angry",
		"intent":     "complaint",
	}))
	if err != nil {
		t.Fatalf("handleRespond: %v", err)
	}
	if got := resultText(t, result); got != "I see." {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestRespondToolMissingArgument(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleRespond(context.Background(), callRequest("respond", map[string]any{
		"session_id": "mcp-1",
		"emotion":    "happy",
	}))
	if err != nil {
		t.Fatalf("handleRespond: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing intent")
	}
}

func TestSessionStateTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleSessionState(ctx, callRequest("session_state", map[string]any{"session_id": "nobody"}))
	if err != nil {
		t.Fatalf("handleSessionState: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for unknown session")
	}

	s.handleRespond(ctx, callRequest("respond", map[string]any{
		"session_id": "mcp-2",
		"emotion":    "happy",
		"intent":     "greeting",
	}))

	result, err = s.handleSessionState(ctx, callRequest("session_state", map[string]any{"session_id": "mcp-2"}))
	if err != nil {
		t.Fatalf("handleSessionState: %v", err)
	}

	var snap conversation.Snapshot
	if err := json.Unmarshal([]byte(resultText(t, result)), &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if snap.TurnCount != 1 || snap.CurrentEmotion != "happy" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
