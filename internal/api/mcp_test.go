package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/supportbot/internal/faq"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func mcpNewTestSession(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)) string {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest("new_session", nil))
	if err != nil || result.IsError {
		t.Fatalf("new_session failed: %v %+v", err, result)
	}
	var resp sessionResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.SessionID
}

func TestMCPTool_AskAndHistory(t *testing.T) {
	svc := newTestService(t, &mockGenerator{})
	id := mcpNewTestSession(t, mcpNewSession(svc))

	result, err := mcpAsk(svc)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"session_id": id,
		"query":      "What are your business hours?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("ask returned error: %s", toolText(t, result))
	}
	var ans askResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &ans); err != nil {
		t.Fatal(err)
	}
	if ans.Escalated || !strings.Contains(ans.Response, "9 AM") {
		t.Errorf("answer = %+v", ans)
	}

	result, err = mcpGetHistory(svc)(context.Background(), makeCallToolRequest("get_history", map[string]interface{}{
		"session_id": id,
	}))
	if err != nil || result.IsError {
		t.Fatalf("get_history failed: %v", err)
	}
	var hist historyResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist.Messages) != 2 || hist.Messages[0].Role != "user" || hist.Messages[1].Role != "bot" {
		t.Errorf("history = %+v", hist)
	}
}

func TestMCPTool_AskErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		noLLM   bool
		wantMsg string
	}{
		{"missing session", map[string]interface{}{"query": "hi"}, false, "session_id is required"},
		{"missing query", map[string]interface{}{"session_id": "x"}, false, "query is required"},
		{"unknown session", map[string]interface{}{"session_id": "x", "query": "hi"}, false, "session not found"},
		{"unavailable", map[string]interface{}{"session_id": "x", "query": "hi"}, true, "not available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			svc := newTestService(t, gen)
			if tt.noLLM {
				svc = newTestService(t, nil)
			}
			result, err := mcpAsk(svc)(context.Background(), makeCallToolRequest("ask", tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected IsError")
			}
			if got := toolText(t, result); !strings.Contains(got, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", got, tt.wantMsg)
			}
		})
	}
}

func TestMCPTool_GetHistoryUnknown(t *testing.T) {
	svc := newTestService(t, &mockGenerator{})
	result, err := mcpGetHistory(svc)(context.Background(), makeCallToolRequest("get_history", map[string]interface{}{
		"session_id": "missing",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected IsError for unknown session")
	}
}

func TestMCPTool_ListFAQs(t *testing.T) {
	svc := newTestService(t, nil)
	result, err := mcpListFAQs(svc)(context.Background(), makeCallToolRequest("list_faqs", nil))
	if err != nil || result.IsError {
		t.Fatalf("list_faqs failed: %v", err)
	}
	var entries []faq.Entry
	if err := json.Unmarshal([]byte(toolText(t, result)), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(testFAQs) {
		t.Errorf("got %d entries, want %d", len(entries), len(testFAQs))
	}
}

func TestMCPResource_FAQs(t *testing.T) {
	svc := newTestService(t, nil)
	contents, err := mcpResourceFAQs(svc)(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "faq://all"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "faq://all" || tc.MIMEType != "application/json" {
		t.Errorf("contents = %+v", tc)
	}
	if !strings.Contains(tc.Text, "How do I reset my password?") {
		t.Errorf("resource text = %s", tc.Text)
	}
}

func TestMCPServer_ConcurrentAsks(t *testing.T) {
	svc := newTestService(t, &mockGenerator{})
	id := mcpNewTestSession(t, mcpNewSession(svc))
	handler := mcpAsk(svc)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
				"session_id": id,
				"query":      "business hours?",
			}))
			if err != nil || result.IsError {
				t.Errorf("concurrent ask failed: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs, err := svc.History(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 10 {
		t.Errorf("stored %d messages, want 10", len(msgs))
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(newTestService(t, nil), "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
