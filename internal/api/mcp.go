package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/supportbot/internal/support"
)

// NewMCPServer creates an MCP server exposing the support conversation as
// tools plus the FAQ knowledge base as a resource.
func NewMCPServer(svc *support.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"supportbot",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("supportbot: customer-support assistant. Start a session, ask questions within it, and read back the transcript. Replies flagged escalated need a human agent."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("new_session",
			mcp.WithDescription("Start a new customer-support conversation and return its session id."),
		),
		mcpNewSession(svc),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a customer question within a session. Returns the reply and whether it was escalated to a human agent."),
			mcp.WithString("session_id", mcp.Description("Session id returned by new_session"), mcp.Required()),
			mcp.WithString("query", mcp.Description("The customer's question"), mcp.Required()),
		),
		mcpAsk(svc),
	)

	s.AddTool(
		mcp.NewTool("get_history",
			mcp.WithDescription("Return the full transcript of a session in chronological order."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpGetHistory(svc),
	)

	s.AddTool(
		mcp.NewTool("list_faqs",
			mcp.WithDescription("List the FAQ knowledge base the assistant answers from."),
		),
		mcpListFAQs(svc),
	)

	s.AddResource(
		mcp.NewResource(
			"faq://all",
			"FAQ Knowledge Base",
			mcp.WithResourceDescription("All FAQ entries as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceFAQs(svc),
	)

	return s
}

func mcpNewSession(svc *support.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, err := svc.CreateSession(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create session: %v", err)), nil
		}
		return mcpJSON(sessionResponse{SessionID: sess.ID})
	}
}

func mcpAsk(svc *support.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil || sessionID == "" {
			return mcpError("session_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcpError("query is required"), nil
		}

		ans, err := svc.Ask(ctx, sessionID, query)
		switch {
		case errors.Is(err, support.ErrSessionNotFound):
			return mcpError("session not found"), nil
		case errors.Is(err, support.ErrUnavailable):
			return mcpError("LLM service not available"), nil
		case err != nil:
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		return mcpJSON(askResponse{Response: ans.Response, Escalated: ans.Escalated})
	}
}

func mcpGetHistory(svc *support.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil || sessionID == "" {
			return mcpError("session_id is required"), nil
		}
		msgs, err := svc.History(ctx, sessionID)
		if errors.Is(err, support.ErrSessionNotFound) {
			return mcpError("session not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load history: %v", err)), nil
		}
		return mcpJSON(historyResponse{SessionID: sessionID, Messages: toMessageResponses(msgs)})
	}
}

func mcpListFAQs(svc *support.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(svc.FAQs())
	}
}

func mcpResourceFAQs(svc *support.Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(svc.FAQs())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal faqs: %w", err)
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

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
