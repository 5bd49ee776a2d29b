package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/sitechat/internal/service"
)

const maxQueryLen = 4000

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Query        string `json:"query" jsonschema:"the question to answer"`
	ClientID     string `json:"client_id,omitempty" jsonschema:"restrict retrieval to this tenant's documents"`
	SystemPrompt string `json:"system_prompt,omitempty" jsonschema:"replace the default system prompt"`
}

// NewAskHandler answers a one-off question.
func NewAskHandler(deps *Dependencies) mcp.ToolHandlerFor[AskInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, any, error) {
		if input.Query == "" {
			return ErrorResult("Query cannot be empty", "Provide a question"), nil, nil
		}
		if len(input.Query) > maxQueryLen {
			return ErrorResult("Query is too long", "Keep it under 4000 characters"), nil, nil
		}

		answer := deps.Search.Answer(ctx, service.AnswerRequest{
			Query:        input.Query,
			ClientID:     input.ClientID,
			SystemPrompt: input.SystemPrompt,
		})
		deps.Logger.Info("ask completed", "query", truncateLog(input.Query), "sources", len(answer.Sources))
		return JSONResult(answer), nil, nil
	}
}

// ChatInput defines the input schema for the chat tool.
type ChatInput struct {
	Message   string `json:"message" jsonschema:"the user's message"`
	SessionID string `json:"session_id,omitempty" jsonschema:"continue this session; omit to start a new one"`
	ClientID  string `json:"client_id,omitempty" jsonschema:"restrict retrieval to this tenant's documents"`
}

// NewChatHandler answers within a stored session.
func NewChatHandler(deps *Dependencies) mcp.ToolHandlerFor[ChatInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatInput) (*mcp.CallToolResult, any, error) {
		resp, err := deps.Chat.Chat(ctx, service.ChatRequest{
			Message:   input.Message,
			SessionID: input.SessionID,
			ClientID:  input.ClientID,
		})
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return ErrorResult(err.Error(), "Provide a non-empty message"), nil, nil
		case errors.Is(err, service.ErrSessionClient):
			return ErrorResult("Session belongs to another client", "Omit session_id to start a new session"), nil, nil
		case err != nil:
			deps.Logger.Error("chat failed", "error", err)
			return ErrorResult("Chat failed", ""), nil, nil
		}
		return JSONResult(resp), nil, nil
	}
}

func truncateLog(s string) string {
	r := []rune(s)
	if len(r) > 30 {
		return string(r[:30]) + "..."
	}
	return s
}
