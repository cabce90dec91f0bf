package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ToolCaller executes one tool call and returns structured content. A nil
// args map means the caller sent no arguments.
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

type statusCoder interface {
	StatusCode() int
}

// statusError is a transport-level rejection that never reached the caller.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string   { return e.message }
func (e *statusError) StatusCode() int { return e.status }

func newStatusError(status int, format string, args ...any) error {
	return &statusError{status: status, message: fmt.Sprintf(format, args...)}
}

func toolErrorStatus(err error) int {
	var withStatus statusCoder
	if err != nil && errors.As(err, &withStatus) {
		status := withStatus.StatusCode()
		if status >= 400 && status <= 599 {
			return status
		}
	}
	return http.StatusInternalServerError
}

func toolErrorMessage(err error) string {
	if err == nil {
		return "unknown tool execution error"
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "unknown tool execution error"
	}
	return message
}

func toolSuccessText(name string, payload map[string]any) string {
	if message, ok := payload["message"].(string); ok && strings.TrimSpace(message) != "" {
		return message
	}
	return fmt.Sprintf("tool %s executed", strings.TrimSpace(name))
}

func toolCallResultFromExecution(name, mode string, payload map[string]any) callToolResult {
	return callToolResult{
		Content: []contentBlock{
			{
				Type: "text",
				Text: toolSuccessText(name, payload),
			},
		},
		IsError: false,
		StructuredContent: map[string]any{
			"tool":   strings.TrimSpace(name),
			"mode":   strings.TrimSpace(mode),
			"status": "ok",
			"result": payload,
		},
	}
}

func toolCallResultFromError(name, mode string, err error) callToolResult {
	return callToolResult{
		Content: []contentBlock{
			{
				Type: "text",
				Text: toolErrorMessage(err),
			},
		},
		IsError: true,
		StructuredContent: map[string]any{
			"tool":   strings.TrimSpace(name),
			"mode":   strings.TrimSpace(mode),
			"status": "error",
			"error": map[string]any{
				"status":  toolErrorStatus(err),
				"message": toolErrorMessage(err),
			},
		},
	}
}

// invokeTool runs the shared pre-dispatch checks and the call itself. Unknown
// names go straight to the caller so the dispatcher reports them. A returned
// error has already been mapped to a status.
func invokeTool(
	ctx context.Context,
	registry *ToolRegistry,
	authorizer ToolAuthorizer,
	principal SessionPrincipal,
	caller ToolCaller,
	name string,
	args map[string]any,
) (map[string]any, error) {
	if tool, ok := registry.Lookup(name); ok {
		if err := authorizeToolCall(authorizer, tool); err != nil {
			return nil, &statusError{status: http.StatusForbidden, message: err.Error()}
		}
		if err := requireToolScopes(tool, principal); err != nil {
			return nil, &statusError{status: http.StatusForbidden, message: err.Error()}
		}
	}
	if caller == nil {
		return nil, newStatusError(http.StatusServiceUnavailable, "no tool caller configured")
	}
	return caller.Call(ctx, name, args)
}
