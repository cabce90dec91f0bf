package server

import (
	"fmt"

	"github.com/datalake-tools/lakeformation-mcp/internal/policy"
)

// ToolAuthorizer is the central policy gate for all tool executions.
type ToolAuthorizer interface {
	Mode() string
	AuthorizeTool(name, operation string) error
}

func authorizeToolCall(authorizer ToolAuthorizer, tool ToolSpec) error {
	if authorizer == nil {
		return nil
	}
	if err := authorizer.AuthorizeTool(tool.Name, tool.Operation); err != nil {
		return fmt.Errorf("tool authorization denied: %w", err)
	}
	return nil
}

func resolvedMode(authorizer ToolAuthorizer) string {
	if authorizer == nil {
		return policy.ModeGrantRevoke
	}
	return authorizer.Mode()
}
