// Package policy defines execution guardrails for MCP tool calls.
package policy

import (
	"fmt"
	"strings"
)

const (
	// ModeGrantRevoke allows both grant and revoke tools.
	ModeGrantRevoke = "grant-revoke"
	// ModeRevokeOnly allows only revoke tools, so an agent can tighten but
	// never widen access.
	ModeRevokeOnly = "revoke-only"
)

// Guard enforces mode-based tool execution policy.
type Guard struct {
	mode string
}

// NewGuard validates mode configuration and returns an execution guard.
func NewGuard(mode string) (*Guard, error) {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		normalized = ModeGrantRevoke
	}

	switch normalized {
	case ModeGrantRevoke, ModeRevokeOnly:
		return &Guard{mode: normalized}, nil
	default:
		return nil, fmt.Errorf("invalid mode %q (allowed: %s|%s)", normalized, ModeGrantRevoke, ModeRevokeOnly)
	}
}

// Mode returns the resolved mode.
func (g *Guard) Mode() string {
	if g == nil {
		return ModeGrantRevoke
	}
	return g.mode
}

// AuthorizeTool allows or denies tool execution based on the tool's operation.
func (g *Guard) AuthorizeTool(name, operation string) error {
	mode := g.Mode()
	toolName := strings.TrimSpace(name)
	if toolName == "" {
		toolName = "unknown"
	}

	switch strings.ToUpper(strings.TrimSpace(operation)) {
	case "REVOKE":
		return nil
	case "GRANT":
		if mode == ModeGrantRevoke {
			return nil
		}
		return fmt.Errorf("tool %s requires %s mode", toolName, ModeGrantRevoke)
	default:
		return fmt.Errorf("tool %s has unknown operation %q", toolName, strings.TrimSpace(operation))
	}
}
