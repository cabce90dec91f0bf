package policy

import (
	"fmt"
	"slices"
	"strings"
)

// ScopeAdmin grants every tool.
const ScopeAdmin = "admin"

// OperationScope returns the session scope needed to run tools of an
// operation, e.g. "lakeformation:grant".
func OperationScope(operation string) string {
	return "lakeformation:" + strings.ToLower(strings.TrimSpace(operation))
}

// RequireScopes checks that the session's granted scopes cover the tool's
// required scopes. No required scopes means no gate; ScopeAdmin allows all.
func RequireScopes(toolName string, required, granted []string) error {
	need := dedupeScopes(required)
	if len(need) == 0 {
		return nil
	}

	have := dedupeScopes(granted)
	if slices.Contains(have, ScopeAdmin) {
		return nil
	}

	var missing []string
	for _, scope := range need {
		if !slices.Contains(have, scope) {
			missing = append(missing, scope)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	tool := strings.TrimSpace(toolName)
	if tool == "" {
		tool = "unknown"
	}
	grantedSummary := "none"
	if len(have) > 0 {
		grantedSummary = strings.Join(have, ", ")
	}
	return fmt.Errorf("tool %s missing required scope(s): %s (granted: %s)", tool, strings.Join(missing, ", "), grantedSummary)
}

func dedupeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		trimmed := strings.TrimSpace(scope)
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
