package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/datalake-tools/lakeformation-mcp/internal/catalog"
	"github.com/datalake-tools/lakeformation-mcp/internal/lakeformation"
	"github.com/datalake-tools/lakeformation-mcp/internal/permission"
	"github.com/datalake-tools/lakeformation-mcp/internal/policy"
	"github.com/datalake-tools/lakeformation-mcp/internal/tools"
)

const (
	testSessionToken = "http-session-token"
	testPrincipalARN = "arn:aws:iam::123:role/analyst"
)

type stubCaller struct {
	names   []string
	payload map[string]any
	err     error
}

func (c *stubCaller) Call(_ context.Context, name string, _ map[string]any) (map[string]any, error) {
	c.names = append(c.names, name)
	if c.err != nil {
		return nil, c.err
	}
	if c.payload != nil {
		return c.payload, nil
	}
	return map[string]any{"message": "done " + name}, nil
}

type stubPermissionService struct {
	calls int
	err   error
}

func (s *stubPermissionService) Apply(_ context.Context, _ permission.Request) (lakeformation.Outcome, error) {
	s.calls++
	if s.err != nil {
		return lakeformation.Outcome{}, s.err
	}
	return lakeformation.Outcome{RequestID: "req-1"}, nil
}

func mustTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func mustTestRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	registry, err := NewToolRegistry(mustTestCatalog(t))
	require.NoError(t, err)
	return registry
}

func mustGuard(t *testing.T, mode string) *policy.Guard {
	t.Helper()
	guard, err := policy.NewGuard(mode)
	require.NoError(t, err)
	return guard
}

func newTestRunner(t *testing.T, service *stubPermissionService) *tools.Runner {
	t.Helper()
	return tools.NewRunner(mustTestCatalog(t), service, zerolog.Nop())
}

func adminPrincipal() SessionPrincipal {
	return SessionPrincipal{Subject: "tester", Scopes: []string{policy.ScopeAdmin}}
}

func testJWTToken(t *testing.T, subject string, scopes []string) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	encodedScopes := ""
	for idx, scope := range scopes {
		if idx > 0 {
			encodedScopes += ","
		}
		encodedScopes += fmt.Sprintf("%q", scope)
	}
	payload := fmt.Sprintf(`{"sub":%q,"scope":[%s]}`, subject, encodedScopes)
	payloadEncoded := base64.RawURLEncoding.EncodeToString([]byte(payload))

	return fmt.Sprintf("%s.%s.", header, payloadEncoded)
}
