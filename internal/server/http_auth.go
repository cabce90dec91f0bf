package server

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/datalake-tools/lakeformation-mcp/internal/policy"
)

var (
	// ErrSessionTokenMissing indicates no MCP session token was configured.
	ErrSessionTokenMissing = errors.New("mcp session token is not configured")
	// ErrBearerTokenMissing indicates Authorization header did not contain a bearer token.
	ErrBearerTokenMissing = errors.New("missing or malformed Authorization bearer token")
	// ErrBearerTokenInvalid indicates provided bearer token did not match configured session token.
	ErrBearerTokenInvalid = errors.New("invalid bearer token for MCP session")
)

const (
	localStdioSubject = "local-stdio"
	sessionSubject    = "mcp-session"
)

// SessionPrincipal carries caller identity for tool policy checks.
type SessionPrincipal struct {
	Subject string
	Scopes  []string
}

// SessionAuthenticator authenticates HTTP and stdio MCP calls.
type SessionAuthenticator interface {
	AuthenticateHTTP(r *http.Request) (SessionPrincipal, error)
	AuthenticateStdio() (SessionPrincipal, error)
}

// TokenSessionAuthenticator validates incoming bearer tokens against a configured
// MCP session token and exposes resolved principal scopes.
type TokenSessionAuthenticator struct {
	token     string
	principal SessionPrincipal
}

// NewTokenSessionAuthenticator creates a new session authenticator.
//
// Scope derivation:
// - JWT-like tokens use parsed scope claims.
// - Opaque tokens get the admin scope.
func NewTokenSessionAuthenticator(token string) *TokenSessionAuthenticator {
	trimmed := strings.TrimSpace(token)
	return &TokenSessionAuthenticator{
		token:     trimmed,
		principal: deriveSessionPrincipal(trimmed),
	}
}

// AuthenticateHTTP validates Authorization bearer token.
func (a *TokenSessionAuthenticator) AuthenticateHTTP(r *http.Request) (SessionPrincipal, error) {
	if strings.TrimSpace(a.token) == "" {
		return SessionPrincipal{}, fmt.Errorf("%w; set LAKEFORMATION_MCP_TOKEN", ErrSessionTokenMissing)
	}
	presented := parseBearerToken(r.Header.Get("Authorization"))
	if presented == "" {
		return SessionPrincipal{}, ErrBearerTokenMissing
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(a.token)) != 1 {
		return SessionPrincipal{}, ErrBearerTokenInvalid
	}
	return clonePrincipal(a.principal), nil
}

// AuthenticateStdio returns the principal for a stdio session. The process
// owner already controls the channel, so without a configured token the
// session runs as a local admin principal.
func (a *TokenSessionAuthenticator) AuthenticateStdio() (SessionPrincipal, error) {
	if strings.TrimSpace(a.token) == "" {
		return SessionPrincipal{Subject: localStdioSubject, Scopes: []string{policy.ScopeAdmin}}, nil
	}
	return clonePrincipal(a.principal), nil
}

func clonePrincipal(p SessionPrincipal) SessionPrincipal {
	clonedScopes := make([]string, len(p.Scopes))
	copy(clonedScopes, p.Scopes)
	return SessionPrincipal{
		Subject: p.Subject,
		Scopes:  clonedScopes,
	}
}

func deriveSessionPrincipal(token string) SessionPrincipal {
	subject := sessionSubject
	scopes := []string{policy.ScopeAdmin}

	if parsedSubject, parsedScopes, ok := parseJWTPrincipal(token); ok {
		if parsedSubject != "" {
			subject = parsedSubject
		}
		if len(parsedScopes) > 0 {
			scopes = parsedScopes
		} else {
			scopes = nil
		}
	}

	if len(scopes) == 0 {
		scopes = nil
	}

	return SessionPrincipal{
		Subject: subject,
		Scopes:  scopes,
	}
}

func parseBearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseJWTPrincipal(token string) (string, []string, bool) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return "", nil, false
	}

	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, false
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		return "", nil, false
	}

	subject, _ := payload["sub"].(string)
	scopes := parseScopeClaims(payload["scope"])
	if len(scopes) == 0 {
		scopes = parseScopeClaims(payload["scopes"])
	}
	if len(scopes) == 0 {
		scopes = parseScopeClaims(payload["scp"])
	}
	for _, role := range parseScopeClaims(payload["roles"]) {
		if role == policy.ScopeAdmin {
			scopes = append(scopes, policy.ScopeAdmin)
			break
		}
	}

	if len(scopes) > 0 {
		// De-duplicate while preserving order.
		normalized := make([]string, 0, len(scopes))
		seen := make(map[string]struct{}, len(scopes))
		for _, scope := range scopes {
			trimmed := strings.TrimSpace(scope)
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			normalized = append(normalized, trimmed)
		}
		scopes = normalized
	}

	return strings.TrimSpace(subject), scopes, true
}

func parseScopeClaims(value any) []string {
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		parts := strings.Fields(typed)
		if len(parts) == 0 {
			return nil
		}
		return parts
	case []string:
		result := make([]string, 0, len(typed))
		for _, scope := range typed {
			trimmed := strings.TrimSpace(scope)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	case []any:
		result := make([]string, 0, len(typed))
		for _, item := range typed {
			if asString, ok := item.(string); ok {
				trimmed := strings.TrimSpace(asString)
				if trimmed != "" {
					result = append(result, trimmed)
				}
			}
		}
		return result
	default:
		return nil
	}
}

func requireToolScopes(tool ToolSpec, principal SessionPrincipal) error {
	return policy.RequireScopes(tool.Name, tool.RequiredScopes, principal.Scopes)
}

type principalContextKey struct{}

func withSessionPrincipal(ctx context.Context, principal SessionPrincipal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func sessionPrincipalFromContext(ctx context.Context) (SessionPrincipal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(SessionPrincipal)
	return principal, ok
}

// requireSession rejects requests without a valid bearer token and stores the
// authenticated principal in the request context.
func requireSession(authn SessionAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticateHTTPToolCall(r, authn)
			if err != nil {
				status, detail := authFailureResponse(err)
				respondProblem(w, r, status, detail)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSessionPrincipal(r.Context(), principal)))
		})
	}
}
