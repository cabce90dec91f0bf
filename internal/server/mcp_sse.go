package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/datalake-tools/lakeformation-mcp/internal/audit"
)

const (
	mcpSSEEndpoint     = "/sse"
	mcpMessageEndpoint = "/message"
)

// MCPToolServer is an mcp-go server whose tool calls for unregistered names
// are answered by the dispatcher instead of a protocol error.
type MCPToolServer struct {
	mcp      *mcpserver.MCPServer
	registry *ToolRegistry
	handler  mcpserver.ToolHandlerFunc
}

// NewMCPServer registers every catalog tool on an mcp-go server. Tool calls
// run through the same policy checks and caller as the other transports.
func NewMCPServer(
	registry *ToolRegistry,
	authorizer ToolAuthorizer,
	caller ToolCaller,
	version string,
	logger zerolog.Logger,
) *MCPToolServer {
	s := mcpserver.NewMCPServer(
		registry.Name(),
		strings.TrimSpace(version),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	handler := mcpToolHandler(registry, authorizer, caller, audit.NewLogger(logger), logger)
	for _, tool := range registry.List() {
		s.AddTool(mcpTool(tool), handler)
	}
	return &MCPToolServer{mcp: s, registry: registry, handler: handler}
}

// HandleMessage processes one JSON-RPC message.
func (s *MCPToolServer) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	if response, ok := s.handleUnregisteredToolCall(ctx, message); ok {
		return response
	}
	return s.mcp.HandleMessage(ctx, message)
}

// handleUnregisteredToolCall answers tools/call requests naming a tool the
// registry does not hold. Anything else is left to mcp-go.
func (s *MCPToolServer) handleUnregisteredToolCall(ctx context.Context, message json.RawMessage) (mcp.JSONRPCMessage, bool) {
	var envelope struct {
		ID     *mcp.RequestId `json:"id"`
		Method string         `json:"method"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		return nil, false
	}
	if envelope.ID == nil || envelope.ID.IsNil() || envelope.Method != string(mcp.MethodToolsCall) {
		return nil, false
	}

	var req mcp.CallToolRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return nil, false
	}
	if _, ok := s.registry.Lookup(req.Params.Name); ok {
		return nil, false
	}

	result, err := s.handler(ctx, req)
	if err != nil {
		result = mcp.NewToolResultError(err.Error())
	}
	return mcp.JSONRPCResponse{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      *envelope.ID,
		Result:  result,
	}, true
}

// unregisteredToolCalls intercepts tools/call messages for unregistered
// names on the SSE message endpoint and queues the result on the caller's
// stream, as mcp-go does for registered tools.
func unregisteredToolCalls(s *MCPToolServer, sse *mcpserver.SSEServer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.URL.Query().Get("sessionId")
			if r.Method != http.MethodPost || sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "reading request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			response, ok := s.handleUnregisteredToolCall(withMCPSessionID(r.Context(), sessionID), body)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if err := sse.SendEventToSession(sessionID, response); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		})
	}
}

type mcpSessionIDKey struct{}

func withMCPSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, mcpSessionIDKey{}, id)
}

func mcpSessionID(ctx context.Context) string {
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	id, _ := ctx.Value(mcpSessionIDKey{}).(string)
	return id
}

func mcpTool(tool ToolSpec) mcp.Tool {
	schema, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return mcp.NewTool(tool.Name, mcp.WithDescription(tool.Description))
	}
	return mcp.NewToolWithRawSchema(tool.Name, tool.Description, schema)
}

func mcpToolHandler(
	registry *ToolRegistry,
	authorizer ToolAuthorizer,
	caller ToolCaller,
	auditLogger *audit.Logger,
	logger zerolog.Logger,
) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		started := time.Now()
		name := req.Params.Name
		args := req.GetArguments()
		principal, _ := sessionPrincipalFromContext(ctx)

		event := audit.ToolCallCompletion{
			Transport: "sse",
			ToolName:  name,
			Mode:      resolvedMode(authorizer),
			CallerSub: principal.Subject,
			Arguments: args,
			SessionID: mcpSessionID(ctx),
			Result:    "error",
		}
		defer func() {
			event.Duration = time.Since(started)
			auditLogger.Complete(event)
		}()

		logger.Info().Str("transport", "sse").Str("tool", name).Msg("received tool call")
		payload, err := invokeTool(ctx, registry, authorizer, principal, caller, name, args)
		if err != nil {
			event.ErrorDetail = toolErrorMessage(err)
			event.ResponseCode = toolErrorStatus(err)
			return mcp.NewToolResultError(toolErrorMessage(err)), nil
		}
		event.Result = "success"
		return mcp.NewToolResultText(toolSuccessText(name, payload)), nil
	}
}

// registerMCPSSERoutes mounts the mcp-go SSE endpoints behind bearer auth.
func registerMCPSSERoutes(r chi.Router, s *MCPToolServer, authn SessionAuthenticator) {
	sse := mcpserver.NewSSEServer(s.mcp,
		mcpserver.WithSSEEndpoint(mcpSSEEndpoint),
		mcpserver.WithMessageEndpoint(mcpMessageEndpoint),
		mcpserver.WithSSEContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if principal, ok := sessionPrincipalFromContext(r.Context()); ok {
				return withSessionPrincipal(ctx, principal)
			}
			return ctx
		}),
	)

	r.Group(func(r chi.Router) {
		r.Use(requireSession(authn))
		r.Handle(mcpSSEEndpoint, sse.SSEHandler())
		r.With(unregisteredToolCalls(s, sse)).Handle(mcpMessageEndpoint, sse.MessageHandler())
	})
}
