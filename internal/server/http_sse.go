package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/datalake-tools/lakeformation-mcp/internal/audit"
)

type httpToolRoutes struct {
	registry    *ToolRegistry
	authorizer  ToolAuthorizer
	sessionAuth SessionAuthenticator
	caller      ToolCaller
	version     string
	logger      zerolog.Logger
	audit       *audit.Logger
}

func registerMCPHTTPRoutes(
	r chi.Router,
	registry *ToolRegistry,
	authorizer ToolAuthorizer,
	sessionAuth SessionAuthenticator,
	caller ToolCaller,
	version string,
	logger zerolog.Logger,
) {
	h := &httpToolRoutes{
		registry:    registry,
		authorizer:  authorizer,
		sessionAuth: sessionAuth,
		caller:      caller,
		version:     version,
		logger:      logger,
		audit:       audit.NewLogger(logger),
	}
	r.Route("/mcp/v1", func(r chi.Router) {
		r.Post("/initialize", h.handleInitialize)
		r.Get("/tools", h.handleListTools)
		r.Post("/tools/call", h.handleCallTool)
		r.Post("/tools/call/sse", h.handleCallToolSSE)
	})
}

func (h *httpToolRoutes) handleInitialize(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, newInitializeResult(h.registry, h.version))
}

func (h *httpToolRoutes) handleListTools(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, listToolsResult{Tools: toolDescriptors(h.registry)})
}

func (h *httpToolRoutes) newAuditEvent(r *http.Request, transport string) audit.ToolCallCompletion {
	requestID := middleware.GetReqID(r.Context())
	return audit.ToolCallCompletion{
		RequestID: requestID,
		SessionID: sessionIDFromHTTPRequest(r, requestID),
		Transport: transport,
		Mode:      resolvedMode(h.authorizer),
		Result:    "error",
	}
}

func (h *httpToolRoutes) handleCallTool(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	event := h.newAuditEvent(r, "http")
	defer func() {
		event.Duration = time.Since(started)
		h.audit.Complete(event)
	}()

	params, principal, status, detail, ok := h.parseCallToolRequest(r)
	event.ToolName = strings.TrimSpace(params.Name)
	event.CallerSub = principal.Subject
	event.Arguments = params.Arguments
	if !ok {
		event.ErrorDetail = detail
		event.ResponseCode = status
		respondProblem(w, r, status, detail)
		return
	}

	h.logger.Info().Str("transport", "http").Str("tool", event.ToolName).Msg("received tool call")
	payload, err := invokeTool(r.Context(), h.registry, h.authorizer, principal, h.caller, params.Name, params.Arguments)
	if err != nil {
		event.ErrorDetail = toolErrorMessage(err)
		event.ResponseCode = toolErrorStatus(err)
		respondProblem(w, r, toolErrorStatus(err), toolErrorMessage(err))
		return
	}
	event.Result = "success"
	event.ResponseCode = http.StatusOK
	respondJSON(w, http.StatusOK, toolCallResultFromExecution(event.ToolName, event.Mode, payload))
}

func (h *httpToolRoutes) handleCallToolSSE(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	event := h.newAuditEvent(r, "http-sse")
	defer func() {
		event.Duration = time.Since(started)
		h.audit.Complete(event)
	}()

	params, principal, status, detail, ok := h.parseCallToolRequest(r)
	event.ToolName = strings.TrimSpace(params.Name)
	event.CallerSub = principal.Subject
	event.Arguments = params.Arguments
	if !ok {
		event.ErrorDetail = detail
		event.ResponseCode = status
		respondProblem(w, r, status, detail)
		return
	}

	controller := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.logger.Info().Str("transport", "http-sse").Str("tool", event.ToolName).Msg("streaming tool call")

	if err := writeSSEEvent(r.Context(), w, "accepted", map[string]any{
		"tool":      event.ToolName,
		"status":    "accepted",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		event.ErrorDetail = err.Error()
		event.ResponseCode = http.StatusInternalServerError
		return
	}
	_ = controller.Flush()

	var result callToolResult
	payload, err := invokeTool(r.Context(), h.registry, h.authorizer, principal, h.caller, params.Name, params.Arguments)
	if err != nil {
		result = toolCallResultFromError(event.ToolName, event.Mode, err)
		event.ErrorDetail = toolErrorMessage(err)
		event.ResponseCode = toolErrorStatus(err)
	} else {
		result = toolCallResultFromExecution(event.ToolName, event.Mode, payload)
		event.Result = "success"
		event.ResponseCode = http.StatusOK
	}

	if err := writeSSEEvent(r.Context(), w, "result", result); err != nil {
		event.Result = "error"
		event.ErrorDetail = err.Error()
		event.ResponseCode = http.StatusInternalServerError
		return
	}
	_ = controller.Flush()

	_ = writeSSEEvent(r.Context(), w, "done", map[string]any{"status": "done"})
	_ = controller.Flush()
}

// parseCallToolRequest authenticates and decodes a call. On failure it returns
// the status and detail to report.
func (h *httpToolRoutes) parseCallToolRequest(r *http.Request) (callToolParams, SessionPrincipal, int, string, bool) {
	principal, err := authenticateHTTPToolCall(r, h.sessionAuth)
	if err != nil {
		status, detail := authFailureResponse(err)
		return callToolParams{}, SessionPrincipal{}, status, detail, false
	}

	var params callToolParams
	if err := decodeJSONStrict(r, &params); err != nil {
		return callToolParams{}, principal, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), false
	}
	if strings.TrimSpace(params.Name) == "" {
		return params, principal, http.StatusBadRequest, "tool name is required", false
	}
	return params, principal, 0, "", true
}

func authenticateHTTPToolCall(r *http.Request, authn SessionAuthenticator) (SessionPrincipal, error) {
	if authn == nil {
		return SessionPrincipal{}, fmt.Errorf("%w; set LAKEFORMATION_MCP_TOKEN", ErrSessionTokenMissing)
	}
	return authn.AuthenticateHTTP(r)
}

func authFailureResponse(err error) (int, string) {
	if err == nil {
		return http.StatusUnauthorized, "unauthorized"
	}
	switch {
	case errors.Is(err, ErrSessionTokenMissing):
		return http.StatusUnauthorized, "MCP session token is not configured; set LAKEFORMATION_MCP_TOKEN"
	case errors.Is(err, ErrBearerTokenMissing):
		return http.StatusUnauthorized, "missing or malformed Authorization header; expected Bearer <token>"
	case errors.Is(err, ErrBearerTokenInvalid):
		return http.StatusUnauthorized, "invalid bearer token for MCP session"
	default:
		return http.StatusUnauthorized, err.Error()
	}
}

func writeSSEEvent(ctx context.Context, w http.ResponseWriter, event string, payload any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", strings.TrimSpace(event)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}

func decodeJSONStrict(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("request must contain exactly one JSON object")
	}
	return nil
}

func sessionIDFromHTTPRequest(r *http.Request, fallback string) string {
	if r == nil {
		return strings.TrimSpace(fallback)
	}
	if sessionID := strings.TrimSpace(r.Header.Get("MCP-Session-ID")); sessionID != "" {
		return sessionID
	}
	if sessionID := strings.TrimSpace(r.Header.Get("X-Session-ID")); sessionID != "" {
		return sessionID
	}
	return strings.TrimSpace(fallback)
}
