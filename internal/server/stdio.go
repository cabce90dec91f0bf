package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datalake-tools/lakeformation-mcp/internal/audit"
)

const (
	rpcCodeInvalidRequest = -32600
	rpcCodeMethodNotFound = -32601
	rpcCodeInvalidParams  = -32602
	rpcCodeInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
	Capabilities struct {
		Tools struct {
			ListChanged bool `json:"listChanged"`
		} `json:"tools"`
	} `json:"capabilities"`
}

type listToolsResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type callToolResult struct {
	Content           []contentBlock `json:"content"`
	IsError           bool           `json:"isError"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// RunStdio handles MCP requests over stdin/stdout using JSON-RPC line-delimited
// messages. Requests are handled one at a time in arrival order.
func RunStdio(
	ctx context.Context,
	in io.Reader,
	out io.Writer,
	registry *ToolRegistry,
	authorizer ToolAuthorizer,
	principal SessionPrincipal,
	caller ToolCaller,
	version string,
	logger zerolog.Logger,
) error {
	scanner := bufio.NewScanner(in)
	// Allow larger requests in stdio mode (up to 4 MiB per message).
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	session := stdioSession{
		id:         uuid.NewString(),
		registry:   registry,
		authorizer: authorizer,
		principal:  principal,
		caller:     caller,
		version:    version,
		logger:     logger,
		audit:      audit.NewLogger(logger),
	}
	logger.Info().Str("transport", "stdio").Str("session_id", session.id).Msg("stdio session started")

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			if writeErr := writeRPC(writer, rpcResponse{
				JSONRPC: "2.0",
				Error: &rpcError{
					Code:    rpcCodeInvalidRequest,
					Message: fmt.Sprintf("invalid json-rpc payload: %v", err),
				},
			}); writeErr != nil {
				return writeErr
			}
			continue
		}

		resp, ok := session.handle(ctx, req)
		if !ok {
			continue
		}
		if err := writeRPC(writer, resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdio request: %w", err)
	}
	return nil
}

func writeRPC(w *bufio.Writer, resp rpcResponse) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding rpc response: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("writing rpc response: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing rpc newline: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing rpc response: %w", err)
	}
	return nil
}

type stdioSession struct {
	id         string
	registry   *ToolRegistry
	authorizer ToolAuthorizer
	principal  SessionPrincipal
	caller     ToolCaller
	version    string
	logger     zerolog.Logger
	audit      *audit.Logger
}

// handle returns false for notifications, which get no response.
func (s *stdioSession) handle(ctx context.Context, req rpcRequest) (rpcResponse, bool) {
	response := rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	if strings.TrimSpace(req.JSONRPC) != "2.0" {
		response.Error = &rpcError{
			Code:    rpcCodeInvalidRequest,
			Message: "jsonrpc must be 2.0",
		}
		return response, true
	}

	method := strings.TrimSpace(req.Method)
	if req.ID == nil && strings.HasPrefix(method, "notifications/") {
		return rpcResponse{}, false
	}

	switch method {
	case "initialize":
		response.Result = newInitializeResult(s.registry, s.version)
		return response, true

	case "ping":
		response.Result = map[string]any{}
		return response, true

	case "tools/list":
		response.Result = listToolsResult{Tools: toolDescriptors(s.registry)}
		return response, true

	case "tools/call":
		if len(req.Params) == 0 {
			response.Error = &rpcError{
				Code:    rpcCodeInvalidParams,
				Message: "missing params",
			}
			return response, true
		}
		var params callToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			response.Error = &rpcError{
				Code:    rpcCodeInvalidParams,
				Message: fmt.Sprintf("invalid tools/call params: %v", err),
			}
			return response, true
		}
		response.Result = s.callTool(ctx, req.ID, params)
		return response, true

	default:
		response.Error = &rpcError{
			Code:    rpcCodeMethodNotFound,
			Message: fmt.Sprintf("unknown method: %s", method),
		}
		return response, true
	}
}

func (s *stdioSession) callTool(ctx context.Context, id any, params callToolParams) callToolResult {
	started := time.Now()
	name := params.Name
	mode := resolvedMode(s.authorizer)
	s.logger.Info().Str("transport", "stdio").Str("tool", name).Msg("received tool call")

	event := audit.ToolCallCompletion{
		RequestID: fmt.Sprint(id),
		SessionID: s.id,
		Transport: "stdio",
		ToolName:  name,
		Mode:      mode,
		CallerSub: s.principal.Subject,
		Arguments: params.Arguments,
		Result:    "error",
	}
	defer func() {
		event.Duration = time.Since(started)
		s.audit.Complete(event)
	}()

	payload, err := invokeTool(ctx, s.registry, s.authorizer, s.principal, s.caller, name, params.Arguments)
	if err != nil {
		event.ErrorDetail = toolErrorMessage(err)
		event.ResponseCode = toolErrorStatus(err)
		return toolCallResultFromError(name, mode, err)
	}
	event.Result = "success"
	return toolCallResultFromExecution(name, mode, payload)
}

func newInitializeResult(registry *ToolRegistry, version string) initializeResult {
	result := initializeResult{ProtocolVersion: defaultProtocolVersion}
	result.ServerInfo.Name = registry.Name()
	result.ServerInfo.Version = strings.TrimSpace(version)
	result.Capabilities.Tools.ListChanged = false
	return result
}
