// Package tools executes permission tool calls against Lake Formation.
package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	"github.com/datalake-tools/lakeformation-mcp/internal/catalog"
	"github.com/datalake-tools/lakeformation-mcp/internal/lakeformation"
	"github.com/datalake-tools/lakeformation-mcp/internal/metrics"
	"github.com/datalake-tools/lakeformation-mcp/internal/permission"
)

const (
	resultSuccess          = "success"
	resultInvalid          = "invalid"
	resultUnknownTool      = "unknown_tool"
	resultMissingArguments = "missing_arguments"
	resultServiceError     = "service_error"
	resultError            = "error"
)

// PermissionService applies one permission request.
type PermissionService interface {
	Apply(ctx context.Context, req permission.Request) (lakeformation.Outcome, error)
}

// PermissionResult is the outcome of one dispatched call.
type PermissionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ToolError carries an HTTP-style status code and message for tool failures.
type ToolError struct {
	statusCode int
	message    string
}

// Error implements error.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.message)
}

// StatusCode returns the attached status code.
func (e *ToolError) StatusCode() int {
	if e == nil || e.statusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.statusCode
}

// MissingArgumentError reports an absent argument bag or absent required fields.
type MissingArgumentError struct {
	Fields []string
}

// Error implements error.
func (e *MissingArgumentError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "Missing arguments"
	}
	return "Missing required argument(s): " + strings.Join(e.Fields, ", ")
}

// StatusCode maps missing arguments to 400.
func (e *MissingArgumentError) StatusCode() int {
	return http.StatusBadRequest
}

// Runner resolves tool calls to a factory call and one service call. It keeps
// no state between calls.
type Runner struct {
	catalog *catalog.Catalog
	factory *permission.Factory
	service PermissionService
	logger  zerolog.Logger
}

// NewRunner creates a runner over the tool catalog and a permission service.
func NewRunner(c *catalog.Catalog, service PermissionService, logger zerolog.Logger) *Runner {
	return &Runner{
		catalog: c,
		factory: permission.NewFactory(),
		service: service,
		logger:  logger.With().Str("component", "tools").Logger(),
	}
}

type permissionArgs struct {
	Table        string   `mapstructure:"table"`
	Columns      []string `mapstructure:"columns"`
	DatabaseName string   `mapstructure:"databaseName"`
	TagKey       string   `mapstructure:"tagKey"`
	TagValues    []string `mapstructure:"tagValues"`
	Principal    string   `mapstructure:"principal"`
	Permissions  []string `mapstructure:"permissions"`
}

// Dispatch runs one tool call and reports it as a PermissionResult.
func (r *Runner) Dispatch(ctx context.Context, name string, args map[string]any) PermissionResult {
	payload, err := r.Call(ctx, name, args)
	if err != nil {
		return PermissionResult{Success: false, Message: err.Error()}
	}
	message, _ := payload["message"].(string)
	return PermissionResult{Success: true, Message: message}
}

// Call executes one tool by name and returns JSON-like map content. A nil
// args map means the caller sent no arguments at all.
func (r *Runner) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	payload, err := r.call(ctx, name, args)
	metrics.ToolCalls.WithLabelValues(metricToolLabel(r.catalog, name), resultLabel(err)).Inc()
	return payload, err
}

func (r *Runner) call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if args == nil {
		return nil, &MissingArgumentError{}
	}

	tool, ok := r.catalog.Lookup(name)
	if !ok {
		return nil, &ToolError{
			statusCode: http.StatusNotFound,
			message:    fmt.Sprintf("Unknown tool: %s", name),
		}
	}

	if missing := missingFields(tool.Required, args); len(missing) > 0 {
		return nil, &MissingArgumentError{Fields: missing}
	}
	if unknown := unknownFields(tool, args); len(unknown) > 0 {
		return nil, validationErrorf("unknown argument(s): %s", strings.Join(unknown, ", "))
	}

	var decoded permissionArgs
	if err := decodeArgs(args, &decoded); err != nil {
		return nil, err
	}

	req, err := r.build(tool, decoded)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	outcome, err := r.service.Apply(ctx, req)
	metrics.ServiceLatency.WithLabelValues(string(req.Operation()), resultLabel(err)).Observe(time.Since(started).Seconds())
	if err != nil {
		r.logger.Warn().Err(err).Str("tool", tool.Name).Msg("lake formation call failed")
		return nil, err
	}

	return map[string]any{
		"message":     req.Confirmation(),
		"operation":   string(req.Operation()),
		"kind":        string(req.Resource().Kind()),
		"principal":   req.PrincipalARN(),
		"permissions": req.PermissionNames(),
		"targets":     req.Resource().Targets(),
		"requestId":   outcome.RequestID,
	}, nil
}

func (r *Runner) build(tool catalog.ToolDescriptor, args permissionArgs) (permission.Request, error) {
	switch tool.Kind {
	case permission.KindTable:
		return r.factory.TableRequest(args.Table, args.Principal, tool.Operation, args.Permissions)
	case permission.KindTableColumns:
		return r.factory.TableColumnsRequest(args.Table, args.Columns, args.Principal, tool.Operation, args.Permissions)
	case permission.KindDatabase:
		return r.factory.DatabaseRequest(args.DatabaseName, args.Principal, tool.Operation, args.Permissions)
	case permission.KindLFTag:
		return r.factory.TagRequest(args.TagKey, args.TagValues, args.Principal, tool.Operation, args.Permissions)
	default:
		return permission.Request{}, fmt.Errorf("tool %s has unsupported kind %q", tool.Name, tool.Kind)
	}
}

func validationErrorf(format string, args ...any) error {
	return &ToolError{
		statusCode: http.StatusBadRequest,
		message:    fmt.Sprintf(format, args...),
	}
}

// missingFields lists required keys that are absent, null or blank strings.
func missingFields(required []string, args map[string]any) []string {
	var missing []string
	for _, key := range required {
		value, ok := args[key]
		if !ok || value == nil {
			missing = append(missing, key)
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func unknownFields(tool catalog.ToolDescriptor, args map[string]any) []string {
	properties, _ := tool.InputSchema["properties"].(map[string]any)
	var unknown []string
	for key := range args {
		if _, ok := properties[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)
	return unknown
}

func decodeArgs(args map[string]any, out *permissionArgs) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("building argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return validationErrorf("invalid tool arguments: %v", err)
	}
	return nil
}

func metricToolLabel(c *catalog.Catalog, name string) string {
	if _, ok := c.Lookup(name); ok {
		return name
	}
	return "unknown"
}

func resultLabel(err error) string {
	if err == nil {
		return resultSuccess
	}
	var missingErr *MissingArgumentError
	var validationErr *permission.ValidationError
	var toolErr *ToolError
	var serviceErr *lakeformation.ServiceError
	switch {
	case errors.As(err, &missingErr):
		return resultMissingArguments
	case errors.As(err, &serviceErr):
		return resultServiceError
	case errors.As(err, &validationErr):
		return resultInvalid
	case errors.As(err, &toolErr) && toolErr.StatusCode() == http.StatusNotFound:
		return resultUnknownTool
	case errors.As(err, &toolErr) && toolErr.StatusCode() == http.StatusBadRequest:
		return resultInvalid
	default:
		return resultError
	}
}
