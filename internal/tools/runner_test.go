package tools

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/datalake-tools/lakeformation-mcp/internal/catalog"
	"github.com/datalake-tools/lakeformation-mcp/internal/lakeformation"
	"github.com/datalake-tools/lakeformation-mcp/internal/permission"
)

const analyst = "arn:aws:iam::123:role/analyst"

type stubService struct {
	calls    int
	requests []permission.Request
	err      error
}

func (s *stubService) Apply(_ context.Context, req permission.Request) (lakeformation.Outcome, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return lakeformation.Outcome{}, s.err
	}
	return lakeformation.Outcome{RequestID: "req-123"}, nil
}

func newTestRunner(t *testing.T, service *stubService) *Runner {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return NewRunner(c, service, zerolog.Nop())
}

func TestDispatch_GrantTableDefaults(t *testing.T) {
	service := &stubService{}
	runner := newTestRunner(t, service)

	result := runner.Dispatch(context.Background(), "grant_table_permissions", map[string]any{
		"table":     "sales.orders",
		"principal": analyst,
	})
	require.True(t, result.Success)
	require.Equal(t, "Granted [SELECT] on table sales.orders to "+analyst, result.Message)
	require.Equal(t, 1, service.calls)

	req := service.requests[0]
	require.Equal(t, permission.OperationGrant, req.Operation())
	require.Equal(t, []types.Permission{types.PermissionSelect}, req.Permissions())

	wire := req.Params("").Resource
	require.Equal(t, "sales", aws.ToString(wire.Table.DatabaseName))
	require.Equal(t, "orders", aws.ToString(wire.Table.Name))
}

func TestDispatch_RevokeLFTag(t *testing.T) {
	service := &stubService{}
	runner := newTestRunner(t, service)

	payload, err := runner.Call(context.Background(), "revoke_lf_tag_permissions", map[string]any{
		"tagKey":    "pii",
		"tagValues": []any{"true"},
		"principal": analyst,
	})
	require.NoError(t, err)
	require.Equal(t, "REVOKE", payload["operation"])
	require.Equal(t, "lf_tag", payload["kind"])
	require.Equal(t, []string{"DESCRIBE"}, payload["permissions"])
	require.Equal(t, []string{"pii=true"}, payload["targets"])
	require.Equal(t, "req-123", payload["requestId"])
	require.Equal(t, 1, service.calls)

	req := service.requests[0]
	require.Equal(t, permission.OperationRevoke, req.Operation())
	wire := req.Params("").Resource.LFTag
	require.Equal(t, "pii", aws.ToString(wire.TagKey))
	require.Equal(t, []string{"true"}, wire.TagValues)
}

func TestDispatch_ColumnsAndDatabaseWithExplicitPermissions(t *testing.T) {
	service := &stubService{}
	runner := newTestRunner(t, service)

	result := runner.Dispatch(context.Background(), "grant_table_columns_permissions", map[string]any{
		"table":       "sales.orders",
		"columns":     []any{"id", "amount"},
		"principal":   analyst,
		"permissions": []any{"select", "insert"},
	})
	require.True(t, result.Success, result.Message)

	result = runner.Dispatch(context.Background(), "revoke_database_permissions", map[string]any{
		"databaseName": "sales",
		"principal":    analyst,
	})
	require.True(t, result.Success, result.Message)
	require.Equal(t, "Revoked [CREATE_TABLE] on database sales from "+analyst, result.Message)

	require.Equal(t, 2, service.calls)
	require.Equal(t, []string{"SELECT", "INSERT"}, service.requests[0].PermissionNames())
	require.Equal(t, []string{"id", "amount"}, service.requests[0].Resource().Columns())
}

func TestDispatch_MissingArgumentsMakesNoCall(t *testing.T) {
	service := &stubService{}
	runner := newTestRunner(t, service)

	result := runner.Dispatch(context.Background(), "grant_table_permissions", nil)
	require.False(t, result.Success)
	require.Equal(t, "Missing arguments", result.Message)

	result = runner.Dispatch(context.Background(), "does_not_exist", nil)
	require.False(t, result.Success)
	require.Equal(t, "Missing arguments", result.Message)

	require.Zero(t, service.calls)
}

func TestDispatch_UnknownToolMakesNoCall(t *testing.T) {
	service := &stubService{}
	runner := newTestRunner(t, service)

	_, err := runner.Call(context.Background(), "grant_lakeformation_permissions_on_table", map[string]any{})
	require.EqualError(t, err, "Unknown tool: grant_lakeformation_permissions_on_table")

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	require.Equal(t, http.StatusNotFound, toolErr.StatusCode())
	require.Zero(t, service.calls)
}

func TestDispatch_MissingRequiredFieldsMakesNoCall(t *testing.T) {
	service := &stubService{}
	runner := newTestRunner(t, service)

	tests := []struct {
		tool    string
		args    map[string]any
		message string
	}{
		{tool: "grant_table_permissions", args: map[string]any{"table": "db.t"}, message: "Missing required argument(s): principal"},
		{tool: "grant_table_columns_permissions", args: map[string]any{"principal": analyst}, message: "Missing required argument(s): table, columns"},
		{tool: "revoke_database_permissions", args: map[string]any{"databaseName": " ", "principal": analyst}, message: "Missing required argument(s): databaseName"},
		{tool: "grant_lf_tag_permissions", args: map[string]any{}, message: "Missing required argument(s): tagKey, tagValues, principal"},
	}
	for _, tc := range tests {
		result := runner.Dispatch(context.Background(), tc.tool, tc.args)
		require.False(t, result.Success, tc.tool)
		require.Equal(t, tc.message, result.Message, tc.tool)
	}
	require.Zero(t, service.calls)
}

func TestDispatch_ValidationErrorsMakeNoCall(t *testing.T) {
	service := &stubService{}
	runner := newTestRunner(t, service)

	for _, table := range []string{".", "foo.", "nodothere"} {
		result := runner.Dispatch(context.Background(), "grant_table_permissions", map[string]any{
			"table":     table,
			"principal": analyst,
		})
		require.False(t, result.Success)
		require.Contains(t, result.Message, "invalid table identifier")

		result = runner.Dispatch(context.Background(), "revoke_table_columns_permissions", map[string]any{
			"table":     table,
			"columns":   []any{"id"},
			"principal": analyst,
		})
		require.False(t, result.Success)
		require.Contains(t, result.Message, "invalid table identifier")
	}

	result := runner.Dispatch(context.Background(), "grant_table_columns_permissions", map[string]any{
		"table":     "db.t",
		"columns":   []any{},
		"principal": analyst,
	})
	require.False(t, result.Success)
	require.Equal(t, "columns must contain at least one value", result.Message)

	result = runner.Dispatch(context.Background(), "grant_table_permissions", map[string]any{
		"table":     "db.t",
		"principal": analyst,
		"roleName":  analyst,
	})
	require.False(t, result.Success)
	require.Equal(t, "unknown argument(s): roleName", result.Message)

	result = runner.Dispatch(context.Background(), "grant_table_permissions", map[string]any{
		"table":     12,
		"principal": analyst,
	})
	require.False(t, result.Success)
	require.Contains(t, result.Message, "invalid tool arguments")

	require.Zero(t, service.calls)
}

func TestDispatch_ServiceErrorPassesThrough(t *testing.T) {
	service := &stubService{err: &lakeformation.ServiceError{
		Operation: permission.OperationGrant,
		Code:      "EntityNotFoundException",
		Message:   "Table orders not found",
	}}
	runner := newTestRunner(t, service)

	result := runner.Dispatch(context.Background(), "grant_table_permissions", map[string]any{
		"table":     "sales.orders",
		"principal": analyst,
	})
	require.False(t, result.Success)
	require.Equal(t, "Table orders not found", result.Message)
	require.Equal(t, 1, service.calls)
}

func TestResultLabel(t *testing.T) {
	require.Equal(t, resultSuccess, resultLabel(nil))
	require.Equal(t, resultMissingArguments, resultLabel(&MissingArgumentError{}))
	require.Equal(t, resultUnknownTool, resultLabel(&ToolError{statusCode: http.StatusNotFound}))
	require.Equal(t, resultInvalid, resultLabel(validationErrorf("bad")))
	require.Equal(t, resultInvalid, resultLabel(&permission.ValidationError{Message: "bad"}))
	require.Equal(t, resultServiceError, resultLabel(&lakeformation.ServiceError{Message: "denied"}))
	require.Equal(t, resultError, resultLabel(errors.New("boom")))
}
