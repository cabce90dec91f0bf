// Package lakeformation sends permission requests to the AWS Lake Formation API.
package lakeformation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation"
	"github.com/aws/smithy-go"
	smithymiddleware "github.com/aws/smithy-go/middleware"
	"github.com/rs/zerolog"

	"github.com/datalake-tools/lakeformation-mcp/internal/permission"
)

// PermissionsAPI is the subset of the SDK client used here.
type PermissionsAPI interface {
	GrantPermissions(ctx context.Context, params *lakeformation.GrantPermissionsInput, optFns ...func(*lakeformation.Options)) (*lakeformation.GrantPermissionsOutput, error)
	RevokePermissions(ctx context.Context, params *lakeformation.RevokePermissionsInput, optFns ...func(*lakeformation.Options)) (*lakeformation.RevokePermissionsOutput, error)
}

// Config selects the target region and catalog.
type Config struct {
	// Region is optional; empty falls back to the SDK default chain.
	Region string
	// CatalogID is optional; empty means the caller's account.
	CatalogID string
}

// Outcome is the service response for a successful call.
type Outcome struct {
	RequestID string `json:"requestId,omitempty"`
}

// ServiceError carries the failure reported by Lake Formation.
type ServiceError struct {
	Operation  permission.Operation
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

// Error returns the service message verbatim.
func (e *ServiceError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the SDK error.
func (e *ServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusCode returns the upstream HTTP status, or 502 when none was received.
func (e *ServiceError) StatusCode() int {
	if e == nil || e.HTTPStatus < 400 || e.HTTPStatus > 599 {
		return http.StatusBadGateway
	}
	return e.HTTPStatus
}

// Client applies permission requests. One SDK call per Apply, never retried.
type Client struct {
	api       PermissionsAPI
	catalogID string
	logger    zerolog.Logger
}

// New loads AWS configuration and builds a client with retries disabled.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if region := strings.TrimSpace(cfg.Region); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return NewWithAPI(lakeformation.NewFromConfig(awsCfg), cfg.CatalogID, logger), nil
}

// NewWithAPI wraps an existing SDK client or test double.
func NewWithAPI(api PermissionsAPI, catalogID string, logger zerolog.Logger) *Client {
	return &Client{
		api:       api,
		catalogID: strings.TrimSpace(catalogID),
		logger:    logger.With().Str("component", "lakeformation").Logger(),
	}
}

// Apply sends a grant or revoke call for req.
func (c *Client) Apply(ctx context.Context, req permission.Request) (Outcome, error) {
	params := req.Params(c.catalogID)
	if params.Resource == nil {
		return Outcome{}, fmt.Errorf("request has no resource")
	}

	var catalog *string
	if c.catalogID != "" {
		catalog = aws.String(c.catalogID)
	}

	c.logger.Debug().
		Str("operation", string(req.Operation())).
		Str("resource", req.Resource().String()).
		Str("principal", req.PrincipalARN()).
		Strs("permissions", req.PermissionNames()).
		Msg("calling lake formation")

	switch req.Operation() {
	case permission.OperationGrant:
		out, err := c.api.GrantPermissions(ctx, &lakeformation.GrantPermissionsInput{
			CatalogId:   catalog,
			Principal:   params.Principal,
			Resource:    params.Resource,
			Permissions: params.Permissions,
		})
		if err != nil {
			return Outcome{}, mapServiceError(req.Operation(), err)
		}
		return Outcome{RequestID: requestID(out.ResultMetadata)}, nil

	case permission.OperationRevoke:
		out, err := c.api.RevokePermissions(ctx, &lakeformation.RevokePermissionsInput{
			CatalogId:   catalog,
			Principal:   params.Principal,
			Resource:    params.Resource,
			Permissions: params.Permissions,
		})
		if err != nil {
			return Outcome{}, mapServiceError(req.Operation(), err)
		}
		return Outcome{RequestID: requestID(out.ResultMetadata)}, nil

	default:
		return Outcome{}, fmt.Errorf("unsupported operation %q", req.Operation())
	}
}

func requestID(metadata smithymiddleware.Metadata) string {
	id, _ := awsmiddleware.GetRequestIDMetadata(metadata)
	return id
}

func mapServiceError(op permission.Operation, err error) error {
	serviceErr := &ServiceError{
		Operation: op,
		Message:   strings.TrimSpace(err.Error()),
		Err:       err,
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		serviceErr.Code = apiErr.ErrorCode()
		if message := strings.TrimSpace(apiErr.ErrorMessage()); message != "" {
			serviceErr.Message = message
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		serviceErr.HTTPStatus = respErr.HTTPStatusCode()
	}
	if serviceErr.Message == "" {
		serviceErr.Message = "lake formation request failed"
	}
	return serviceErr
}
