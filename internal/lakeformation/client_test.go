package lakeformation

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/datalake-tools/lakeformation-mcp/internal/permission"
)

type fakeAPI struct {
	grants  []*lakeformation.GrantPermissionsInput
	revokes []*lakeformation.RevokePermissionsInput
	err     error
}

func (f *fakeAPI) GrantPermissions(_ context.Context, in *lakeformation.GrantPermissionsInput, _ ...func(*lakeformation.Options)) (*lakeformation.GrantPermissionsOutput, error) {
	f.grants = append(f.grants, in)
	if f.err != nil {
		return nil, f.err
	}
	return &lakeformation.GrantPermissionsOutput{}, nil
}

func (f *fakeAPI) RevokePermissions(_ context.Context, in *lakeformation.RevokePermissionsInput, _ ...func(*lakeformation.Options)) (*lakeformation.RevokePermissionsOutput, error) {
	f.revokes = append(f.revokes, in)
	if f.err != nil {
		return nil, f.err
	}
	return &lakeformation.RevokePermissionsOutput{}, nil
}

const principal = "arn:aws:iam::123:role/analyst"

func TestApply_GrantTable(t *testing.T) {
	api := &fakeAPI{}
	client := NewWithAPI(api, "", zerolog.Nop())

	req, err := permission.NewFactory().TableRequest("sales.orders", principal, permission.OperationGrant, nil)
	require.NoError(t, err)

	_, err = client.Apply(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, api.grants, 1)
	require.Empty(t, api.revokes)

	in := api.grants[0]
	require.Nil(t, in.CatalogId)
	require.Equal(t, principal, aws.ToString(in.Principal.DataLakePrincipalIdentifier))
	require.Equal(t, []types.Permission{types.PermissionSelect}, in.Permissions)
	require.Equal(t, "sales", aws.ToString(in.Resource.Table.DatabaseName))
	require.Equal(t, "orders", aws.ToString(in.Resource.Table.Name))
}

func TestApply_RevokeTagWithCatalog(t *testing.T) {
	api := &fakeAPI{}
	client := NewWithAPI(api, " 111122223333 ", zerolog.Nop())

	req, err := permission.NewFactory().TagRequest("pii", []string{"true"}, principal, permission.OperationRevoke, nil)
	require.NoError(t, err)

	_, err = client.Apply(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, api.grants)
	require.Len(t, api.revokes, 1)

	in := api.revokes[0]
	require.Equal(t, "111122223333", aws.ToString(in.CatalogId))
	require.Equal(t, "111122223333", aws.ToString(in.Resource.LFTag.CatalogId))
	require.Equal(t, "pii", aws.ToString(in.Resource.LFTag.TagKey))
	require.Equal(t, []string{"true"}, in.Resource.LFTag.TagValues)
	require.Equal(t, []types.Permission{types.PermissionDescribe}, in.Permissions)
}

func TestApply_MapsAPIError(t *testing.T) {
	api := &fakeAPI{err: &smithy.GenericAPIError{
		Code:    "AccessDeniedException",
		Message: "Insufficient Lake Formation permission(s) on orders",
	}}
	client := NewWithAPI(api, "", zerolog.Nop())

	req, err := permission.NewFactory().DatabaseRequest("sales", principal, permission.OperationGrant, nil)
	require.NoError(t, err)

	_, err = client.Apply(context.Background(), req)
	require.Error(t, err)
	require.Len(t, api.grants, 1)

	var serviceErr *ServiceError
	require.True(t, errors.As(err, &serviceErr))
	require.Equal(t, "AccessDeniedException", serviceErr.Code)
	require.Equal(t, "Insufficient Lake Formation permission(s) on orders", err.Error())
	require.Equal(t, http.StatusBadGateway, serviceErr.StatusCode())
	require.Equal(t, permission.OperationGrant, serviceErr.Operation)
}

func TestApply_MapsPlainError(t *testing.T) {
	api := &fakeAPI{err: errors.New("dial tcp: connection refused")}
	client := NewWithAPI(api, "", zerolog.Nop())

	req, err := permission.NewFactory().DatabaseRequest("sales", principal, permission.OperationRevoke, nil)
	require.NoError(t, err)

	_, err = client.Apply(context.Background(), req)
	require.EqualError(t, err, "dial tcp: connection refused")
	require.Len(t, api.revokes, 1)
}

func TestApply_RejectsZeroRequest(t *testing.T) {
	api := &fakeAPI{}
	client := NewWithAPI(api, "", zerolog.Nop())

	_, err := client.Apply(context.Background(), permission.Request{})
	require.Error(t, err)
	require.Empty(t, api.grants)
	require.Empty(t, api.revokes)
}
