package permission

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation/types"
)

// Operation is either a grant or a revoke.
type Operation string

const (
	// OperationGrant adds permissions for a principal.
	OperationGrant Operation = "GRANT"
	// OperationRevoke removes permissions from a principal.
	OperationRevoke Operation = "REVOKE"
)

// Operations returns both operations in catalog order.
func Operations() []Operation {
	return []Operation{OperationGrant, OperationRevoke}
}

// ParseOperation accepts "grant"/"revoke" in any case.
func ParseOperation(raw string) (Operation, error) {
	switch Operation(strings.ToUpper(strings.TrimSpace(raw))) {
	case OperationGrant:
		return OperationGrant, nil
	case OperationRevoke:
		return OperationRevoke, nil
	default:
		return "", fmt.Errorf("unknown operation %q (allowed: grant|revoke)", raw)
	}
}

// Valid reports whether op is GRANT or REVOKE.
func (op Operation) Valid() bool {
	return op == OperationGrant || op == OperationRevoke
}

// Lower returns the tool-name prefix form ("grant", "revoke").
func (op Operation) Lower() string {
	return strings.ToLower(string(op))
}

// Title returns "Grant" or "Revoke".
func (op Operation) Title() string {
	lower := op.Lower()
	if lower == "" {
		return ""
	}
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func (op Operation) pastTense() string {
	if op == OperationRevoke {
		return "Revoked"
	}
	return "Granted"
}

func (op Operation) preposition() string {
	if op == OperationRevoke {
		return "from"
	}
	return "to"
}

// Request pairs a principal, an operation and a permission list with the
// resource they apply to. Build it with a Factory.
type Request struct {
	principalARN string
	operation    Operation
	permissions  []types.Permission
	resource     Resource
}

// Params is the service call payload shared by grant and revoke.
type Params struct {
	Principal   *types.DataLakePrincipal
	Resource    *types.Resource
	Permissions []types.Permission
}

// PrincipalARN returns the data lake principal identifier.
func (r Request) PrincipalARN() string { return r.principalARN }

// Operation returns GRANT or REVOKE.
func (r Request) Operation() Operation { return r.operation }

// Permissions returns a copy of the permission list.
func (r Request) Permissions() []types.Permission { return slices.Clone(r.permissions) }

// Resource returns the protected resource.
func (r Request) Resource() Resource { return r.resource }

// Params encodes the request in the service's wire shape.
func (r Request) Params(catalogID string) Params {
	return Params{
		Principal:   &types.DataLakePrincipal{DataLakePrincipalIdentifier: aws.String(r.principalARN)},
		Resource:    r.resource.WireShape(catalogID),
		Permissions: slices.Clone(r.permissions),
	}
}

// PermissionNames returns the permissions as plain strings.
func (r Request) PermissionNames() []string {
	names := make([]string, 0, len(r.permissions))
	for _, p := range r.permissions {
		names = append(names, string(p))
	}
	return names
}

// Confirmation is the fixed success message for a completed request.
func (r Request) Confirmation() string {
	return fmt.Sprintf("%s %v on %s %s %s",
		r.operation.pastTense(),
		r.PermissionNames(),
		r.resource,
		r.operation.preposition(),
		r.principalARN,
	)
}
