package permission

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/lakeformation/types"
	"github.com/go-playground/validator/v10"
)

var (
	defaultTablePermissions    = []types.Permission{types.PermissionSelect}
	defaultDatabasePermissions = []types.Permission{types.PermissionCreateTable}
	defaultTagPermissions      = []types.Permission{types.PermissionDescribe}
)

// DefaultPermissions returns the permissions applied when a caller omits them.
func DefaultPermissions(kind Kind) []string {
	var defaults []types.Permission
	switch kind {
	case KindTable, KindTableColumns:
		defaults = defaultTablePermissions
	case KindDatabase:
		defaults = defaultDatabasePermissions
	case KindLFTag:
		defaults = defaultTagPermissions
	}
	names := make([]string, 0, len(defaults))
	for _, p := range defaults {
		names = append(names, string(p))
	}
	return names
}

// ValidationError reports malformed caller input. No service call is made
// for a request that fails validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// StatusCode maps validation failures to 400.
func (e *ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

func invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type tableShape struct {
	Principal string `json:"principal" validate:"required"`
}

type tableColumnsShape struct {
	Columns   []string `json:"columns" validate:"required,min=1,dive,required"`
	Principal string   `json:"principal" validate:"required"`
}

type databaseShape struct {
	DatabaseName string `json:"databaseName" validate:"required"`
	Principal    string `json:"principal" validate:"required"`
}

type tagShape struct {
	TagKey    string   `json:"tagKey" validate:"required"`
	TagValues []string `json:"tagValues" validate:"required,min=1,dive,required"`
	Principal string   `json:"principal" validate:"required"`
}

// Factory validates raw strings and produces well-formed requests. It holds
// no per-request state and is safe for concurrent use.
type Factory struct {
	validate *validator.Validate
}

// NewFactory creates a request factory.
func NewFactory() *Factory {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Factory{validate: v}
}

// TableRequest builds a request for all columns of a table given as
// "<database>.<table>". Permissions default to SELECT.
func (f *Factory) TableRequest(table, principal string, op Operation, permissions []string) (Request, error) {
	if err := checkOperation(op); err != nil {
		return Request{}, err
	}
	database, name, err := ParseTableIdentifier(table)
	if err != nil {
		return Request{}, err
	}
	shape := tableShape{Principal: strings.TrimSpace(principal)}
	if err := f.check(shape); err != nil {
		return Request{}, err
	}
	perms, err := normalizePermissions(permissions, defaultTablePermissions)
	if err != nil {
		return Request{}, err
	}
	return Request{
		principalARN: shape.Principal,
		operation:    op,
		permissions:  perms,
		resource:     tableResource(database, name),
	}, nil
}

// TableColumnsRequest builds a request for specific columns of a table.
// Permissions default to SELECT.
func (f *Factory) TableColumnsRequest(table string, columns []string, principal string, op Operation, permissions []string) (Request, error) {
	if err := checkOperation(op); err != nil {
		return Request{}, err
	}
	database, name, err := ParseTableIdentifier(table)
	if err != nil {
		return Request{}, err
	}
	shape := tableColumnsShape{
		Columns:   trimAll(columns),
		Principal: strings.TrimSpace(principal),
	}
	if err := f.check(shape); err != nil {
		return Request{}, err
	}
	perms, err := normalizePermissions(permissions, defaultTablePermissions)
	if err != nil {
		return Request{}, err
	}
	return Request{
		principalARN: shape.Principal,
		operation:    op,
		permissions:  perms,
		resource:     tableColumnsResource(database, name, shape.Columns),
	}, nil
}

// DatabaseRequest builds a request for a database. Permissions default to
// CREATE_TABLE.
func (f *Factory) DatabaseRequest(databaseName, principal string, op Operation, permissions []string) (Request, error) {
	if err := checkOperation(op); err != nil {
		return Request{}, err
	}
	shape := databaseShape{
		DatabaseName: strings.TrimSpace(databaseName),
		Principal:    strings.TrimSpace(principal),
	}
	if err := f.check(shape); err != nil {
		return Request{}, err
	}
	perms, err := normalizePermissions(permissions, defaultDatabasePermissions)
	if err != nil {
		return Request{}, err
	}
	return Request{
		principalARN: shape.Principal,
		operation:    op,
		permissions:  perms,
		resource:     databaseResource(shape.DatabaseName),
	}, nil
}

// TagRequest builds a request for an LF-tag key and its values. Permissions
// default to DESCRIBE.
func (f *Factory) TagRequest(tagKey string, tagValues []string, principal string, op Operation, permissions []string) (Request, error) {
	if err := checkOperation(op); err != nil {
		return Request{}, err
	}
	shape := tagShape{
		TagKey:    strings.TrimSpace(tagKey),
		TagValues: trimAll(tagValues),
		Principal: strings.TrimSpace(principal),
	}
	if err := f.check(shape); err != nil {
		return Request{}, err
	}
	perms, err := normalizePermissions(permissions, defaultTagPermissions)
	if err != nil {
		return Request{}, err
	}
	return Request{
		principalARN: shape.Principal,
		operation:    op,
		permissions:  perms,
		resource:     tagResource(shape.TagKey, shape.TagValues),
	}, nil
}

// ParseTableIdentifier splits "<database>.<table>" on the first dot. Any
// further dots belong to the table name.
func ParseTableIdentifier(identifier string) (string, string, error) {
	database, table, found := strings.Cut(strings.TrimSpace(identifier), ".")
	database = strings.TrimSpace(database)
	table = strings.TrimSpace(table)
	if !found || database == "" || table == "" {
		return "", "", invalidf("table", "invalid table identifier %q: expected <database_name>.<table_name>", identifier)
	}
	return database, table, nil
}

func checkOperation(op Operation) error {
	if !op.Valid() {
		return invalidf("operation", "invalid operation %q: expected GRANT or REVOKE", string(op))
	}
	return nil
}

func (f *Factory) check(shape any) error {
	err := f.validate.Struct(shape)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := fieldErrs[0]
	return &ValidationError{Field: fe.Field(), Message: describeFieldError(fe)}
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch {
	case fe.Kind() == reflect.Slice:
		return fmt.Sprintf("%s must contain at least one value", field)
	case strings.Contains(field, "["):
		return fmt.Sprintf("%s must not be empty", field)
	case fe.Tag() == "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s failed on %s", field, fe.Tag())
	}
}

// normalizePermissions upper-cases, de-duplicates and checks names against
// the service enum. Nil or empty input yields the defaults.
func normalizePermissions(raw []string, defaults []types.Permission) ([]types.Permission, error) {
	if len(raw) == 0 {
		return slices.Clone(defaults), nil
	}
	known := types.Permission("").Values()
	out := make([]types.Permission, 0, len(raw))
	for i, value := range raw {
		name := strings.ToUpper(strings.TrimSpace(value))
		if name == "" {
			return nil, invalidf("permissions", "permissions[%d] must not be empty", i)
		}
		perm := types.Permission(name)
		if !slices.Contains(known, perm) {
			return nil, invalidf("permissions", "unknown permission %q", value)
		}
		if slices.Contains(out, perm) {
			continue
		}
		out = append(out, perm)
	}
	return out, nil
}

func trimAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = strings.TrimSpace(value)
	}
	return out
}
