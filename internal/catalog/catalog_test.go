package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/datalake-tools/lakeformation-mcp/internal/permission"
)

func TestDefault_GeneratesEightUniqueTools(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, "lakeformation-mcp", c.Service())

	tools := c.AllTools()
	require.Len(t, tools, 8)

	names := make([]string, 0, len(tools))
	seen := map[string]struct{}{}
	for _, tool := range tools {
		_, dup := seen[tool.Name]
		require.False(t, dup, tool.Name)
		seen[tool.Name] = struct{}{}
		names = append(names, tool.Name)
	}
	require.Equal(t, []string{
		"grant_table_permissions",
		"revoke_table_permissions",
		"grant_table_columns_permissions",
		"revoke_table_columns_permissions",
		"grant_database_permissions",
		"revoke_database_permissions",
		"grant_lf_tag_permissions",
		"revoke_lf_tag_permissions",
	}, names)
}

func TestDefault_RequiredExcludesDefaultedFields(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	wantRequired := map[permission.Kind][]string{
		permission.KindTable:        {"table", "principal"},
		permission.KindTableColumns: {"table", "columns", "principal"},
		permission.KindDatabase:     {"databaseName", "principal"},
		permission.KindLFTag:        {"tagKey", "tagValues", "principal"},
	}

	for _, tool := range c.AllTools() {
		require.Equal(t, wantRequired[tool.Kind], tool.Required, tool.Name)
		require.Equal(t, wantRequired[tool.Kind], tool.InputSchema["required"], tool.Name)

		properties, ok := tool.InputSchema["properties"].(map[string]any)
		require.True(t, ok)
		for name, raw := range properties {
			property := raw.(map[string]any)
			_, hasDefault := property["default"]
			require.Equal(t, hasDefault, !contains(tool.Required, name), "%s.%s", tool.Name, name)
		}

		permissionsProp := properties["permissions"].(map[string]any)
		require.Equal(t, "array", permissionsProp["type"])
	}
}

func TestDefault_DescriptionsAndLookup(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tool, ok := c.Lookup("grant_table_permissions")
	require.True(t, ok)
	require.Equal(t, "Grants permissions on a table (all columns)", tool.Description)
	require.Equal(t, permission.OperationGrant, tool.Operation)
	require.Equal(t, permission.KindTable, tool.Kind)

	tool, ok = c.Lookup("revoke_lf_tag_permissions")
	require.True(t, ok)
	require.Equal(t, "Revokes permissions on Lake Formation tags", tool.Description)
	require.Equal(t, permission.OperationRevoke, tool.Operation)

	_, ok = c.Lookup(" grant_table_permissions")
	require.False(t, ok)
	_, ok = c.Lookup("grant_lakeformation_permissions_on_table")
	require.False(t, ok)
}

func TestDefault_IsDeterministic(t *testing.T) {
	first, err := Default()
	require.NoError(t, err)
	second, err := Default()
	require.NoError(t, err)

	a, err := json.Marshal(first.AllTools())
	require.NoError(t, err)
	b, err := json.Marshal(second.AllTools())
	require.NoError(t, err)
	require.JSONEq(t, string(a), string(b))
	require.Equal(t, string(a), string(b))
}

func TestCatalog_YAML(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	out, err := c.YAML()
	require.NoError(t, err)

	var decoded struct {
		Service string `yaml:"service"`
		Tools   []struct {
			Name string `yaml:"name"`
		} `yaml:"tools"`
	}
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	require.Equal(t, "lakeformation-mcp", decoded.Service)
	require.Len(t, decoded.Tools, 8)
}

func TestNew_RejectsBrokenTemplates(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty",
			yaml:    "templates: []",
			wantErr: "templates are empty",
		},
		{
			name: "unknown kind",
			yaml: `
templates:
  - kind: bucket
    description: permissions on a bucket
    fields:
      - name: bucket
        type: string
`,
			wantErr: "unknown kind",
		},
		{
			name: "duplicate kind",
			yaml: `
templates:
  - kind: database
    description: a
    fields:
      - name: databaseName
        type: string
  - kind: database
    description: b
    fields:
      - name: databaseName
        type: string
`,
			wantErr: "duplicate template",
		},
		{
			name: "array without items",
			yaml: `
templates:
  - kind: lf_tag
    description: tags
    fields:
      - name: tagValues
        type: array
`,
			wantErr: "without items type",
		},
		{
			name: "drifting default",
			yaml: `
templates:
  - kind: database
    description: db
    fields:
      - name: databaseName
        type: string
      - name: permissions
        type: array
        items: string
        default: [SELECT]
`,
			wantErr: "does not match",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New([]byte(tc.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestGenerate_SingleTemplate(t *testing.T) {
	tools := Generate(Template{
		Kind:        permission.KindDatabase,
		Description: "permissions on a database",
		Fields: []Field{
			{Name: "databaseName", Type: "string"},
			{Name: "principal", Type: "string"},
			{Name: "permissions", Type: "array", Items: "string", Default: []any{"CREATE_TABLE"}},
		},
	})
	require.Len(t, tools, 2)
	require.Equal(t, "grant_database_permissions", tools[0].Name)
	require.Equal(t, "revoke_database_permissions", tools[1].Name)
	require.Equal(t, "Revokes permissions on a database", tools[1].Description)
	require.Equal(t, []string{"databaseName", "principal"}, tools[1].Required)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
