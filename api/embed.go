// Package api embeds the permission tool templates served by lakeformation-mcp.
package api

import _ "embed"

// PermissionTemplates holds one schema template per resource kind. The MCP
// tool list is generated from it.
//
//go:embed permission_templates.yaml
var PermissionTemplates []byte
