package server

import (
	"fmt"
	"strings"

	"github.com/datalake-tools/lakeformation-mcp/internal/catalog"
	"github.com/datalake-tools/lakeformation-mcp/internal/policy"
)

const (
	defaultProtocolVersion = "2024-11-05"
	defaultServerName      = "lakeformation-mcp"
)

// ToolSpec is one advertised tool plus the policy attributes transports check
// before dispatching it.
type ToolSpec struct {
	Name           string         `json:"name"`
	Operation      string         `json:"operation"`
	Kind           string         `json:"kind"`
	Description    string         `json:"description,omitempty"`
	RequiredScopes []string       `json:"requiredScopes,omitempty"`
	InputSchema    map[string]any `json:"inputSchema,omitempty"`
}

// ToolRegistry provides read-only access to the catalog's tools.
type ToolRegistry struct {
	name     string
	tools    []ToolSpec
	byName   map[string]ToolSpec
	contract []byte
}

// NewToolRegistry builds the registry from the generated tool catalog.
func NewToolRegistry(c *catalog.Catalog) (*ToolRegistry, error) {
	if c == nil {
		return nil, fmt.Errorf("tool catalog is nil")
	}
	descriptors := c.AllTools()
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("tool catalog has no tools")
	}

	tools := make([]ToolSpec, 0, len(descriptors))
	byName := make(map[string]ToolSpec, len(descriptors))
	for _, descriptor := range descriptors {
		name := strings.TrimSpace(descriptor.Name)
		if name == "" {
			return nil, fmt.Errorf("tool catalog contains empty tool name")
		}
		if _, exists := byName[name]; exists {
			return nil, fmt.Errorf("tool catalog contains duplicate tool %q", name)
		}
		if !descriptor.Operation.Valid() {
			return nil, fmt.Errorf("tool %q has invalid operation %q", name, descriptor.Operation)
		}
		tool := ToolSpec{
			Name:           name,
			Operation:      string(descriptor.Operation),
			Kind:           string(descriptor.Kind),
			Description:    descriptor.Description,
			RequiredScopes: []string{policy.OperationScope(string(descriptor.Operation))},
			InputSchema:    descriptor.InputSchema,
		}
		tools = append(tools, tool)
		byName[name] = tool
	}

	contract, err := c.YAML()
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(c.Service())
	if name == "" {
		name = defaultServerName
	}

	return &ToolRegistry{
		name:     name,
		tools:    tools,
		byName:   byName,
		contract: contract,
	}, nil
}

// Name returns the advertised server name.
func (r *ToolRegistry) Name() string {
	return r.name
}

// List returns all registered tools in catalog order.
func (r *ToolRegistry) List() []ToolSpec {
	items := make([]ToolSpec, 0, len(r.tools))
	items = append(items, r.tools...)
	return items
}

// Lookup returns a tool by exact name.
func (r *ToolRegistry) Lookup(name string) (ToolSpec, bool) {
	tool, ok := r.byName[name]
	return tool, ok
}

// Contract returns the rendered tool catalog YAML.
func (r *ToolRegistry) Contract() []byte {
	out := make([]byte, len(r.contract))
	copy(out, r.contract)
	return out
}

func toolDescriptors(registry *ToolRegistry) []toolDescriptor {
	items := make([]toolDescriptor, 0, len(registry.tools))
	for _, tool := range registry.tools {
		items = append(items, toolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return items
}
