// Package config loads lakeformation-mcp configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/datalake-tools/lakeformation-mcp/internal/policy"
)

const (
	// TransportStdio runs MCP over stdin/stdout.
	TransportStdio = "stdio"
	// TransportHTTP runs the JSON tool API over HTTP with SSE tool streaming.
	TransportHTTP = "http"
	// TransportSSE runs the MCP SSE transport.
	TransportSSE = "sse"

	defaultListenAddr    = ":27780"
	defaultCLIConfigPath = "~/.lakeformation-mcp/config.yaml"
)

// Config holds service runtime configuration.
type Config struct {
	ListenAddr string
	LogLevel   string
	Transport  string

	// Region is empty when the AWS SDK should resolve it itself.
	Region    string
	CatalogID string

	Mode string

	AllowCLIConfigToken bool
	CLIConfigPath       string

	MetricsEnabled bool
}

// Overrides carries command-line values that take precedence over the
// environment. Empty fields leave the environment value in place.
type Overrides struct {
	Transport  string
	ListenAddr string
	Mode       string
	LogLevel   string
}

// Load returns configuration parsed from environment variables.
func Load() (Config, error) {
	return LoadWithOverrides(Overrides{})
}

// LoadWithOverrides parses environment variables and applies o on top.
func LoadWithOverrides(o Overrides) (Config, error) {
	cfg := Config{
		ListenAddr:          overrideOr(o.ListenAddr, envOrDefault("LAKEFORMATION_MCP_LISTEN_ADDR", defaultListenAddr)),
		LogLevel:            strings.ToLower(strings.TrimSpace(overrideOr(o.LogLevel, envOrDefault("LAKEFORMATION_MCP_LOG_LEVEL", "info")))),
		Transport:           strings.ToLower(strings.TrimSpace(overrideOr(o.Transport, envOrDefault("LAKEFORMATION_MCP_TRANSPORT", TransportStdio)))),
		Region:              strings.TrimSpace(envOrDefault("LAKEFORMATION_MCP_REGION", os.Getenv("AWS_REGION"))),
		CatalogID:           strings.TrimSpace(os.Getenv("LAKEFORMATION_MCP_CATALOG_ID")),
		Mode:                strings.ToLower(strings.TrimSpace(overrideOr(o.Mode, envOrDefault("LAKEFORMATION_MCP_MODE", policy.ModeGrantRevoke)))),
		AllowCLIConfigToken: envBool("LAKEFORMATION_MCP_ALLOW_CLI_CONFIG_TOKEN", false),
		CLIConfigPath:       envOrDefault("LAKEFORMATION_MCP_CLI_CONFIG_PATH", defaultCLIConfigPath),
		MetricsEnabled:      envBool("LAKEFORMATION_MCP_METRICS_ENABLED", true),
	}

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs error
	switch c.Transport {
	case TransportStdio, TransportHTTP, TransportSSE:
	default:
		errs = multierr.Append(errs, fmt.Errorf("invalid LAKEFORMATION_MCP_TRANSPORT %q (allowed: %s|%s|%s)", c.Transport, TransportStdio, TransportHTTP, TransportSSE))
	}
	if _, err := policy.NewGuard(c.Mode); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("invalid LAKEFORMATION_MCP_MODE: %w", err))
	}
	return errs
}

func overrideOr(override, fallback string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return fallback
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		default:
			return defaultVal
		}
	}
	return parsed
}
