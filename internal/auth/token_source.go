// Package auth resolves the MCP session token used to authenticate callers.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TokenSource identifies where a token was resolved from.
type TokenSource string

const (
	// TokenSourceEnv is LAKEFORMATION_MCP_TOKEN.
	TokenSourceEnv TokenSource = "lakeformation_mcp_token"
	// TokenSourceCLIConfig is the session.token key of the CLI config file.
	TokenSourceCLIConfig TokenSource = "cli_config"
	// TokenSourceNone means no token was configured.
	TokenSourceNone TokenSource = "none"
)

const defaultCLIConfigPath = "~/.lakeformation-mcp/config.yaml"

// TokenResolution contains the resolved token and source.
type TokenResolution struct {
	Token  string
	Source TokenSource
}

// TokenSourceOptions controls token resolution.
type TokenSourceOptions struct {
	AllowCLIConfigToken bool
	CLIConfigPath       string
}

type cliConfigFile struct {
	Session struct {
		Token string `yaml:"token"`
	} `yaml:"session"`
}

// ResolveToken resolves the session token in order:
// 1) LAKEFORMATION_MCP_TOKEN
// 2) CLI config session.token, only when AllowCLIConfigToken is set
//
// A missing or token-less config file is not an error.
func ResolveToken(opts TokenSourceOptions) (TokenResolution, error) {
	if token := strings.TrimSpace(os.Getenv("LAKEFORMATION_MCP_TOKEN")); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceEnv}, nil
	}

	none := TokenResolution{Source: TokenSourceNone}
	if !opts.AllowCLIConfigToken {
		return none, nil
	}

	configPath := expandPath(defaultIfEmpty(strings.TrimSpace(opts.CLIConfigPath), defaultCLIConfigPath))
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return none, nil
	default:
		return TokenResolution{}, fmt.Errorf("reading CLI config token source: %w", err)
	}

	var cfg cliConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TokenResolution{}, fmt.Errorf("decoding CLI config token source %s: %w", configPath, err)
	}

	token := strings.TrimSpace(cfg.Session.Token)
	if token == "" {
		return none, nil
	}
	return TokenResolution{Token: token, Source: TokenSourceCLIConfig}, nil
}

func defaultIfEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return filepath.Clean(path)
}
