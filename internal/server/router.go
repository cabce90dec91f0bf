package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/datalake-tools/lakeformation-mcp/internal/config"
)

const maxRequestBodyBytes = 1 << 20

// HTTPServer wraps MCP HTTP routing state.
type HTTPServer struct {
	cfg      config.Config
	version  string
	commit   string
	build    string
	registry *ToolRegistry
	policy   ToolAuthorizer
	authn    SessionAuthenticator
	caller   ToolCaller
	logger   zerolog.Logger
}

// NewHTTPServer creates an HTTP transport server with health and MCP routes.
func NewHTTPServer(
	cfg config.Config,
	version, commit, buildDate string,
	registry *ToolRegistry,
	policy ToolAuthorizer,
	authn SessionAuthenticator,
	caller ToolCaller,
	logger zerolog.Logger,
) *HTTPServer {
	return &HTTPServer{
		cfg:      cfg,
		version:  version,
		commit:   commit,
		build:    buildDate,
		registry: registry,
		policy:   policy,
		authn:    authn,
		caller:   caller,
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router. The "sse" transport serves the MCP SSE
// endpoints; every other transport serves the JSON tool API under /mcp/v1.
func (s *HTTPServer) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(exposeRequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(httpMetrics)
	r.Use(secureHeaders)
	r.Use(middleware.RequestSize(maxRequestBodyBytes))
	r.Use(middleware.SetHeader("X-API-Version", "mcp/v1"))
	r.Use(middleware.NoCache)

	registerHealthRoutes(r, s.version, s.commit, s.build, s.cfg.MetricsEnabled, s.ready)

	if s.cfg.Transport == config.TransportSSE {
		registerMCPSSERoutes(r, NewMCPServer(s.registry, s.policy, s.caller, s.version, s.logger), s.authn)
	} else {
		r.With(middleware.AllowContentType("application/json")).Group(func(r chi.Router) {
			registerMCPHTTPRoutes(r, s.registry, s.policy, s.authn, s.caller, s.version, s.logger)
		})
	}

	r.Get("/api/tools.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(s.registry.Contract())
	})

	return r
}

func (s *HTTPServer) ready() error {
	if s.registry == nil || len(s.registry.List()) == 0 {
		return errors.New("tool registry is empty")
	}
	if s.caller == nil {
		return errors.New("no tool caller configured")
	}
	return nil
}
