package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateGateway(cfg, ve)
	validateStorage(cfg, ve)
	validateAgents(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		ve.Add("server.port %d is out of range", cfg.Server.Port)
	}
	if cfg.Server.Host == "" {
		ve.Add("server.host must not be empty")
	}
	if cfg.Server.RateLimit.RequestsPerSecond < 0 {
		ve.Add("server.rate_limit.requests_per_second must be >= 0")
	}
	if cfg.Server.RateLimit.RequestsPerSecond > 0 && cfg.Server.RateLimit.Burst <= 0 {
		ve.Add("server.rate_limit.burst must be > 0 when rate limiting is enabled")
	}
	for _, p := range cfg.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				ve.Add("server.trusted_proxies entry %q is not an IP or CIDR", p)
			}
		}
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	for i, tok := range cfg.Gateway.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.tokens[%d].token must not be empty", i)
		}
	}
}

func validateStorage(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.WorkspaceMode)) {
	case "", "local", "project", "cwd", "central", "global", "home":
	default:
		ve.Add("storage.workspace_mode %q is invalid (want: local, central)", cfg.Storage.WorkspaceMode)
	}
}

var validAgentTypes = map[string]bool{
	"echo":   true,
	"openai": true,
}

func validateAgents(cfg *Config, ve *ValidationError) {
	a := cfg.Agents
	if len(a.Definitions) == 0 {
		ve.Add("agents.definitions must declare at least one agent")
	}

	seen := make(map[string]bool)
	for i, d := range a.Definitions {
		if strings.TrimSpace(d.ID) == "" {
			ve.Add("agents.definitions[%d].id must not be empty", i)
			continue
		}
		if seen[d.ID] {
			ve.Add("agents.definitions[%d].id %q is duplicated", i, d.ID)
		}
		seen[d.ID] = true

		if !validAgentTypes[d.Type] {
			ve.Add("agents.definitions[%d].type %q is invalid (want: echo, openai)", i, d.Type)
		}
		if d.Type == "openai" {
			if d.BaseURL == "" {
				ve.Add("agents.definitions[%d].base_url is required for openai agents", i)
			} else if u, err := url.Parse(d.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("agents.definitions[%d].base_url %q is not a valid URL", i, d.BaseURL)
			}
		}
		if d.Timeout < 0 {
			ve.Add("agents.definitions[%d].timeout must be >= 0", i)
		}
	}

	if a.ReloadSchedule != "" {
		if _, err := cron.ParseStandard(a.ReloadSchedule); err != nil {
			ve.Add("agents.reload_schedule %q is invalid: %v", a.ReloadSchedule, err)
		}
	}
	if a.CircuitBreaker.Enabled && a.CircuitBreaker.MaxFailures == 0 {
		ve.Add("agents.circuit_breaker.max_failures must be > 0 when enabled")
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true, "": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	switch strings.ToLower(cfg.Tracer.Exporter) {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
