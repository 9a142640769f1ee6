package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves a setting by key. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

var (
	endpointNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	envKeyReplacer      = regexp.MustCompile(`[^A-Z0-9]`)
)

// reservedEndpoints collide with the fixed routes served under the mount path.
var reservedEndpoints = map[string]struct{}{
	"healthz": {},
	"deploys": {},
	"events":  {},
}

// LoadError aggregates every problem found while loading configuration.
type LoadError struct {
	Missing []string
	Invalid []error
}

func (e *LoadError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	for _, err := range e.Invalid {
		parts = append(parts, err.Error())
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual validation errors to errors.Is / errors.As.
func (e *LoadError) Unwrap() []error {
	return e.Invalid
}

func (e *LoadError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

func (e *LoadError) invalid(format string, args ...any) {
	e.Invalid = append(e.Invalid, fmt.Errorf(format, args...))
}

// LoadFromEnv loads configuration from the process environment.
func LoadFromEnv() (*Config, error) {
	return Load(os.LookupEnv)
}

// Load builds a Config from lookup. All problems are collected and returned
// together as a *LoadError.
func Load(lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		return nil, errors.New("config lookup is nil")
	}

	cfg := &Config{
		Branches: make(map[string]string),
	}
	lerr := &LoadError{}

	required := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			lerr.Missing = append(lerr.Missing, key)
			return "", false
		}
		return v, true
	}

	if v, ok := required(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			lerr.invalid("%s must be a port number between 1 and 65535 (got %q)", EnvPort, v)
		}
		cfg.Port = port
	}

	// The secret is used byte-for-byte, so it is not trimmed.
	if v, ok := lookup(EnvSecret); ok && v != "" {
		cfg.Secret = []byte(v)
	} else {
		lerr.Missing = append(lerr.Missing, EnvSecret)
	}

	if v, ok := required(EnvDeployCommand); ok {
		cfg.DeployCommand = v
	}

	if v, ok := required(EnvMountPath); ok {
		cfg.MountPath = NormalizeMountPath(v)
	}

	if v, ok := required(EnvEndpoints); ok {
		loadEndpoints(cfg, lerr, lookup, v)
	}

	loadOptional(cfg, lerr, lookup)

	if !lerr.empty() {
		return nil, lerr
	}
	return cfg, nil
}

func loadEndpoints(cfg *Config, lerr *LoadError, lookup LookupFunc, raw string) {
	envKeys := make(map[string]string)

	for _, name := range SplitList(raw) {
		if !endpointNamePattern.MatchString(name) {
			lerr.invalid("endpoint %q: name may only contain letters, digits, '.', '_' and '-'", name)
			continue
		}
		if _, reserved := reservedEndpoints[name]; reserved {
			lerr.invalid("endpoint %q: name is reserved", name)
			continue
		}
		if _, dup := cfg.Branches[name]; dup {
			lerr.invalid("endpoint %q: declared more than once", name)
			continue
		}

		key := BranchKey(name)
		if other, clash := envKeys[key]; clash {
			lerr.invalid("endpoints %q and %q both map to %s", other, name, key)
			continue
		}
		envKeys[key] = name

		branch, ok := lookup(key)
		branch = strings.TrimSpace(branch)
		if !ok || branch == "" {
			lerr.Missing = append(lerr.Missing, key)
			continue
		}

		cfg.Endpoints = append(cfg.Endpoints, name)
		cfg.Branches[name] = branch
	}

	if len(cfg.Endpoints) == 0 && lerr.empty() {
		lerr.invalid("%s must list at least one endpoint", EnvEndpoints)
	}
}

func loadOptional(cfg *Config, lerr *LoadError, lookup LookupFunc) {
	optional := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg.DeployTimeout = DefaultDeployTimeout
	if v := optional(EnvDeployTimeout, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			lerr.invalid("%s must be a positive duration (got %q)", EnvDeployTimeout, v)
		} else {
			cfg.DeployTimeout = d
		}
	}

	switch mode := DeployMode(strings.ToLower(optional(EnvDeployMode, string(DeployModeSync)))); mode {
	case DeployModeSync, DeployModeDetached:
		cfg.DeployMode = mode
	default:
		lerr.invalid("%s must be %q or %q (got %q)", EnvDeployMode, DeployModeSync, DeployModeDetached, mode)
	}

	size, err := ParseSize(optional(EnvMaxBodySize, ""))
	if err != nil {
		lerr.invalid("%s: %w", EnvMaxBodySize, err)
	}
	cfg.MaxBodySize = size

	cfg.LogLevel = strings.ToUpper(optional(EnvLogLevel, DefaultLogLevel))
	switch cfg.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		lerr.invalid("%s must be one of: DEBUG, INFO, WARN, ERROR (got %q)", EnvLogLevel, cfg.LogLevel)
	}

	cfg.LogFormat = strings.ToLower(optional(EnvLogFormat, DefaultLogFormat))
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		lerr.invalid("%s must be json or text (got %q)", EnvLogFormat, cfg.LogFormat)
	}

	cfg.PIDFile = optional(EnvPIDFile, "")

	cfg.EventBuffer = DefaultEventBuffer
	if v := optional(EnvEventBuffer, ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			lerr.invalid("%s must be a positive integer (got %q)", EnvEventBuffer, v)
		} else {
			cfg.EventBuffer = n
		}
	}
}

// BranchKey returns the environment key holding the branch for an endpoint,
// e.g. "site-a" -> "BRANCH_SITE_A".
func BranchKey(endpoint string) string {
	return EnvBranchPrefix + envKeyReplacer.ReplaceAllString(strings.ToUpper(endpoint), "_")
}

// NormalizeMountPath ensures a leading slash and strips trailing ones.
// The root mount is returned as "/".
func NormalizeMountPath(p string) string {
	p = "/" + strings.Trim(strings.TrimSpace(p), "/")
	return p
}

// SplitList splits a comma-separated value, trimming blanks and dropping
// empty items.
func SplitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
