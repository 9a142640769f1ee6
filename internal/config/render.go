package config

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

func (c *Config) toView(secret string) view {
	return view{
		Port:          c.Port,
		Secret:        secret,
		DeployCommand: c.DeployCommand,
		MountPath:     c.MountPath,
		Endpoints:     c.Endpoints,
		Branches:      c.Branches,
		DeployTimeout: c.DeployTimeout.String(),
		DeployMode:    c.DeployMode,
		MaxBodySize:   c.MaxBodySize,
		LogLevel:      c.LogLevel,
		LogFormat:     c.LogFormat,
		PIDFile:       c.PIDFile,
		EventBuffer:   c.EventBuffer,
	}
}

// Render returns the effective configuration as YAML with the secret redacted.
func (c *Config) Render() ([]byte, error) {
	secret := ""
	if len(c.Secret) > 0 {
		secret = fmt.Sprintf("<redacted, %d bytes>", len(c.Secret))
	}
	data, err := yaml.Marshal(c.toView(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Fingerprint returns the BLAKE3 hash of the non-secret settings. Two
// processes with the same fingerprint route and deploy identically.
func (c *Config) Fingerprint() (string, error) {
	data, err := yaml.Marshal(c.toView(""))
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
