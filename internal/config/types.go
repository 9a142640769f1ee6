package config

import "time"

// DeployMode selects whether the deploy command runs before or after the
// webhook response is written.
type DeployMode string

const (
	// DeployModeSync runs the deploy command inside the request.
	DeployModeSync DeployMode = "sync"
	// DeployModeDetached acknowledges the webhook first and deploys in the background.
	DeployModeDetached DeployMode = "detached"
)

// Environment keys read by Load.
const (
	EnvPort          = "PORT"
	EnvSecret        = "SECRET"
	EnvDeployCommand = "DEPLOY_COMMAND"
	EnvMountPath     = "MOUNT_PATH"
	EnvEndpoints     = "ENDPOINTS"
	EnvBranchPrefix  = "BRANCH_"

	EnvDeployTimeout = "DEPLOY_TIMEOUT"
	EnvDeployMode    = "DEPLOY_MODE"
	EnvMaxBodySize   = "MAX_BODY_SIZE"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFormat     = "LOG_FORMAT"
	EnvPIDFile       = "PID_FILE"
	EnvEventBuffer   = "EVENT_BUFFER"
)

// Defaults for optional settings.
const (
	DefaultDeployTimeout = 10 * time.Minute
	DefaultMaxBodySize   = 1048576 // 1 MB
	DefaultLogLevel      = "INFO"
	DefaultLogFormat     = "json"
	DefaultEventBuffer   = 100
)

// Config is the process configuration. It is built once by Load and must be
// treated as read-only afterwards.
type Config struct {
	Port          int
	Secret        []byte
	DeployCommand string
	MountPath     string

	// Endpoints holds the configured endpoint names in declaration order.
	Endpoints []string

	// Branches maps each endpoint (repository) name to the branch that
	// triggers a deploy.
	Branches map[string]string

	DeployTimeout time.Duration
	DeployMode    DeployMode
	MaxBodySize   int64
	LogLevel      string
	LogFormat     string
	PIDFile       string
	EventBuffer   int
}

// BranchFor returns the required branch for a repository name.
func (c *Config) BranchFor(name string) (string, bool) {
	branch, ok := c.Branches[name]
	return branch, ok
}

// HasEndpoint reports whether name is one of the configured endpoints.
func (c *Config) HasEndpoint(name string) bool {
	_, ok := c.Branches[name]
	return ok
}

// view is the YAML shape used by Render and Fingerprint.
type view struct {
	Port          int               `yaml:"port"`
	Secret        string            `yaml:"secret,omitempty"`
	DeployCommand string            `yaml:"deploy_command"`
	MountPath     string            `yaml:"mount_path"`
	Endpoints     []string          `yaml:"endpoints"`
	Branches      map[string]string `yaml:"branches"`
	DeployTimeout string            `yaml:"deploy_timeout"`
	DeployMode    DeployMode        `yaml:"deploy_mode"`
	MaxBodySize   int64             `yaml:"max_body_size"`
	LogLevel      string            `yaml:"log_level"`
	LogFormat     string            `yaml:"log_format"`
	PIDFile       string            `yaml:"pid_file,omitempty"`
	EventBuffer   int               `yaml:"event_buffer"`
}
