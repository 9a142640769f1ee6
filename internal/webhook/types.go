package webhook

import (
	"context"

	"github.com/mattjoyce/pushdeploy/internal/deploy"
)

// Deployer starts a deploy for a configured endpoint.
type Deployer interface {
	Deploy(ctx context.Context, endpoint string, trig deploy.Trigger) (string, error)
}

// Response is the JSON body for webhooks that passed authentication.
type Response struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DeployID string `json:"deploy_id,omitempty"`
}

// ErrorResponse is the JSON response for rejected webhooks.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is the JSON response for GET <mount>/healthz.
type HealthzResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Port          int      `json:"port"`
	Endpoints     []string `json:"endpoints"`
	DeployMode    string   `json:"deploy_mode"`
	// EventClients counts open /events streams.
	EventClients int `json:"event_clients"`
}

// Response statuses.
const (
	StatusReceived = "received"
	StatusIgnored  = "ignored"
	StatusError    = "error"
)

// Ignored is the payload of a webhook.ignored event.
type Ignored struct {
	Route      string `json:"route"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Required   string `json:"required,omitempty"`
	Reason     string `json:"reason"`
	RequestID  string `json:"request_id,omitempty"`
}
