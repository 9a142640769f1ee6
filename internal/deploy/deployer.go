package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mattjoyce/pushdeploy/internal/config"
	"github.com/mattjoyce/pushdeploy/internal/events"
)

// maxEventOutputBytes caps the output tail attached to published events.
const maxEventOutputBytes = 2048

// Publisher receives deploy lifecycle events.
type Publisher interface {
	Publish(eventType string, data any) events.Event
}

// Trigger describes the push that caused a deploy.
type Trigger struct {
	Repository string
	Branch     string
	RequestID  string
}

// Started is the payload of a deploy.started event.
type Started struct {
	DeployID  string `json:"deploy_id"`
	Endpoint  string `json:"endpoint"`
	Branch    string `json:"branch"`
	RequestID string `json:"request_id,omitempty"`
	Command   string `json:"command"`
	Detached  bool   `json:"detached"`
}

// Finished is the payload of a deploy.finished event.
type Finished struct {
	DeployID   string `json:"deploy_id"`
	Endpoint   string `json:"endpoint"`
	Branch     string `json:"branch"`
	Succeeded  bool   `json:"succeeded"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	StdoutTail string `json:"stdout_tail,omitempty"`
	StderrTail string `json:"stderr_tail,omitempty"`
}

// Deployer runs the deploy command for configured endpoints.
type Deployer struct {
	cfg    *config.Config
	runner Runner
	events Publisher
	logger *slog.Logger

	wg sync.WaitGroup
}

// New creates a Deployer. pub may be nil.
func New(cfg *config.Config, runner Runner, pub Publisher, logger *slog.Logger) *Deployer {
	return &Deployer{
		cfg:    cfg,
		runner: runner,
		events: pub,
		logger: logger,
	}
}

// Command returns the shell command for endpoint. Only configured endpoints
// are accepted, and the returned string is built from the configured name
// rather than from the caller's argument.
func (d *Deployer) Command(endpoint string) (string, error) {
	for _, name := range d.cfg.Endpoints {
		if name == endpoint {
			return d.cfg.DeployCommand + "-" + name, nil
		}
	}
	return "", fmt.Errorf("endpoint %q is not configured", endpoint)
}

// Deploy runs the deploy command for endpoint and returns the deploy ID.
// In sync mode it returns after the command finishes; in detached mode it
// returns immediately and the command runs in the background. The outcome
// of the command never surfaces as an error here.
func (d *Deployer) Deploy(ctx context.Context, endpoint string, trig Trigger) (string, error) {
	command, err := d.Command(endpoint)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	detached := d.cfg.DeployMode == config.DeployModeDetached
	logger := d.logger.With("deploy_id", id, "endpoint", endpoint)

	logger.Info("deploying",
		"repository", trig.Repository,
		"branch", trig.Branch,
		"request_id", trig.RequestID,
		"detached", detached,
	)
	d.publish(events.TypeDeployStarted, Started{
		DeployID:  id,
		Endpoint:  endpoint,
		Branch:    trig.Branch,
		RequestID: trig.RequestID,
		Command:   command,
		Detached:  detached,
	})

	// The run must outlive the webhook request.
	runCtx := context.WithoutCancel(ctx)

	if detached {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(runCtx, id, endpoint, command, trig, logger)
		}()
		return id, nil
	}

	d.wg.Add(1)
	defer d.wg.Done()
	d.run(runCtx, id, endpoint, command, trig, logger)
	return id, nil
}

// Wait blocks until every in-flight deploy, sync or detached, has finished
// or ctx is done.
func (d *Deployer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for deploys: %w", ctx.Err())
	}
}

func (d *Deployer) run(ctx context.Context, id, endpoint, command string, trig Trigger, logger *slog.Logger) {
	res := d.runner.Run(ctx, command)

	fin := Finished{
		DeployID:   id,
		Endpoint:   endpoint,
		Branch:     trig.Branch,
		Succeeded:  res.Succeeded(),
		ExitCode:   res.ExitCode,
		TimedOut:   res.TimedOut,
		DurationMs: res.Duration.Milliseconds(),
		StdoutTail: tail(res.Stdout, maxEventOutputBytes),
		StderrTail: tail(res.Stderr, maxEventOutputBytes),
	}
	if res.Err != nil {
		fin.Error = res.Err.Error()
	}

	attrs := []any{
		"exit_code", res.ExitCode,
		"duration_ms", fin.DurationMs,
		"stdout", string(res.Stdout),
		"stderr", string(res.Stderr),
	}
	if res.OutputIncomplete {
		attrs = append(attrs, "output_incomplete", true)
	}
	switch {
	case res.Succeeded():
		logger.Info("deployment successful", attrs...)
	case res.TimedOut:
		logger.Error("deployment timed out", append(attrs, "timeout", d.cfg.DeployTimeout)...)
	case res.Err != nil:
		logger.Error("deployment failed", append(attrs, "error", res.Err)...)
	default:
		logger.Error("deployment failed", attrs...)
	}

	d.publish(events.TypeDeployFinished, fin)
}

func (d *Deployer) publish(eventType string, data any) {
	if d.events != nil {
		d.events.Publish(eventType, data)
	}
}

// tail returns the last n bytes of b as a string.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
