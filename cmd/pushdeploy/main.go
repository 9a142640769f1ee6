package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/pushdeploy/internal/config"
	"github.com/mattjoyce/pushdeploy/internal/deploy"
	"github.com/mattjoyce/pushdeploy/internal/doctor"
	"github.com/mattjoyce/pushdeploy/internal/events"
	"github.com/mattjoyce/pushdeploy/internal/lock"
	"github.com/mattjoyce/pushdeploy/internal/log"
	"github.com/mattjoyce/pushdeploy/internal/watch"
	"github.com/mattjoyce/pushdeploy/internal/webhook"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

// drainGrace is added to DEPLOY_TIMEOUT when waiting for in-flight deploys
// on shutdown, covering the runner's SIGTERM grace period.
const drainGrace = 10 * time.Second

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "config":
		return runConfigNoun(args)
	case "sign":
		return runSign(args)
	case "watch":
		return runWatch(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
	Dirty    bool   `json:"dirty,omitempty"`
	Go       string `json:"go"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := buildVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Println(info.String())
	return 0
}

// String renders e.g. "pushdeploy 1.2.0 (3f9c2a1b7d4e, dirty) go1.25.0".
func (v versionInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pushdeploy %s", v.Version)
	if v.Revision != "" {
		b.WriteString(" (" + v.Revision)
		if v.Dirty {
			b.WriteString(", dirty")
		}
		b.WriteString(")")
	}
	if v.Go != "" {
		b.WriteString(" " + v.Go)
	}
	return b.String()
}

// buildVersionInfo combines the link-time version with the VCS stamp the Go
// toolchain embeds in the binary.
func buildVersionInfo() versionInfo {
	info := versionInfo{Version: strings.TrimSpace(version)}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.Go = bi.GoVersion
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.Revision = setting.Value
			if len(info.Revision) > 12 {
				info.Revision = info.Revision[:12]
			}
		case "vcs.modified":
			info.Dirty = setting.Value == "true"
		}
	}
	return info
}

func printUsage() {
	fmt.Print(`pushdeploy - GitHub push webhook receiver that runs deploy commands

Usage:
  pushdeploy <command> [flags]

Commands:
  serve             Start the webhook server in foreground
  config check      Validate the environment (--json for machine output)
  config show       Print the effective configuration with the secret redacted
  sign              Print the X-Hub-Signature-256 value for a payload
  watch             Follow deploy events from a running server
  version           Show version metadata

Configuration is read from the environment: PORT, SECRET, DEPLOY_COMMAND,
MOUNT_PATH, ENDPOINTS and one BRANCH_<ENDPOINT> per endpoint.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if isHelpToken(a) {
			return true
		}
	}
	return false
}

func printServeHelp() {
	fmt.Println("Usage: pushdeploy serve")
	fmt.Println()
	fmt.Println("Start the webhook server. All settings come from the environment;")
	fmt.Println("run 'pushdeploy config check' to validate them first.")
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := log.WithComponent("main")

	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		logger.Warn("failed to fingerprint config", "error", err)
	}
	logger.Info("pushdeploy starting", "version", version, "config_fingerprint", fingerprint)

	if cfg.PIDFile != "" {
		pidLock, err := lock.Acquire(cfg.PIDFile)
		if err != nil {
			logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.PIDFile, "error", err)
			return 1
		}
		defer pidLock.Release()
		logger.Info("acquired PID lock", "path", pidLock.Path())
	}

	hub := events.NewHub(cfg.EventBuffer)
	runner := deploy.NewShellRunner(cfg.DeployTimeout)
	deployer := deploy.New(cfg, runner, hub, log.WithComponent("deploy"))
	server := webhook.New(cfg, deployer, hub, log.WithComponent("webhook"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("pushdeploy running (press Ctrl+C to stop)")
	err = server.Start(ctx)
	stop()

	code := 0
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webhook server failed", "error", err)
		code = 1
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DeployTimeout+drainGrace)
	defer cancel()
	if err := deployer.Wait(drainCtx); err != nil {
		logger.Error("deploys still running at exit", "error", err)
		code = 1
	}

	logger.Info("pushdeploy stopped")
	return code
}

func runConfigNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		if len(args) == 0 {
			return 1
		}
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n\n", action)
		printConfigNounHelp(os.Stderr)
		return 1
	}
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: pushdeploy config <action> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  check    Validate the environment")
	fmt.Fprintln(w, "  show     Print the effective configuration as YAML")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: pushdeploy config check [--json]")
	fmt.Println("Report every missing or invalid setting, plus warnings. Exit 1 when invalid.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: pushdeploy config show")
	fmt.Println("Print the effective configuration with the secret redacted.")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	result := doctor.New(os.Environ()).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	out, err := cfg.Render()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	file := fs.String("file", "", "Payload file (default: stdin)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	secret, ok := os.LookupEnv(config.EnvSecret)
	if !ok || secret == "" {
		fmt.Fprintf(os.Stderr, "Error: %s must be set to sign a payload\n", config.EnvSecret)
		return 1
	}

	var (
		body []byte
		err  error
	)
	if *file != "" {
		body, err = os.ReadFile(*file)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 1
	}

	fmt.Println(webhook.Sign([]byte(secret), body))
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	url := fs.String("url", "", "Events URL of a running server, e.g. http://localhost:8080/hooks/events")
	retry := fs.Duration("retry", 3*time.Second, "Delay before reconnecting")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *url == "" {
		fmt.Fprintln(os.Stderr, "Usage: pushdeploy watch --url URL [--retry DURATION]")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	theme := watch.NewDefaultTheme()
	client := &http.Client{}
	watch.Follow(ctx, client, *url, *retry,
		func(ev events.Event) { fmt.Println(theme.Format(ev)) },
		func(err error) { fmt.Fprintf(os.Stderr, "stream error: %v (retrying in %s)\n", err, *retry) },
	)
	return 0
}
