// Package doctor validates the pushdeploy environment without starting the server.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/pushdeploy/internal/config"
)

// minSecretLength is the shortest shared secret that does not draw a warning.
const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid       bool    `json:"valid"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Errors      []Issue `json:"errors,omitempty"`
	Warnings    []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates an environment.
type Doctor struct {
	environ []string
	cfg     *config.Config
}

// New creates a Doctor over environ, in os.Environ() form.
func New(environ []string) *Doctor {
	return &Doctor{environ: environ}
}

func (d *Doctor) lookup(key string) (string, bool) {
	prefix := key + "="
	for i := len(d.environ) - 1; i >= 0; i-- {
		if strings.HasPrefix(d.environ[i], prefix) {
			return strings.TrimPrefix(d.environ[i], prefix), true
		}
	}
	return "", false
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{}

	d.validateLoad(r)
	if d.cfg != nil {
		d.warnWeakSecret(r)
		d.warnMissingScripts(r)
		d.warnUnusedBranchKeys(r)
		if fp, err := d.cfg.Fingerprint(); err == nil {
			r.Fingerprint = fp
		}
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateLoad reports every missing and invalid setting.
func (d *Doctor) validateLoad(r *Result) {
	cfg, err := config.Load(d.lookup)
	if err == nil {
		d.cfg = cfg
		return
	}

	var lerr *config.LoadError
	if !errors.As(err, &lerr) {
		d.addError(r, "config", "", err.Error())
		return
	}
	for _, key := range lerr.Missing {
		d.addError(r, "missing", key, "required setting is not set")
	}
	for _, e := range lerr.Invalid {
		d.addError(r, "invalid", "", e.Error())
	}
}

func (d *Doctor) warnWeakSecret(r *Result) {
	if len(d.cfg.Secret) < minSecretLength {
		d.addWarning(r, "security", config.EnvSecret,
			fmt.Sprintf("secret is %d bytes; use at least %d", len(d.cfg.Secret), minSecretLength))
	}
}

// warnMissingScripts checks the per-endpoint command when the template is a
// bare absolute path, the common "one script per site" layout.
func (d *Doctor) warnMissingScripts(r *Result) {
	tmpl := d.cfg.DeployCommand
	if !strings.HasPrefix(tmpl, "/") || strings.ContainsAny(tmpl, " \t;|&$`") {
		return
	}
	for _, name := range d.cfg.Endpoints {
		script := tmpl + "-" + name
		info, err := os.Stat(script)
		switch {
		case err != nil:
			d.addWarning(r, "deploy", config.EnvDeployCommand,
				fmt.Sprintf("deploy script for %q not found: %s", name, script))
		case info.IsDir() || info.Mode().Perm()&0o111 == 0:
			d.addWarning(r, "deploy", config.EnvDeployCommand,
				fmt.Sprintf("deploy script for %q is not executable: %s", name, script))
		}
	}
}

// warnUnusedBranchKeys flags BRANCH_* settings that no endpoint reads,
// usually a typo in ENDPOINTS or in the key itself.
func (d *Doctor) warnUnusedBranchKeys(r *Result) {
	used := make(map[string]struct{}, len(d.cfg.Endpoints))
	for _, name := range d.cfg.Endpoints {
		used[config.BranchKey(name)] = struct{}{}
	}

	var unused []string
	for _, kv := range d.environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, config.EnvBranchPrefix) {
			continue
		}
		if _, ok := used[key]; !ok {
			unused = append(unused, key)
		}
	}
	sort.Strings(unused)
	for _, key := range unused {
		d.addWarning(r, "endpoints", key, "branch setting does not match any endpoint in "+config.EnvEndpoints)
	}
}

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString(okStyle.Render("Configuration valid.") + "\n")
	case r.Valid:
		b.WriteString(okStyle.Render("Configuration valid") + fmt.Sprintf(" (%d warning(s))\n", len(r.Warnings)))
	default:
		b.WriteString(errorStyle.Render("Configuration invalid") +
			fmt.Sprintf(" (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings)))
	}

	for _, e := range r.Errors {
		writeIssue(&b, errorStyle.Render("ERROR"), e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, warnStyle.Render("WARN "), w)
	}
	if r.Fingerprint != "" {
		fmt.Fprintf(&b, "  fingerprint: %s\n", r.Fingerprint)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, label string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, i.Category, i.Field, i.Message)
	} else {
		fmt.Fprintf(b, "  %s [%s] %s\n", label, i.Category, i.Message)
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
