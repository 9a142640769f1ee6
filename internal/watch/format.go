package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/pushdeploy/internal/deploy"
	"github.com/mattjoyce/pushdeploy/internal/events"
	"github.com/mattjoyce/pushdeploy/internal/webhook"
)

// Theme keeps all colors for the event log in one place.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusIgnored lipgloss.Style
	Dim           lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),
		StatusIgnored: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Dim:           lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

// Format renders ev as a single line. Unknown event types fall back to the
// raw payload.
func (t Theme) Format(ev events.Event) string {
	prefix := t.Dim.Render(fmt.Sprintf("%s #%d", ev.At.Local().Format(time.TimeOnly), ev.ID))

	switch ev.Type {
	case events.TypeDeployStarted:
		var s deploy.Started
		if err := json.Unmarshal(ev.Data, &s); err == nil {
			mode := "sync"
			if s.Detached {
				mode = "detached"
			}
			return fmt.Sprintf("%s %s %s@%s (%s) %s", prefix, t.StatusRunning.Render("DEPLOY"),
				s.Endpoint, s.Branch, mode, t.Dim.Render(s.DeployID))
		}
	case events.TypeDeployFinished:
		var f deploy.Finished
		if err := json.Unmarshal(ev.Data, &f); err == nil {
			took := (time.Duration(f.DurationMs) * time.Millisecond).String()
			switch {
			case f.Succeeded:
				return fmt.Sprintf("%s %s %s@%s in %s %s", prefix, t.StatusOK.Render("OK    "),
					f.Endpoint, f.Branch, took, t.Dim.Render(f.DeployID))
			case f.TimedOut:
				return fmt.Sprintf("%s %s %s@%s after %s %s", prefix, t.StatusFailed.Render("TIMEOUT"),
					f.Endpoint, f.Branch, took, t.Dim.Render(f.DeployID))
			default:
				return fmt.Sprintf("%s %s %s@%s exit=%d %s %s", prefix, t.StatusFailed.Render("FAILED"),
					f.Endpoint, f.Branch, f.ExitCode, f.Error, t.Dim.Render(f.DeployID))
			}
		}
	case events.TypeWebhookIgnored:
		var ig webhook.Ignored
		if err := json.Unmarshal(ev.Data, &ig); err == nil {
			return fmt.Sprintf("%s %s %s@%s: %s", prefix, t.StatusIgnored.Render("IGNORE"),
				ig.Repository, ig.Branch, ig.Reason)
		}
	}

	return fmt.Sprintf("%s %s %s", prefix, ev.Type, string(ev.Data))
}
