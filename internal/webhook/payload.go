package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PushEvent holds the fields of a push payload that drive deploy decisions.
// Every other field is ignored. Both fields are optional on the wire.
type PushEvent struct {
	Ref        *string     `json:"ref"`
	Repository *Repository `json:"repository"`
}

// Repository is the repository object of a push payload.
type Repository struct {
	Name *string `json:"name"`
}

// ParsePushEvent decodes a push payload.
func ParsePushEvent(body []byte) (*PushEvent, error) {
	var ev PushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode push event: %w", err)
	}
	return &ev, nil
}

// RefValue returns the pushed ref, or "" if absent.
func (e *PushEvent) RefValue() string {
	if e.Ref == nil {
		return ""
	}
	return *e.Ref
}

// RepositoryName returns repository.name, or "" if absent.
func (e *PushEvent) RepositoryName() string {
	if e.Repository == nil || e.Repository.Name == nil {
		return ""
	}
	return *e.Repository.Name
}

// Validate returns a descriptive message naming the first missing field, or
// "" if the payload has everything a deploy decision needs.
func (e *PushEvent) Validate() string {
	if e.RefValue() == "" {
		return "missing ref"
	}
	if e.RepositoryName() == "" {
		return "missing repository.name"
	}
	return ""
}

// BranchFromRef returns the text after the last "/" of ref, so
// "refs/heads/prod" yields "prod". A ref without "/" is returned unchanged.
func BranchFromRef(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// Decision is the outcome of matching a push against configuration.
type Decision struct {
	Repository string
	Branch     string
	// Required is the configured branch, "" when the repository is not configured.
	Required string
	Deploy   bool
}

// BranchLookup resolves the required branch for a repository name.
type BranchLookup interface {
	BranchFor(name string) (string, bool)
}

// Decide compares the pushed branch with the branch configured for the
// repository. Unconfigured repositories never deploy.
func Decide(ev *PushEvent, lookup BranchLookup) Decision {
	d := Decision{
		Repository: ev.RepositoryName(),
		Branch:     BranchFromRef(ev.RefValue()),
	}
	required, ok := lookup.BranchFor(d.Repository)
	if !ok {
		return d
	}
	d.Required = required
	d.Deploy = d.Branch != "" && d.Branch == required
	return d
}
