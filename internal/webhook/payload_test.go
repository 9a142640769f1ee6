package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type branchMap map[string]string

func (m branchMap) BranchFor(name string) (string, bool) {
	b, ok := m[name]
	return b, ok
}

func TestBranchFromRef(t *testing.T) {
	tests := map[string]string{
		"refs/heads/prod":          "prod",
		"refs/heads/feature/login": "login",
		"refs/tags/v1.0.0":         "v1.0.0",
		"main":                     "main",
		"refs/heads/":              "",
		"":                         "",
	}
	for ref, want := range tests {
		assert.Equal(t, want, BranchFromRef(ref), ref)
	}
}

func TestParsePushEvent(t *testing.T) {
	ev, err := ParsePushEvent([]byte(`{"ref":"refs/heads/prod","repository":{"name":"siteA","full_name":"org/siteA"},"pusher":{"name":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/prod", ev.RefValue())
	assert.Equal(t, "siteA", ev.RepositoryName())
	assert.Empty(t, ev.Validate())

	ev, err = ParsePushEvent([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "", ev.RefValue())
	assert.Equal(t, "", ev.RepositoryName())
	assert.Equal(t, "missing ref", ev.Validate())

	_, err = ParsePushEvent([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = ParsePushEvent([]byte(`{"ref":42}`))
	assert.Error(t, err)
}

func TestDecide(t *testing.T) {
	lookup := branchMap{"siteA": "prod"}

	tests := []struct {
		name       string
		ref        string
		repo       string
		wantDeploy bool
		wantReq    string
	}{
		{"matching branch", "refs/heads/prod", "siteA", true, "prod"},
		{"different branch", "refs/heads/main", "siteA", false, "prod"},
		{"suffix only matters", "refs/heads/release/prod", "siteA", true, "prod"},
		{"unknown repository", "refs/heads/prod", "siteB", false, ""},
		{"case sensitive", "refs/heads/Prod", "siteA", false, "prod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, repo := tt.ref, tt.repo
			ev := &PushEvent{Ref: &ref, Repository: &Repository{Name: &repo}}

			d := Decide(ev, lookup)
			assert.Equal(t, tt.wantDeploy, d.Deploy)
			assert.Equal(t, tt.wantReq, d.Required)
			assert.Equal(t, tt.repo, d.Repository)
		})
	}
}
