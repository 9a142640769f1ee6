package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", DefaultMaxBodySize, false},
		{"2048", 2048, false},
		{"512KB", 512 * 1024, false},
		{"1mb", 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"0", 0, true},
		{"-5KB", 0, true},
		{"lots", 0, true},
		{"9223372036854775807GB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderRedactsSecret(t *testing.T) {
	cfg, err := Load(envLookup(baseEnv()))
	require.NoError(t, err)

	out, err := cfg.Render()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "s3cret")

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(out, &got))
	assert.Equal(t, "<redacted, 6 bytes>", got["secret"])
	assert.Equal(t, "/hooks", got["mount_path"])
	assert.Equal(t, "10m0s", got["deploy_timeout"])
}

func TestFingerprint(t *testing.T) {
	cfg, err := Load(envLookup(baseEnv()))
	require.NoError(t, err)

	fp1, err := cfg.Fingerprint()
	require.NoError(t, err)
	assert.Len(t, fp1, 64)

	env := baseEnv()
	env["SECRET"] = "rotated"
	rotated, err := Load(envLookup(env))
	require.NoError(t, err)
	fp2, err := rotated.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2, "secret must not affect the fingerprint")

	env = baseEnv()
	env["BRANCH_SITEA"] = "release"
	changed, err := Load(envLookup(env))
	require.NoError(t, err)
	fp3, err := changed.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)
}
