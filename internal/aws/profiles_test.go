package aws

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProfiles(t *testing.T) {
	dir := t.TempDir()
	credsPath := filepath.Join(dir, "credentials")
	configPath := filepath.Join(dir, "config")

	require.NoError(t, os.WriteFile(credsPath, []byte(`[default]
aws_access_key_id = AKIDEXAMPLE
aws_secret_access_key = secret

[billing]
aws_access_key_id = AKIDEXAMPLE
aws_secret_access_key = secret
`), 0600))
	require.NoError(t, os.WriteFile(configPath, []byte(`[default]
region = us-west-2

[profile reports-sso]
sso_start_url = https://example.awsapps.com/start
region = eu-west-1
`), 0600))

	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", credsPath)
	t.Setenv("AWS_CONFIG_FILE", configPath)

	profiles, err := ListProfiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "default", "reports-sso"}, profiles)

	assert.True(t, IsValidProfile("reports-sso"))
	assert.False(t, IsValidProfile("missing"))
}

func TestListProfilesNoFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "nope"))
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "nope-either"))

	profiles, err := ListProfiles()
	require.NoError(t, err)
	assert.Empty(t, profiles)
}
