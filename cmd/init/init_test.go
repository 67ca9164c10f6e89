package init

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coremeter/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewInitCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := run(t, "config", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created config file: "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigContent, string(data))

	_, err = run(t, "config", "--output", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "config", "--output", path, "--force")
	assert.NoError(t, err)
}

func TestInitEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	out, err := run(t, "env", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created env file")

	values, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "default", values["COREMETER_AWS_PROFILE"])
	assert.Equal(t, "1", values["COREMETER_APP_MAX_WORKERS"])
	assert.Equal(t, "csv", values["COREMETER_ANALYZE_OUTPUT_FORMAT"])
}
