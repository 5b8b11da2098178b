package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "https://dav.example.com/remote.php/webdav"
username = "alice"
app_password = "xxxx-yyyy"

[remote]
root = "apps/covey"

[sync]
enabled = true
interval = "10m"
retry_interval = "1m"

[logging]
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Configured())
	assert.Equal(t, "alice", cfg.Server.Username)
	assert.Equal(t, "apps/covey", cfg.Remote.Root)
	assert.Equal(t, 10*time.Minute, cfg.Sync.IntervalDuration())
	assert.Equal(t, time.Minute, cfg.Sync.RetryIntervalDuration())
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
}

func TestLoad_DefaultsFillUnsetFields(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "https://dav.example.com"
username = "alice"
app_password = "pw"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Sync.IntervalDuration())
	assert.Equal(t, 30*time.Second, cfg.Sync.RetryIntervalDuration())
	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)
}

func TestLoad_UnknownKeySuggests(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "https://dav.example.com"
username = "alice"
app_password = "pw"
usernme = "typo"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean")
	assert.Contains(t, err.Error(), "username")
}

func TestLoad_PartialServerSectionRejected(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "https://dav.example.com"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}

func TestLoad_BadSchemeRejected(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "ftp://dav.example.com"
username = "alice"
app_password = "pw"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}

func TestLoad_BadIntervalRejected(t *testing.T) {
	path := writeConfig(t, `
[sync]
interval = "often"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_NegativeIntervalRejected(t *testing.T) {
	path := writeConfig(t, `
[sync]
retry_interval = "-10s"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.False(t, cfg.Configured())
	assert.True(t, cfg.Sync.Enabled)
}

func TestDefaultPaths_RespectXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	if got := DefaultConfigPath(); got != "/tmp/xdg-config/covey/config.toml" {
		t.Skipf("non-Linux platform: %s", got)
	}

	assert.Equal(t, "/tmp/xdg-data/covey/covey.db", DefaultDatabasePath())
}
