package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autostudy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
credentials:
  username: user
  password: secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:8089", cfg.Server.Addr)
	require.Equal(t, "https://edu.nxgbjy.org.cn", cfg.Platform.BaseURL)
	require.Equal(t, "3ee5648315e911e7b2f200fff6167960", cfg.Platform.Token)
	require.Equal(t, "CCR!@#$%", cfg.Credentials.CipherKey)
	require.Equal(t, 3, cfg.Scheduler.Workers)
	require.Equal(t, 2, cfg.Scheduler.MaxInFlight)
	require.Equal(t, 30*time.Second, cfg.Playback.Cadence)
	require.Equal(t, 2*time.Second, cfg.Scheduler.RetryBase)
	require.Equal(t, 5, cfg.Scheduler.RetryAttempts)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 0.0.0.0:9999
credentials:
  username: user
  password: secret
scheduler:
  workers: 7
  submit_interval: 5s
playback:
  cadence: 45s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9999", cfg.Server.Addr)
	require.Equal(t, 7, cfg.Scheduler.Workers)
	require.Equal(t, 5*time.Second, cfg.Scheduler.SubmitInterval)
	require.Equal(t, 45*time.Second, cfg.Playback.Cadence)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTOSTUDY_USERNAME", "env-user")
	t.Setenv("AUTOSTUDY_PASSWORD", "env-pass")
	t.Setenv("AUTOSTUDY_BASE_URL", "http://127.0.0.1:1")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "a missing config file falls back to defaults and env")

	require.Equal(t, "env-user", cfg.Credentials.Username)
	require.Equal(t, "env-pass", cfg.Credentials.Password)
	require.Equal(t, "http://127.0.0.1:1", cfg.Platform.BaseURL)
}

func TestLoadRequiresCredentials(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:8089
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "username")
}

func TestValidateCipherKeyLength(t *testing.T) {
	path := writeConfig(t, `
credentials:
  username: user
  password: secret
  cipher_key: too-long-key
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "cipher_key")
}

func TestValidatePlaybackChances(t *testing.T) {
	path := writeConfig(t, `
credentials:
  username: user
  password: secret
playback:
  seek_chance: 0.6
  pause_chance: 0.6
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "seek_chance")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "credentials: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}
