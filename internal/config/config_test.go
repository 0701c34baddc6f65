package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "ws://127.0.0.1:6700", cfg.Upstream.URL)
	assert.Equal(t, 3, cfg.Upstream.ReconnectSeconds)
	assert.Equal(t, 30, cfg.Upstream.CallTimeoutSeconds)
	assert.Equal(t, 5.0, cfg.Upstream.SendPerSecond)
	assert.False(t, cfg.Browser.Enabled)
	assert.Equal(t, 1280, cfg.Browser.Width)
	assert.Equal(t, 720, cfg.Browser.Height)
	assert.Equal(t, 22, cfg.Push.Hour)
	assert.Equal(t, 0, cfg.Push.Minute)
	assert.Equal(t, 2, cfg.Push.IntervalSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, "ws://127.0.0.1:6700", cfg.Upstream.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
upstream:
  url: ws://10.0.0.2:6700
  token: sekrit
  reconnectSeconds: 5
  callTimeoutSeconds: 10
browser:
  enabled: true
  width: 1920
  height: 1080
push:
  hour: 23
  minute: 30
  allowGroups:
    - 111
    - 222
  intervalSeconds: 1
plugins:
  enabled:
    guess: false
  superusers:
    - 42
  filter:
    redact:
      - secret
    block:
      - spam
  ai:
    model: gpt-4.1-mini
    apiKey: sk-test
storage:
  path: /tmp/wb.db
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.2:6700", cfg.Upstream.URL)
	assert.Equal(t, "sekrit", cfg.Upstream.Token)
	assert.Equal(t, 5, cfg.Upstream.ReconnectSeconds)
	assert.Equal(t, 10, cfg.Upstream.CallTimeoutSeconds)

	assert.True(t, cfg.Browser.Enabled)
	assert.Equal(t, 1920, cfg.Browser.Width)
	assert.Equal(t, 1080, cfg.Browser.Height)

	assert.Equal(t, 23, cfg.Push.Hour)
	assert.Equal(t, 30, cfg.Push.Minute)
	assert.Equal(t, []int64{111, 222}, cfg.Push.AllowGroups)
	assert.Equal(t, 1, cfg.Push.IntervalSeconds)

	assert.False(t, cfg.Plugins.IsEnabled("guess"))
	assert.True(t, cfg.Plugins.IsEnabled("stats"))
	assert.Equal(t, []int64{42}, cfg.Plugins.Superusers)
	assert.Equal(t, []string{"secret"}, cfg.Plugins.Filter.Redact)
	assert.Equal(t, []string{"spam"}, cfg.Plugins.Filter.Block)
	assert.Equal(t, "gpt-4.1-mini", cfg.Plugins.AI.Model)
	assert.Equal(t, "sk-test", cfg.Plugins.AI.APIKey)

	assert.Equal(t, "/tmp/wb.db", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadSendRate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	// An explicit 0 is kept: it means unthrottled sends.
	require.NoError(t, os.WriteFile(path, []byte("upstream:\n  sendPerSecond: 0\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Upstream.SendPerSecond)
	assert.Empty(t, Validate(&cfg))

	// An absent key still lands on the default rate.
	require.NoError(t, os.WriteFile(path, []byte("upstream:\n  url: ws://10.0.0.2:6700\n"), 0o600))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Upstream.SendPerSecond)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WIREBOT_UPSTREAM_URL", "ws://override:6700")
	t.Setenv("WIREBOT_UPSTREAM_TOKEN", "env-token")
	t.Setenv("WIREBOT_LOG_LEVEL", "TRACE")
	t.Setenv("WIREBOT_PUSH_HOUR", "7")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "ws://override:6700", cfg.Upstream.URL)
	assert.Equal(t, "env-token", cfg.Upstream.Token)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Push.Hour)
}

func TestLoadExpandsSensitiveFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
upstream:
  token: ${WB_TEST_TOKEN}
plugins:
  ai:
    apiKey: ${WB_TEST_UNSET}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("WB_TEST_TOKEN", "expanded-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "expanded-secret", cfg.Upstream.Token)
	assert.Equal(t, "${WB_TEST_UNSET}", cfg.Plugins.AI.APIKey, "unset vars stay literal")
}

func TestPushAllows(t *testing.T) {
	var p PushConfig
	assert.True(t, p.Allows(1), "no lists means everything is allowed")

	p.BlockGroups = []int64{5}
	assert.False(t, p.Allows(5))
	assert.True(t, p.Allows(6))

	p.AllowGroups = []int64{7}
	p.BlockGroups = []int64{7}
	assert.True(t, p.Allows(7), "allowlist wins over blocklist")
	assert.False(t, p.Allows(8))
}

func TestPluginsIsEnabled(t *testing.T) {
	var p PluginsConfig
	assert.True(t, p.IsEnabled("anything"), "unlisted plugins default to enabled")

	p.Enabled = map[string]bool{"guess": false, "stats": true}
	assert.False(t, p.IsEnabled("guess"))
	assert.True(t, p.IsEnabled("stats"))
	assert.True(t, p.IsEnabled("dedupe"))
}

func TestUpstreamDurations(t *testing.T) {
	u := UpstreamConfig{ReconnectSeconds: 5, CallTimeoutSeconds: 10}
	assert.Equal(t, 5*time.Second, u.ReconnectDelay())
	assert.Equal(t, 10*time.Second, u.CallTimeout())

	p := PushConfig{IntervalSeconds: 3}
	assert.Equal(t, 3*time.Second, p.InterGroupDelay())
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"upstream.url", []string{"upstream", "url"}, false},
		{"plugins.ai.model", []string{"plugins", "ai", "model"}, false},
		{"", nil, true},
		{"a..b", nil, true},
		{"__proto__.x", nil, true},
		{"x.constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGetSetValueAtPath(t *testing.T) {
	root := map[string]any{
		"upstream": map[string]any{
			"url": "ws://127.0.0.1:6700",
		},
	}

	// Get existing
	val, ok := GetValueAtPath(root, []string{"upstream", "url"})
	assert.True(t, ok)
	assert.Equal(t, "ws://127.0.0.1:6700", val)

	// Get missing
	_, ok = GetValueAtPath(root, []string{"upstream", "missing"})
	assert.False(t, ok)

	// Set existing
	SetValueAtPath(root, []string{"upstream", "url"}, "ws://other:6700")
	val, ok = GetValueAtPath(root, []string{"upstream", "url"})
	assert.True(t, ok)
	assert.Equal(t, "ws://other:6700", val)

	// Set new nested
	SetValueAtPath(root, []string{"plugins", "ai", "model"}, "gpt-4.1-mini")
	val, ok = GetValueAtPath(root, []string{"plugins", "ai", "model"})
	assert.True(t, ok)
	assert.Equal(t, "gpt-4.1-mini", val)
}

func TestUnsetValueAtPath(t *testing.T) {
	root := map[string]any{
		"upstream": map[string]any{
			"url":   "ws://127.0.0.1:6700",
			"token": "sekrit",
		},
	}

	ok := UnsetValueAtPath(root, []string{"upstream", "token"})
	assert.True(t, ok)

	_, exists := GetValueAtPath(root, []string{"upstream", "token"})
	assert.False(t, exists)

	// URL should still be there
	val, exists := GetValueAtPath(root, []string{"upstream", "url"})
	assert.True(t, exists)
	assert.Equal(t, "ws://127.0.0.1:6700", val)

	// Unset missing key
	ok = UnsetValueAtPath(root, []string{"upstream", "nonexistent"})
	assert.False(t, ok)
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := map[string]any{
		"upstream": map[string]any{
			"url": "ws://10.0.0.2:6700",
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"upstream", "url"})
	assert.True(t, ok)
	assert.Equal(t, "ws://10.0.0.2:6700", val)
}

func TestResolvePaths(t *testing.T) {
	t.Setenv("WIREBOT_HOME", t.TempDir())
	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.NotEmpty(t, paths.Base)
	assert.Contains(t, paths.Config, "config.yaml")
	assert.Contains(t, paths.Data, "data")
}

func TestResolvePathsCustomHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("WIREBOT_HOME", tmp)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, tmp, paths.Base)
	assert.Equal(t, filepath.Join(tmp, "config.yaml"), paths.Config)
}

func TestEnsureDirs(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("WIREBOT_HOME", tmp)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirs())

	// Verify dirs exist
	for _, d := range []string{paths.Base, paths.Data, paths.Logs} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
