package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- ParseConfigPath extended tests ---

func TestParseConfigPath_Extended(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"single segment", "upstream", []string{"upstream"}, false},
		{"two segments", "upstream.url", []string{"upstream", "url"}, false},
		{"three segments", "plugins.ai.model", []string{"plugins", "ai", "model"}, false},
		{"empty", "", nil, true},
		{"empty segment", "upstream..url", nil, true},
		{"leading dot", ".upstream", nil, true},
		{"trailing dot", "upstream.", nil, true},
		{"blocked __proto__", "foo.__proto__.bar", nil, true},
		{"blocked prototype", "prototype.x", nil, true},
		{"blocked constructor", "constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// --- GetValueAtPath extended tests ---

func TestGetValueAtPath_Extended(t *testing.T) {
	root := map[string]any{
		"upstream": map[string]any{
			"url": "ws://127.0.0.1:6700",
			"auth": map[string]any{
				"token": "sekrit",
			},
		},
		"simple": "value",
	}

	tests := []struct {
		name string
		path []string
		want any
		ok   bool
	}{
		{"nested value", []string{"upstream", "url"}, "ws://127.0.0.1:6700", true},
		{"deeply nested", []string{"upstream", "auth", "token"}, "sekrit", true},
		{"top level", []string{"simple"}, "value", true},
		{"missing key", []string{"nonexistent"}, nil, false},
		{"missing nested", []string{"upstream", "nonexistent"}, nil, false},
		{"non-map intermediate", []string{"simple", "sub"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, ok := GetValueAtPath(root, tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, val)
			}
		})
	}
}

// --- SetValueAtPath extended tests ---

func TestSetValueAtPath_Update(t *testing.T) {
	root := map[string]any{
		"upstream": map[string]any{
			"url": "ws://127.0.0.1:6700",
		},
	}

	SetValueAtPath(root, []string{"upstream", "url"}, "ws://other:6700")
	val, ok := GetValueAtPath(root, []string{"upstream", "url"})
	assert.True(t, ok)
	assert.Equal(t, "ws://other:6700", val)
}

func TestSetValueAtPath_CreatesIntermediates(t *testing.T) {
	root := map[string]any{}

	SetValueAtPath(root, []string{"a", "b", "c"}, "deep")
	val, ok := GetValueAtPath(root, []string{"a", "b", "c"})
	assert.True(t, ok)
	assert.Equal(t, "deep", val)
}

func TestSetValueAtPath_OverwritesNonMap(t *testing.T) {
	root := map[string]any{
		"upstream": "string-not-map",
	}

	SetValueAtPath(root, []string{"upstream", "url"}, "ws://x:1")
	val, ok := GetValueAtPath(root, []string{"upstream", "url"})
	assert.True(t, ok)
	assert.Equal(t, "ws://x:1", val)
}

func TestSetValueAtPath_SingleKey(t *testing.T) {
	root := map[string]any{}

	SetValueAtPath(root, []string{"version"}, "1.0.0")
	assert.Equal(t, "1.0.0", root["version"])
}

// --- UnsetValueAtPath extended tests ---

func TestUnsetValueAtPath_PreserveSiblings(t *testing.T) {
	root := map[string]any{
		"upstream": map[string]any{
			"url":   "ws://127.0.0.1:6700",
			"token": "sekrit",
		},
	}

	ok := UnsetValueAtPath(root, []string{"upstream", "token"})
	assert.True(t, ok)

	_, found := GetValueAtPath(root, []string{"upstream", "token"})
	assert.False(t, found)

	val, found := GetValueAtPath(root, []string{"upstream", "url"})
	assert.True(t, found)
	assert.Equal(t, "ws://127.0.0.1:6700", val)
}

func TestUnsetValueAtPath_NotFound(t *testing.T) {
	root := map[string]any{
		"upstream": map[string]any{
			"url": "ws://127.0.0.1:6700",
		},
	}

	ok := UnsetValueAtPath(root, []string{"upstream", "nonexistent"})
	assert.False(t, ok)
}

func TestUnsetValueAtPath_MissingIntermediate(t *testing.T) {
	root := map[string]any{}
	ok := UnsetValueAtPath(root, []string{"a", "b", "c"})
	assert.False(t, ok)
}

func TestUnsetValueAtPath_NonMapIntermediate(t *testing.T) {
	root := map[string]any{
		"upstream": "string",
	}
	ok := UnsetValueAtPath(root, []string{"upstream", "url"})
	assert.False(t, ok)
}

// --- ResolvePaths extended tests ---

func TestResolvePaths_AllFields(t *testing.T) {
	t.Setenv("WIREBOT_HOME", "")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".wirebot"), paths.Base)
	assert.Equal(t, filepath.Join(home, ".wirebot", "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(home, ".wirebot", "data"), paths.Data)
	assert.Equal(t, filepath.Join(home, ".wirebot", "logs"), paths.Logs)
}

func TestResolvePaths_CustomHomeAllFields(t *testing.T) {
	t.Setenv("WIREBOT_HOME", "/tmp/testwb")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/testwb", paths.Base)
	assert.Equal(t, "/tmp/testwb/config.yaml", paths.Config)
	assert.Equal(t, "/tmp/testwb/data", paths.Data)
	assert.Equal(t, "/tmp/testwb/logs", paths.Logs)
}

func TestDatabasePath(t *testing.T) {
	paths := Paths{Data: "/tmp/testwb/data"}

	cfg := Defaults()
	assert.Equal(t, "/tmp/testwb/data/wirebot.db", paths.DatabasePath(&cfg))

	cfg.Storage.Path = "/var/lib/wb.db"
	assert.Equal(t, "/var/lib/wb.db", paths.DatabasePath(&cfg))
}

func TestEnsureDirs_CreatesAll(t *testing.T) {
	tmpDir := t.TempDir()
	paths := Paths{
		Base: tmpDir,
		Data: filepath.Join(tmpDir, "data"),
		Logs: filepath.Join(tmpDir, "logs"),
	}

	err := paths.EnsureDirs()
	require.NoError(t, err)

	for _, dir := range []string{paths.Base, paths.Data, paths.Logs} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureDirs_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	paths := Paths{
		Base: tmpDir,
		Data: filepath.Join(tmpDir, "data"),
		Logs: filepath.Join(tmpDir, "logs"),
	}

	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, paths.EnsureDirs()) // second call should succeed
}

// --- blockedKeys tests ---

func TestBlockedKeys(t *testing.T) {
	assert.True(t, blockedKeys["__proto__"])
	assert.True(t, blockedKeys["prototype"])
	assert.True(t, blockedKeys["constructor"])
	assert.False(t, blockedKeys["upstream"])
	assert.False(t, blockedKeys["url"])
}
