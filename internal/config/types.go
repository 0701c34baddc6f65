package config

import (
	"slices"
	"time"
)

// Config is the root configuration for wirebot.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream,omitempty"`
	Browser  BrowserConfig  `yaml:"browser,omitempty"`
	Push     PushConfig     `yaml:"push,omitempty"`
	Plugins  PluginsConfig  `yaml:"plugins,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// UpstreamConfig controls the connection to the chat platform's
// WebSocket endpoint.
type UpstreamConfig struct {
	URL                string  `yaml:"url,omitempty"`   // ws:// or wss://
	Token              string  `yaml:"token,omitempty"` // sent as Authorization: Bearer
	ReconnectSeconds   int     `yaml:"reconnectSeconds,omitempty"`
	CallTimeoutSeconds int     `yaml:"callTimeoutSeconds,omitempty"`
	SendPerSecond      float64 `yaml:"sendPerSecond,omitempty"` // outbound rate limit, 0 disables
}

// ReconnectDelay is the flat pause between connection attempts.
func (u UpstreamConfig) ReconnectDelay() time.Duration {
	return time.Duration(u.ReconnectSeconds) * time.Second
}

// CallTimeout bounds how long an action call waits for its reply.
func (u UpstreamConfig) CallTimeout() time.Duration {
	return time.Duration(u.CallTimeoutSeconds) * time.Second
}

// BrowserConfig controls the headless browser used for screenshots.
type BrowserConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	ChromePath  string `yaml:"chromePath,omitempty"`  // binary to launch; empty means search PATH
	DevToolsURL string `yaml:"devtoolsUrl,omitempty"` // attach to a running browser instead of launching
	Width       int    `yaml:"width,omitempty"`
	Height      int    `yaml:"height,omitempty"`
}

// PushConfig controls the scheduled daily broadcast.
type PushConfig struct {
	Hour            int     `yaml:"hour,omitempty"`
	Minute          int     `yaml:"minute,omitempty"`
	AllowGroups     []int64 `yaml:"allowGroups,omitempty"` // when non-empty only these groups receive pushes
	BlockGroups     []int64 `yaml:"blockGroups,omitempty"`
	IntervalSeconds int     `yaml:"intervalSeconds,omitempty"` // pause between groups
}

// Allows reports whether a group receives broadcasts. A non-empty
// allowlist overrides the blocklist entirely.
func (p PushConfig) Allows(group int64) bool {
	if len(p.AllowGroups) > 0 {
		return slices.Contains(p.AllowGroups, group)
	}
	return !slices.Contains(p.BlockGroups, group)
}

// InterGroupDelay is the pause inserted between per-group sends.
func (p PushConfig) InterGroupDelay() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// PluginsConfig controls the message-handling chain.
type PluginsConfig struct {
	Enabled    map[string]bool `yaml:"enabled,omitempty"` // absent plugins default to enabled
	Superusers []int64         `yaml:"superusers,omitempty"`
	Filter     FilterConfig    `yaml:"filter,omitempty"`
	AI         AIConfig        `yaml:"ai,omitempty"`
}

// IsEnabled reports whether a plugin should run.
func (p PluginsConfig) IsEnabled(name string) bool {
	if v, ok := p.Enabled[name]; ok {
		return v
	}
	return true
}

// IsSuperuser reports whether a user may run admin commands.
func (p PluginsConfig) IsSuperuser(user int64) bool {
	return slices.Contains(p.Superusers, user)
}

// FilterConfig lists outbound content rules.
type FilterConfig struct {
	Redact []string `yaml:"redact,omitempty"` // replaced with *** before sending
	Block  []string `yaml:"block,omitempty"`  // message dropped entirely
}

// AIConfig configures the model behind the ai plugin.
type AIConfig struct {
	Model   string `yaml:"model,omitempty"`
	APIKey  string `yaml:"apiKey,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty"` // OpenAI-compatible endpoint override
}

// StorageConfig controls the sqlite database location and retention.
type StorageConfig struct {
	Path          string `yaml:"path,omitempty"`          // empty means <data dir>/wirebot.db
	RetentionDays int    `yaml:"retentionDays,omitempty"` // 0 keeps archived messages forever
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
}
