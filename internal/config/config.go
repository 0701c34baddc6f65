package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Upstream: UpstreamConfig{
			URL:                "ws://127.0.0.1:6700",
			ReconnectSeconds:   3,
			CallTimeoutSeconds: 30,
			SendPerSecond:      5,
		},
		Browser: BrowserConfig{
			Width:  1280,
			Height: 720,
		},
		Push: PushConfig{
			Hour:            22,
			IntervalSeconds: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
