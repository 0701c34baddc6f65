package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Upstream validation
	if cfg.Upstream.URL == "" {
		issues = append(issues, ValidationIssue{
			Path:    "upstream.url",
			Message: "url is required",
		})
	} else if !strings.HasPrefix(cfg.Upstream.URL, "ws://") && !strings.HasPrefix(cfg.Upstream.URL, "wss://") {
		issues = append(issues, ValidationIssue{
			Path:    "upstream.url",
			Message: fmt.Sprintf("must start with ws:// or wss://, got %q", cfg.Upstream.URL),
		})
	}
	if cfg.Upstream.ReconnectSeconds < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "upstream.reconnectSeconds",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Upstream.ReconnectSeconds),
		})
	}
	if cfg.Upstream.CallTimeoutSeconds < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "upstream.callTimeoutSeconds",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Upstream.CallTimeoutSeconds),
		})
	}
	if cfg.Upstream.SendPerSecond < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "upstream.sendPerSecond",
			Message: fmt.Sprintf("must not be negative, got %g", cfg.Upstream.SendPerSecond),
		})
	}

	// Browser validation (only if enabled)
	if cfg.Browser.Enabled {
		if cfg.Browser.Width < 1 || cfg.Browser.Height < 1 {
			issues = append(issues, ValidationIssue{
				Path:    "browser",
				Message: fmt.Sprintf("width and height must be positive, got %dx%d", cfg.Browser.Width, cfg.Browser.Height),
			})
		}
		if cfg.Browser.DevToolsURL != "" && !strings.HasPrefix(cfg.Browser.DevToolsURL, "ws://") && !strings.HasPrefix(cfg.Browser.DevToolsURL, "wss://") {
			issues = append(issues, ValidationIssue{
				Path:    "browser.devtoolsUrl",
				Message: fmt.Sprintf("must start with ws:// or wss://, got %q", cfg.Browser.DevToolsURL),
			})
		}
	}

	// Push validation
	if cfg.Push.Hour < 0 || cfg.Push.Hour > 23 {
		issues = append(issues, ValidationIssue{
			Path:    "push.hour",
			Message: fmt.Sprintf("hour must be 0-23, got %d", cfg.Push.Hour),
		})
	}
	if cfg.Push.Minute < 0 || cfg.Push.Minute > 59 {
		issues = append(issues, ValidationIssue{
			Path:    "push.minute",
			Message: fmt.Sprintf("minute must be 0-59, got %d", cfg.Push.Minute),
		})
	}
	if cfg.Push.IntervalSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "push.intervalSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Push.IntervalSeconds),
		})
	}

	// Storage validation
	if cfg.Storage.RetentionDays < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "storage.retentionDays",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Storage.RetentionDays),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	// AI validation (only if the plugin can run)
	if cfg.Plugins.IsEnabled("ai") && cfg.Plugins.AI.APIKey != "" && cfg.Plugins.AI.Model == "" {
		issues = append(issues, ValidationIssue{
			Path:    "plugins.ai.model",
			Message: "model is required when an API key is set",
		})
	}

	return issues
}
