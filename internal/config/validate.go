package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateDetectors(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateClient(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.MaxUploadMB <= 0 {
		return errors.New("api.max_upload_mb must be positive")
	}
	for _, origin := range c.API.AllowedOrigins {
		if origin == "*" {
			continue
		}
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("api.allowed_origins: %q is not an origin (scheme://host[:port])", origin)
		}
	}
	return nil
}

func (c *Config) validateDetectors() error {
	if len(c.Detectors.AudioCommand) == 0 {
		return errors.New("detectors.audio_command must list the audio detector executable")
	}
	if len(c.Detectors.HandCommand) == 0 {
		return errors.New("detectors.hand_command must list the hand detector executable")
	}
	if c.Detectors.TimeoutSeconds < 0 {
		return errors.New("detectors.timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.max_concurrent_jobs":    c.Workflow.MaxConcurrentJobs,
		"workflow.sweep_interval_minutes": c.Workflow.SweepIntervalMinutes,
	}); err != nil {
		return err
	}
	if c.Workflow.ArtifactRetentionHours < 0 {
		return errors.New("workflow.artifact_retention_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateClient() error {
	if err := ensurePositiveMap(map[string]int{
		"client.poll_interval_ms":    c.Client.PollIntervalMS,
		"client.backoff_interval_ms": c.Client.BackoffIntervalMS,
	}); err != nil {
		return err
	}
	if c.Client.BackoffIntervalMS < c.Client.PollIntervalMS {
		return errors.New("client.backoff_interval_ms must be >= client.poll_interval_ms")
	}
	if c.Client.APIURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Client.APIURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("client.api_url: %q is not a valid URL", c.Client.APIURL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
