package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.MaxQueueSize <= 0 {
		return errors.New("capture.max_queue_size must be positive")
	}
	if c.Capture.MaxAttempts <= 0 {
		return errors.New("capture.max_attempts must be positive")
	}
	if c.Capture.RetryBaseDelayMS <= 0 {
		return errors.New("capture.retry_base_delay_ms must be positive")
	}
	if c.Capture.RetryMaxDelayMS < c.Capture.RetryBaseDelayMS {
		return errors.New("capture.retry_max_delay_ms must be at least capture.retry_base_delay_ms")
	}
	if c.Capture.SlowIntervalMS <= 0 || c.Capture.FastIntervalMS <= 0 {
		return errors.New("capture intervals must be positive")
	}
	if c.Capture.GuardWindowMS < 0 {
		return errors.New("capture.guard_window_ms must not be negative")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.BaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Upload.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("upload.base_url %q is not a valid URL", c.Upload.BaseURL)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (console, json)", c.Logging.Format)
	}
	return nil
}
