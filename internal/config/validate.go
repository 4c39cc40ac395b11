package config

import (
	"errors"
	"fmt"
	"net/mail"
)

var scheduleWeekdays = map[string]struct{}{
	"sunday":    {},
	"monday":    {},
	"tuesday":   {},
	"wednesday": {},
	"thursday":  {},
	"friday":    {},
	"saturday":  {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSMTP(); err != nil {
		return err
	}
	if err := c.validateSummarizer(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSMTP() error {
	if c.SMTP.Host == "" {
		return errors.New("smtp.host must be set")
	}
	if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port %d out of range", c.SMTP.Port)
	}
	if c.SMTP.FromAddress == "" {
		return errors.New("smtp.from_address must be set")
	}
	if _, err := mail.ParseAddress(c.SMTP.FromAddress); err != nil {
		return fmt.Errorf("smtp.from_address: %w", err)
	}
	return nil
}

func (c *Config) validateSummarizer() error {
	if c.Summarizer.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/digest/config.toml"
		}
		return fmt.Errorf("summarizer.api_key is required. Edit %s (create with 'digest config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, ok := scheduleWeekdays[c.Schedule.Weekday]; !ok {
		return fmt.Errorf("schedule.weekday: unknown weekday %q", c.Schedule.Weekday)
	}
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		return fmt.Errorf("schedule.hour %d out of range", c.Schedule.Hour)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.RetryBaseDelaySeconds > c.Workflow.RetryMaxDelaySeconds {
		return errors.New("workflow.retry_base_delay_seconds must not exceed workflow.retry_max_delay_seconds")
	}
	if c.Workflow.HeartbeatInterval >= c.Workflow.HeartbeatTimeout {
		return errors.New("workflow.heartbeat_interval must be smaller than workflow.heartbeat_timeout")
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
	return nil
}
