package config

import "github.com/aatumaykin/odoosweep/internal/cleanup"

const (
	DefaultTimeoutMs        = 30000
	DefaultMaxRetries       = 3
	DefaultInitialBackoffMs = 1000
	DefaultMaxBackoffMs     = 30000
	DefaultDaysThreshold    = 180
	DefaultReportDir        = "./cleanup-logs"
	DefaultReportFormat     = "json"
	DefaultListen           = ":9464"
	DefaultSendTimeout      = 10
)

// applyDefaults применяет значения по умолчанию
func applyDefaults(c *Config) {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Transport.TimeoutMs == 0 {
		c.Transport.TimeoutMs = DefaultTimeoutMs
	}
	if c.Transport.MaxRetries == 0 {
		c.Transport.MaxRetries = DefaultMaxRetries
	}
	if c.Transport.InitialBackoffMs == 0 {
		c.Transport.InitialBackoffMs = DefaultInitialBackoffMs
	}
	if c.Transport.MaxBackoffMs == 0 {
		c.Transport.MaxBackoffMs = DefaultMaxBackoffMs
	}

	if c.Cleanup.DaysThreshold == 0 {
		c.Cleanup.DaysThreshold = DefaultDaysThreshold
	}
	if c.Cleanup.ReportDir == "" {
		c.Cleanup.ReportDir = DefaultReportDir
	}
	if c.Cleanup.ReportFormat == "" {
		c.Cleanup.ReportFormat = DefaultReportFormat
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Notify.Telegram.SendTimeoutSeconds == 0 {
		c.Notify.Telegram.SendTimeoutSeconds = DefaultSendTimeout
	}

	for i := range c.Schedules {
		if c.Schedules[i].Engine == "" {
			c.Schedules[i].Engine = cleanup.EngineCleanup
		}
	}
}
