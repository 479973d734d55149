package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/odoosweep/internal/cleanup"
)

const sampleConfig = `
[logging]
level = "debug"
format = "text"

[transport]
timeout_ms = 5000
retry_remote_errors = true
requests_per_second = 4

[instances.prod]
url = "https://erp.example.com"
db = "prod"
username = "admin"
password = "${TEST_ODOOSWEEP_PASSWORD:fallback}"

[instances.staging]
url = "http://staging.local:8069"
db = "staging"
username = "admin"
api_key = "0123456789abcdef"
timeout_ms = 1000
max_retries = 5

[cleanup]
days_threshold = 90
report_format = "yaml"

[reset]
keep_menus = false

[[schedules]]
name = "nightly"
instance = "staging"
cron = "0 3 * * *"
simulation = false

[[schedules]]
name = "monthly-reset"
instance = "staging"
engine = "reset"
cron = "@monthly"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_ODOOSWEEP_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Logging.Output, "default applied")
	assert.Equal(t, []string{"prod", "staging"}, cfg.InstanceNames())
	assert.Equal(t, "s3cret", cfg.Instances["prod"].Password)
	assert.Equal(t, 90, cfg.Cleanup.DaysThreshold)
	assert.Equal(t, DefaultReportDir, cfg.Cleanup.ReportDir)
	assert.Equal(t, cleanup.EngineCleanup, cfg.Schedules[0].Engine, "engine defaults to cleanup")
	assert.Empty(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "[logging\nlevel="))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, DefaultTimeoutMs, cfg.Transport.TimeoutMs)
	assert.Equal(t, DefaultMaxRetries, cfg.Transport.MaxRetries)
	assert.Equal(t, DefaultInitialBackoffMs, cfg.Transport.InitialBackoffMs)
	assert.Equal(t, DefaultMaxBackoffMs, cfg.Transport.MaxBackoffMs)
	assert.Equal(t, DefaultDaysThreshold, cfg.Cleanup.DaysThreshold)
	assert.Equal(t, DefaultReportFormat, cfg.Cleanup.ReportFormat)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
}

func validConfig() *Config {
	cfg := &Config{
		Instances: map[string]InstanceConfig{
			"prod": {URL: "https://erp.example.com", DB: "prod", Username: "admin", Password: "pw"},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no instances", func(c *Config) { c.Instances = nil }, "at least one instance"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging.format"},
		{"missing url", func(c *Config) { setInstance(c, func(i *InstanceConfig) { i.URL = "" }) }, "instances.prod.url is required"},
		{"bad scheme", func(c *Config) { setInstance(c, func(i *InstanceConfig) { i.URL = "ftp://erp" }) }, "must use http or https"},
		{"credentials in url", func(c *Config) {
			setInstance(c, func(i *InstanceConfig) { i.URL = "https://admin:pw@erp.example.com" })
		}, "must not embed credentials"},
		{"missing db", func(c *Config) { setInstance(c, func(i *InstanceConfig) { i.DB = "" }) }, "instances.prod.db is required"},
		{"missing secret", func(c *Config) { setInstance(c, func(i *InstanceConfig) { i.Password = "" }) }, "password or api_key is required"},
		{"short api key", func(c *Config) { setInstance(c, func(i *InstanceConfig) { i.APIKey = "short" }) }, "api_key is too short"},
		{"zero retries", func(c *Config) { c.Transport.MaxRetries = 0 }, "transport.max_retries"},
		{"backoff order", func(c *Config) { c.Transport.InitialBackoffMs = 60000 }, "exceeds transport.max_backoff_ms"},
		{"report format", func(c *Config) { c.Cleanup.ReportFormat = "csv" }, "invalid cleanup.report_format"},
		{"report dir traversal", func(c *Config) { c.Cleanup.ReportDir = "../../etc" }, "path traversal"},
		{"telegram without token", func(c *Config) { c.Notify.Telegram = TelegramConfig{Enabled: true, ChatID: 1} }, "notify.telegram.token is required"},
		{"telegram without chat", func(c *Config) {
			c.Notify.Telegram = TelegramConfig{Enabled: true, Token: "123456:ABCDEFGHIJKLMNOP"}
		}, "notify.telegram.chat_id is required"},
		{"telegram bad token", func(c *Config) {
			c.Notify.Telegram = TelegramConfig{Enabled: true, Token: "nocolon", ChatID: 1}
		}, "invalid format"},
		{"schedule unknown instance", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "n", Instance: "dev", Engine: cleanup.EngineCleanup, Cron: "@daily"}}
		}, `unknown instance "dev"`},
		{"schedule bad cron", func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "n", Instance: "prod", Engine: cleanup.EngineCleanup, Cron: "nightly"}}
		}, "invalid cron expression"},
		{"schedule duplicate", func(c *Config) {
			s := ScheduleConfig{Name: "n", Instance: "prod", Engine: cleanup.EngineCleanup, Cron: "@daily"}
			c.Schedules = []ScheduleConfig{s, s}
		}, `duplicate name "n"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			assert.True(t, containsError(errs, tt.wantErr), "expected %q in %v", tt.wantErr, errs)
		})
	}
}

func TestConfigValidation_CollectsAll(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "loud"
	cfg.Cleanup.ReportFormat = "csv"
	cfg.Transport.TimeoutMs = -1

	assert.Len(t, cfg.Validate(), 3)
}

func TestConfigValidation_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Notify.Telegram = TelegramConfig{Enabled: true, ChatID: 1, Token: "12ab:SECRETSECRETSECRET"}

	for _, err := range cfg.Validate() {
		assert.NotContains(t, err.Error(), "SECRETSECRETSECRET")
	}
}

func setInstance(c *Config, fn func(*InstanceConfig)) {
	inst := c.Instances["prod"]
	fn(&inst)
	c.Instances["prod"] = inst
}

func containsError(errs []error, substr string) bool {
	for _, err := range errs {
		if strings.Contains(err.Error(), substr) {
			return true
		}
	}
	return false
}

func TestRPCConfigs(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	rpcs := cfg.RPCConfigs()
	require.Len(t, rpcs, 2)

	prod := rpcs["prod"]
	assert.Equal(t, "prod", prod.Instance)
	assert.Equal(t, 5*time.Second, prod.Timeout)
	assert.Equal(t, DefaultMaxRetries, prod.MaxRetries)
	assert.Equal(t, time.Second, prod.InitialBackoff)
	assert.Equal(t, 30*time.Second, prod.MaxBackoff)
	assert.True(t, prod.RetryRemoteErrors)
	assert.Equal(t, 4.0, prod.RequestsPerSecond)

	staging := rpcs["staging"]
	assert.Equal(t, time.Second, staging.Timeout, "instance override")
	assert.Equal(t, 5, staging.MaxRetries)
	assert.Equal(t, "0123456789abcdef", staging.APIKey)
}

func TestJobsAndResetOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	jobs := cfg.Jobs()
	require.Len(t, jobs, 2)

	assert.Equal(t, cleanup.Job{
		Name:          "nightly",
		Instance:      "staging",
		Engine:        cleanup.EngineCleanup,
		Schedule:      "0 3 * * *",
		Simulation:    false,
		DaysThreshold: 90,
		Reset: cleanup.ResetOptions{
			KeepCompanyDefaults: true,
			KeepUserAccounts:    true,
			KeepGroups:          true,
		},
	}, jobs[0])

	assert.True(t, jobs[1].Simulation, "schedules simulate unless told otherwise")
	assert.Equal(t, cleanup.EngineReset, jobs[1].Engine)
	assert.True(t, jobs[1].Reset.Simulation)
	assert.False(t, jobs[1].Reset.KeepMenus)

	assert.Equal(t, cleanup.ResetOptions{
		KeepCompanyDefaults: true,
		KeepUserAccounts:    true,
		KeepMenus:           true,
		KeepGroups:          true,
	}, (&Config{}).ResetOptions(false))

	assert.Equal(t, cleanup.Options{Simulation: true, DaysThreshold: 90}, cfg.CleanupOptions(true))
	assert.Equal(t, cleanup.ServiceConfig{ReportDir: DefaultReportDir, ReportFormat: "yaml"}, cfg.ServiceConfig())
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_ODOOSWEEP_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${TEST_ODOOSWEEP_SET}", "value"},
		{"${TEST_ODOOSWEEP_SET:other}", "value"},
		{"${TEST_ODOOSWEEP_UNSET:fallback}", "fallback"},
		{"${TEST_ODOOSWEEP_UNSET}", ""},
		{"${unterminated", "${unterminated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnv(tt.in), tt.in)
	}
}

func TestMasking(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "***", maskSecret("short"))
	assert.Equal(t, "0123********cdef", maskSecret("0123456789abcdef"))
	assert.Equal(t, "123456:ABCD******KLMN", maskTelegramToken("123456:ABCDEFGHIJKLMN"))

	masked := MaskInstance(InstanceConfig{URL: "https://x", Password: "pw", APIKey: "0123456789abcdef"})
	assert.Equal(t, "***", masked.Password)
	assert.Equal(t, "0123********cdef", masked.APIKey)
	assert.Equal(t, "https://x", masked.URL)
}
