// Package config provides configuration loading and validation for odoosweep.
// It supports TOML configuration files with environment variable expansion,
// default values, an ODOO_* environment fallback and validation.
//
// Configuration structure:
//   - [logging]: Logging level, format, and output
//   - [transport]: Per-attempt timeout, retries, backoff and rate limit
//   - [instances.<name>]: Connection details for each remote instance
//   - [cleanup]: Shallow cleanup defaults and report output
//   - [reset]: Deep cleanup retention switches
//   - [server]: HTTP trigger and metrics endpoint
//   - [notify.telegram]: Report notifications
//   - [[schedules]]: Recurring engine runs
//
// Environment variables:
// Environment variables can be referenced using ${VAR} or ${VAR:default} syntax.
// For example: password = "${ODOO_PASSWORD:admin}"
package config

// Config represents the main application configuration.
type Config struct {
	Logging   LoggingConfig             `toml:"logging"`
	Transport TransportConfig           `toml:"transport"`
	Instances map[string]InstanceConfig `toml:"instances"`
	Cleanup   CleanupConfig             `toml:"cleanup"`
	Reset     ResetConfig               `toml:"reset"`
	Server    ServerConfig              `toml:"server"`
	Notify    NotifyConfig              `toml:"notify"`
	Schedules []ScheduleConfig          `toml:"schedules"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// TransportConfig представляет общие настройки транспорта для всех инстансов
type TransportConfig struct {
	TimeoutMs         int     `toml:"timeout_ms"`
	MaxRetries        int     `toml:"max_retries"`
	InitialBackoffMs  int     `toml:"initial_backoff_ms"`
	MaxBackoffMs      int     `toml:"max_backoff_ms"`
	RetryRemoteErrors bool    `toml:"retry_remote_errors"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// InstanceConfig представляет подключение к одному инстансу.
// TimeoutMs и MaxRetries переопределяют [transport], если заданы.
type InstanceConfig struct {
	URL        string `toml:"url"`
	DB         string `toml:"db"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	APIKey     string `toml:"api_key"`
	TimeoutMs  int    `toml:"timeout_ms"`
	MaxRetries int    `toml:"max_retries"`
}

// CleanupConfig представляет настройки поверхностной очистки и отчётов
type CleanupConfig struct {
	DaysThreshold int    `toml:"days_threshold"`
	ReportDir     string `toml:"report_dir"`
	ReportFormat  string `toml:"report_format"`
}

// ResetConfig представляет настройки глубокой очистки.
// Указатели отличают "не задано" (по умолчанию true) от явного false.
type ResetConfig struct {
	KeepCompanyDefaults *bool `toml:"keep_company_defaults"`
	KeepUserAccounts    *bool `toml:"keep_user_accounts"`
	KeepMenus           *bool `toml:"keep_menus"`
	KeepGroups          *bool `toml:"keep_groups"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// NotifyConfig представляет конфигурацию уведомлений
type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

// TelegramConfig представляет конфигурацию Telegram уведомлений
type TelegramConfig struct {
	Enabled            bool   `toml:"enabled"`
	Token              string `toml:"token"`
	ChatID             int64  `toml:"chat_id"`
	SendTimeoutSeconds int    `toml:"send_timeout_seconds"`
}

// ScheduleConfig представляет периодический запуск движка очистки
type ScheduleConfig struct {
	Name          string   `toml:"name"`
	Instance      string   `toml:"instance"`
	Engine        string   `toml:"engine"`
	Cron          string   `toml:"cron"`
	Simulation    *bool    `toml:"simulation"`
	DaysThreshold int      `toml:"days_threshold"`
	Groups        []string `toml:"groups"`
}
