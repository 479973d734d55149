package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/aatumaykin/odoosweep/internal/cleanup"
	"github.com/aatumaykin/odoosweep/internal/report"
)

// Load загружает конфигурацию из TOML файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := finish(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv строит конфигурацию только из переменных окружения ODOO_*
func FromEnv() (*Config, error) {
	var cfg Config
	if err := finish(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finish(cfg *Config) error {
	applyDefaults(cfg)

	if err := expandEnvVars(cfg); err != nil {
		return fmt.Errorf("failed to expand environment variables: %w", err)
	}

	if len(cfg.Instances) == 0 {
		instances, err := instancesFromEnv()
		if err != nil {
			return fmt.Errorf("failed to read instances from environment: %w", err)
		}
		cfg.Instances = instances
	}
	return nil
}

// Validate проверяет валидность конфигурации и возвращает все найденные ошибки
func (c *Config) Validate() []error {
	var errors []error

	// Проверка logging config
	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}

	if c.Logging.Format == "" {
		errors = append(errors, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Logging.Output == "" {
		errors = append(errors, fmt.Errorf("logging.output is required"))
	}

	errors = append(errors, c.Transport.validate()...)

	// Проверка инстансов
	if len(c.Instances) == 0 {
		errors = append(errors, fmt.Errorf("at least one instance is required ([instances.<name>] or ODOO_URL)"))
	}
	for _, name := range c.InstanceNames() {
		errors = append(errors, validateInstance(name, c.Instances[name])...)
	}

	// Проверка cleanup
	if c.Cleanup.DaysThreshold < 1 {
		errors = append(errors, fmt.Errorf("cleanup.days_threshold must be >= 1 (got %d)", c.Cleanup.DaysThreshold))
	}
	switch c.Cleanup.ReportFormat {
	case report.FormatJSON, report.FormatYAML:
	default:
		errors = append(errors, fmt.Errorf("invalid cleanup.report_format: %s (expected: json, yaml)", c.Cleanup.ReportFormat))
	}
	if c.Cleanup.ReportDir != "" {
		if err := validatePath(c.Cleanup.ReportDir, "cleanup.report_dir"); err != nil {
			errors = append(errors, err)
		}
	}

	// Проверка Telegram уведомлений
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.Token == "" {
			errors = append(errors, fmt.Errorf("notify.telegram.token is required when telegram is enabled"))
		} else if err := validateTelegramToken(c.Notify.Telegram.Token); err != nil {
			errors = append(errors, err)
		}
		if c.Notify.Telegram.ChatID == 0 {
			errors = append(errors, fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled"))
		}
	}

	if c.Server.Enabled && c.Server.Listen == "" {
		errors = append(errors, fmt.Errorf("server.listen is required when server is enabled"))
	}

	errors = append(errors, c.validateSchedules()...)

	return errors
}

func (t TransportConfig) validate() []error {
	var errors []error
	if t.TimeoutMs < 1 {
		errors = append(errors, fmt.Errorf("transport.timeout_ms must be >= 1 (got %d)", t.TimeoutMs))
	}
	if t.MaxRetries < 1 {
		errors = append(errors, fmt.Errorf("transport.max_retries must be >= 1 (got %d)", t.MaxRetries))
	}
	if t.InitialBackoffMs < 0 || t.MaxBackoffMs < 0 {
		errors = append(errors, fmt.Errorf("transport backoff values must not be negative"))
	} else if t.InitialBackoffMs > t.MaxBackoffMs {
		errors = append(errors, fmt.Errorf("transport.initial_backoff_ms (%d) exceeds transport.max_backoff_ms (%d)", t.InitialBackoffMs, t.MaxBackoffMs))
	}
	if t.RequestsPerSecond < 0 {
		errors = append(errors, fmt.Errorf("transport.requests_per_second must not be negative"))
	}
	return errors
}

func validateInstance(name string, inst InstanceConfig) []error {
	var errors []error
	prefix := "instances." + name

	if inst.URL == "" {
		errors = append(errors, fmt.Errorf("%s.url is required", prefix))
	} else if err := validateURL(inst.URL, prefix+".url"); err != nil {
		errors = append(errors, err)
	}
	if inst.DB == "" {
		errors = append(errors, fmt.Errorf("%s.db is required", prefix))
	}
	if inst.Username == "" {
		errors = append(errors, fmt.Errorf("%s.username is required", prefix))
	}

	switch {
	case inst.APIKey != "":
		if err := validateAPIKey(inst.APIKey, prefix+".api_key"); err != nil {
			errors = append(errors, err)
		}
	case inst.Password == "":
		errors = append(errors, fmt.Errorf("%s: password or api_key is required", prefix))
	}

	if inst.TimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("%s.timeout_ms must not be negative", prefix))
	}
	if inst.MaxRetries < 0 {
		errors = append(errors, fmt.Errorf("%s.max_retries must not be negative", prefix))
	}
	return errors
}

func (c *Config) validateSchedules() []error {
	var errors []error
	seen := make(map[string]bool)
	scheduler := cleanup.NewScheduler(nil, nil)

	for i, job := range c.Jobs() {
		if job.Name != "" {
			if seen[job.Name] {
				errors = append(errors, fmt.Errorf("schedules[%d]: duplicate name %q", i, job.Name))
			}
			seen[job.Name] = true
		}
		if job.Instance != "" {
			if _, ok := c.Instances[job.Instance]; !ok {
				errors = append(errors, fmt.Errorf("schedules[%d]: unknown instance %q", i, job.Instance))
			}
		}
		if err := scheduler.ValidateJob(job); err != nil {
			errors = append(errors, fmt.Errorf("schedules[%d]: %w", i, err))
		}
	}
	return errors
}

// Helper validation functions
func validateAPIKey(key, fieldName string) error {
	if key == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if len(key) < 10 {
		return formatValidationError(fieldName, fmt.Sprintf("is too short (minimum 10 characters, got %d)", len(key)), key)
	}

	return nil
}

func validateURL(raw, fieldName string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https (got %q)", fieldName, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", fieldName)
	}
	if u.User != nil {
		return fmt.Errorf("%s must not embed credentials", fieldName)
	}
	return nil
}

func validateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram token cannot be empty")
	}

	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return fmt.Errorf("telegram token has invalid format (expected format: <bot_id>:<token>, got: %s)", maskSecret(token))
	}

	botID := parts[0]
	botToken := parts[1]

	if len(botID) < 3 || len(botID) > 15 {
		return fmt.Errorf("telegram token has invalid bot ID length (expected 3-15 digits, got %d digits)", len(botID))
	}

	for _, r := range botID {
		if r < '0' || r > '9' {
			return fmt.Errorf("telegram token has invalid bot ID (expected digits only, got: %s)", maskTelegramToken(token))
		}
	}

	if len(botToken) < 10 || len(botToken) > 50 {
		return fmt.Errorf("telegram token has invalid token length (expected 10-50 characters, got %d)", len(botToken))
	}

	return nil
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if strings.HasPrefix(path, "~") {
		return nil
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}

	return nil
}

// InstanceNames возвращает отсортированные имена инстансов
func (c *Config) InstanceNames() []string {
	names := make([]string, 0, len(c.Instances))
	for name := range c.Instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// expandEnvVars расширяет переменные окружения в конфигурации
func expandEnvVars(c *Config) error {
	for name, inst := range c.Instances {
		inst.URL = expandEnv(inst.URL)
		inst.DB = expandEnv(inst.DB)
		inst.Username = expandEnv(inst.Username)
		inst.Password = expandEnv(inst.Password)
		inst.APIKey = expandEnv(inst.APIKey)
		c.Instances[name] = inst
	}

	c.Notify.Telegram.Token = expandEnv(c.Notify.Telegram.Token)

	c.Cleanup.ReportDir = expandHome(expandEnv(c.Cleanup.ReportDir))
	c.Logging.Output = expandEnv(c.Logging.Output)

	return nil
}

// expandEnv расширяет переменную окружения формата ${VAR:default}
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		key := parts[0]
		defaultVal := parts[1]
		if val := os.Getenv(key); val != "" {
			return val
		}
		return defaultVal
	}

	// Без значения по умолчанию
	return os.Getenv(content)
}

// expandHome расширяет ~ в пути
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
