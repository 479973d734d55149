package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Переменные окружения для запуска без файла конфигурации
const (
	EnvInstances = "ODOO_INSTANCES"
	EnvURL       = "ODOO_URL"
	EnvDB        = "ODOO_DB"
	EnvUsername  = "ODOO_USERNAME"
	EnvPassword  = "ODOO_PASSWORD"
	EnvAPIKey    = "ODOO_API_KEY"

	// DefaultInstanceName используется для инстанса из ODOO_URL
	DefaultInstanceName = "default"
)

// LoadEnv загружает переменные окружения из .env файла.
// Парсит строки в формате KEY=VALUE, игнорирует пустые строки и комментарии,
// снимает кавычки вокруг значения. Уже заданные переменные не перезаписываются.
func LoadEnv(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)

		// Пропустить пустые строки и комментарии
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

// LoadEnvOptional загружает .env файл, если он существует
func LoadEnvOptional(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return LoadEnv(path)
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// instancesFromEnv читает ODOO_INSTANCES (JSON объект имя -> подключение)
// или одиночный инстанс из ODOO_URL/ODOO_DB/ODOO_USERNAME/ODOO_PASSWORD/ODOO_API_KEY.
func instancesFromEnv() (map[string]InstanceConfig, error) {
	if raw := strings.TrimSpace(os.Getenv(EnvInstances)); raw != "" {
		var parsed map[string]envInstance
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("%s is not a JSON object of instances: %w", EnvInstances, err)
		}
		instances := make(map[string]InstanceConfig, len(parsed))
		for name, inst := range parsed {
			instances[name] = inst.config()
		}
		return instances, nil
	}

	rawURL := os.Getenv(EnvURL)
	if rawURL == "" {
		return nil, nil
	}

	return map[string]InstanceConfig{
		DefaultInstanceName: {
			URL:      rawURL,
			DB:       os.Getenv(EnvDB),
			Username: os.Getenv(EnvUsername),
			Password: os.Getenv(EnvPassword),
			APIKey:   os.Getenv(EnvAPIKey),
		},
	}, nil
}

// envInstance is one entry of ODOO_INSTANCES. camelCase keys (apiKey,
// timeout, maxRetries) are primary; snake_case keys from the TOML file
// are accepted too.
type envInstance struct {
	URL        string `json:"url"`
	DB         string `json:"db"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	APIKey     string `json:"apiKey"`
	Timeout    int    `json:"timeout"`
	MaxRetries int    `json:"maxRetries"`

	APIKeySnake     string `json:"api_key"`
	TimeoutMs       int    `json:"timeout_ms"`
	MaxRetriesSnake int    `json:"max_retries"`
}

func (e envInstance) config() InstanceConfig {
	cfg := InstanceConfig{
		URL:        e.URL,
		DB:         e.DB,
		Username:   e.Username,
		Password:   e.Password,
		APIKey:     e.APIKey,
		TimeoutMs:  e.Timeout,
		MaxRetries: e.MaxRetries,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = e.APIKeySnake
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = e.TimeoutMs
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = e.MaxRetriesSnake
	}
	return cfg
}
