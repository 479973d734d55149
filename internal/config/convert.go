package config

import (
	"time"

	"github.com/aatumaykin/odoosweep/internal/cleanup"
	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/rpc"
)

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// RPCConfigs строит конфигурацию транспорта для каждого инстанса
func (c *Config) RPCConfigs() map[string]rpc.Config {
	out := make(map[string]rpc.Config, len(c.Instances))
	for name, inst := range c.Instances {
		cfg := rpc.Config{
			Instance:          name,
			URL:               inst.URL,
			DB:                inst.DB,
			Username:          inst.Username,
			Password:          inst.Password,
			APIKey:            inst.APIKey,
			Timeout:           millis(c.Transport.TimeoutMs),
			MaxRetries:        c.Transport.MaxRetries,
			InitialBackoff:    millis(c.Transport.InitialBackoffMs),
			MaxBackoff:        millis(c.Transport.MaxBackoffMs),
			RetryRemoteErrors: c.Transport.RetryRemoteErrors,
			RequestsPerSecond: c.Transport.RequestsPerSecond,
		}
		if inst.TimeoutMs > 0 {
			cfg.Timeout = millis(inst.TimeoutMs)
		}
		if inst.MaxRetries > 0 {
			cfg.MaxRetries = inst.MaxRetries
		}
		out[name] = cfg
	}
	return out
}

// LoggerConfig возвращает конфигурацию logger
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// ServiceConfig возвращает настройки сохранения отчётов
func (c *Config) ServiceConfig() cleanup.ServiceConfig {
	return cleanup.ServiceConfig{
		ReportDir:    c.Cleanup.ReportDir,
		ReportFormat: c.Cleanup.ReportFormat,
	}
}

// CleanupOptions возвращает параметры поверхностной очистки
func (c *Config) CleanupOptions(simulation bool) cleanup.Options {
	return cleanup.Options{
		Simulation:    simulation,
		DaysThreshold: c.Cleanup.DaysThreshold,
	}
}

// ResetOptions возвращает параметры глубокой очистки; незаданные флаги равны true
func (c *Config) ResetOptions(simulation bool) cleanup.ResetOptions {
	return cleanup.ResetOptions{
		Simulation:          simulation,
		KeepCompanyDefaults: boolOr(c.Reset.KeepCompanyDefaults, true),
		KeepUserAccounts:    boolOr(c.Reset.KeepUserAccounts, true),
		KeepMenus:           boolOr(c.Reset.KeepMenus, true),
		KeepGroups:          boolOr(c.Reset.KeepGroups, true),
	}
}

// Jobs преобразует [[schedules]] в задания планировщика.
// Расписание без явного simulation выполняется в режиме симуляции.
func (c *Config) Jobs() []cleanup.Job {
	jobs := make([]cleanup.Job, 0, len(c.Schedules))
	for _, s := range c.Schedules {
		days := s.DaysThreshold
		if days == 0 {
			days = c.Cleanup.DaysThreshold
		}
		simulation := boolOr(s.Simulation, true)

		jobs = append(jobs, cleanup.Job{
			Name:          s.Name,
			Instance:      s.Instance,
			Engine:        s.Engine,
			Schedule:      s.Cron,
			Simulation:    simulation,
			DaysThreshold: days,
			Groups:        s.Groups,
			Reset:         c.ResetOptions(simulation),
		})
	}
	return jobs
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
