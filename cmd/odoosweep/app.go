package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aatumaykin/odoosweep/internal/cleanup"
	"github.com/aatumaykin/odoosweep/internal/config"
	"github.com/aatumaykin/odoosweep/internal/constants"
	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/metrics"
	"github.com/aatumaykin/odoosweep/internal/notify"
	"github.com/aatumaykin/odoosweep/internal/odoo"
	"github.com/aatumaykin/odoosweep/internal/rpc"
	"github.com/aatumaykin/odoosweep/internal/version"
)

// app holds the components shared by the run commands.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	gatherer *prometheus.Registry
	metrics  *metrics.Metrics
	registry *odoo.Registry
	service  *cleanup.Service
}

// loadConfig reads the config file, or falls back to ODOO_* variables when
// the default file is absent.
func loadConfig(stderr io.Writer) (*config.Config, error) {
	if err := config.LoadEnvOptional(envPath); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
	}

	path := configPath
	if path == "" {
		path = constants.DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && configPath == "" {
			fmt.Fprintf(stderr, constants.MsgConfigFromEnv, path)
			return config.FromEnv()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return config.Load(path)
}

func validate(cfg *config.Config) error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func newApp(stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(stderr)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)

	gatherer := prometheus.NewRegistry()
	gatherer.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.DefaultNamespace, gatherer)

	rpcConfigs := cfg.RPCConfigs()
	for name, rc := range rpcConfigs {
		rc.UserAgent = version.UserAgent()
		rpcConfigs[name] = rc
	}
	registry := odoo.NewRPCRegistry(rpcConfigs, log, rpc.WithMetrics(m))

	var notifier cleanup.Notifier
	if tg := cfg.Notify.Telegram; tg.Enabled {
		bot, err := notify.NewTelegram(notify.Config{
			Token:       tg.Token,
			ChatID:      tg.ChatID,
			SendTimeout: time.Duration(tg.SendTimeoutSeconds) * time.Second,
		}, log)
		if err != nil {
			log.Close()
			return nil, err
		}
		notifier = bot
	}

	engineOpts := []cleanup.Option{cleanup.WithLogger(log), cleanup.WithMetrics(m)}
	service := cleanup.NewService(
		cleanup.NewCleaner(registry, engineOpts...),
		cleanup.NewResetter(registry, engineOpts...),
		cfg.ServiceConfig(),
		notifier,
		log,
	)

	return &app{
		cfg:      cfg,
		log:      log,
		gatherer: gatherer,
		metrics:  m,
		registry: registry,
		service:  service,
	}, nil
}

func (a *app) Close() {
	a.registry.Close()
	_ = a.log.Close()
}

// instances resolves the instance arguments of a run command.
func (a *app) instances(args []string, all bool) ([]string, error) {
	if all {
		if len(args) > 0 {
			return nil, fmt.Errorf("--all cannot be combined with instance names")
		}
		return a.registry.Names(), nil
	}
	if len(args) == 0 {
		names := a.registry.Names()
		if len(names) == 1 {
			return names, nil
		}
		return nil, fmt.Errorf("instance name required (configured: %v)", names)
	}
	for _, name := range args {
		if !a.registry.Has(name) {
			return nil, fmt.Errorf("unknown instance %q (configured: %v)", name, a.registry.Names())
		}
	}
	return args, nil
}
