package main

import (
	"log/slog"
	"strings"
	"sync"

	"modvault/internal/catalog"
	"modvault/internal/config"
	"modvault/internal/download"
	"modvault/internal/logging"
	"modvault/internal/notifications"
	"modvault/internal/store"
	"modvault/internal/transport"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logOnce sync.Once
	logger  *slog.Logger
	logErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.logOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logErr = err
			return
		}
		c.logger, c.logErr = logging.NewFileLogger(cfg.Paths.LogDir, cfg.Logging.Level, cfg.Logging.Format)
	})
	return c.logger, c.logErr
}

// app bundles the wired components commands operate on. The store is open for
// the lifetime of one command invocation.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	transport    *transport.Client
	catalog      *catalog.Client
	orchestrator *download.Orchestrator
}

// withApp opens the store and wires the full component graph, closing the
// store when fn returns.
func (c *commandContext) withApp(fn func(*app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	tc := transport.NewClient(transport.OptionsFromConfig(cfg), logger)
	cat := catalog.NewClient(cfg, tc, logger)
	fetcher := download.NewNetFetcher(tc, cat, cfg.Paths.ModsDir, logger)
	orch := download.NewOrchestrator(fetcher, st, cat, download.OptionsFromConfig(cfg), logger)
	orch.SetNotifier(notifications.NewService(cfg))

	return fn(&app{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		transport:    tc,
		catalog:      cat,
		orchestrator: orch,
	})
}

// withCatalog wires only the network-facing components, leaving the store
// closed.
func (c *commandContext) withCatalog(fn func(cfg *config.Config, cat *catalog.Client, tc *transport.Client, logger *slog.Logger) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	tc := transport.NewClient(transport.OptionsFromConfig(cfg), logger)
	return fn(cfg, catalog.NewClient(cfg, tc, logger), tc, logger)
}
