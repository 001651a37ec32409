package main

import (
	"fmt"

	"vizflow/internal/config"
	"vizflow/internal/logging"
	"vizflow/internal/rendercache"
	"vizflow/internal/vizapi"
	"vizflow/internal/workflow"
)

// loadConfig resolves file, dotenv and environment settings, then applies
// the root command's flags on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath, rootFlags.envFile)
	if err != nil {
		return config.Config{}, err
	}
	if rootFlags.baseURL != "" {
		cfg.Service.BaseURL = rootFlags.baseURL
	}
	if rootFlags.logLevel != "" {
		cfg.Log.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.Log.Format = rootFlags.logFormat
	}
	if rootFlags.noCache {
		cfg.Cache.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newClient(cfg config.Config) (*vizapi.Client, error) {
	if cfg.Service.BaseURL == "" {
		return nil, fmt.Errorf("service base URL is not set (use --base-url, service.base_url or %sBASE_URL)", config.EnvPrefix)
	}
	token, err := cfg.ResolveToken()
	if err != nil {
		return nil, err
	}
	if token == "" {
		logging.New("cli").Warn("no service token configured; requests are sent unauthenticated")
	}
	return vizapi.New(cfg.Service.BaseURL, token,
		vizapi.WithTimeout(cfg.RequestTimeout()),
		vizapi.WithLogger(logging.New("vizapi")),
	)
}

func openCache(cfg config.Config) (rendercache.Cache, error) {
	if cfg.Cache.Disabled {
		return rendercache.NewMemCache(), nil
	}
	c, err := rendercache.Open(cfg.Cache.Path, cfg.Cache.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("open render cache: %w", err)
	}
	return c, nil
}

// openSession wires the client, the cache and the workflow. The caller
// closes the session.
func openSession(cfg config.Config) (*workflow.Session, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := openCache(cfg)
	if err != nil {
		return nil, err
	}
	sess, err := workflow.Open(workflow.Options{
		Gateway:            client,
		Cache:              cache,
		RequestTimeout:     cfg.RequestTimeout(),
		VisualizationCount: cfg.Workflow.VisualizationCount,
		Logger:             logging.New("workflow"),
	})
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	return sess, nil
}
