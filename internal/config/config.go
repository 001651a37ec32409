// Package config loads vizflow settings from a YAML or JSON file, an
// optional .env file and VIZFLOW_* environment variables, in that order of
// increasing precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vizflow/internal/viz"
)

// Defaults.
const (
	DefaultCachePath          = ".vizflow/cache.db"
	DefaultSessionKey         = "default"
	DefaultTokenFile          = ".vizflow-token"
	DefaultGoalCount          = 5
	DefaultVisualizationCount = 1
	DefaultTimeout            = 2 * time.Minute
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VIZFLOW_"

// Duration is a time.Duration that reads "90s"-style strings from YAML
// and JSON.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Service describes the remote analysis service.
type Service struct {
	BaseURL   string   `json:"base_url" yaml:"base_url"`
	Token     string   `json:"token,omitempty" yaml:"token,omitempty"`
	TokenFile string   `json:"token_file,omitempty" yaml:"token_file,omitempty"`
	Timeout   Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Cache configures the render cache.
type Cache struct {
	Path       string `json:"path" yaml:"path"`
	SessionKey string `json:"session_key" yaml:"session_key"`
	Disabled   bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Log configures logging.Init.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Workflow holds the initial counts and renderer.
type Workflow struct {
	GoalCount          int    `json:"goal_count" yaml:"goal_count"`
	VisualizationCount int    `json:"visualization_count" yaml:"visualization_count"`
	Renderer           string `json:"renderer" yaml:"renderer"`
}

// Config is the full vizflow configuration.
type Config struct {
	Service  Service  `json:"service" yaml:"service"`
	Cache    Cache    `json:"cache" yaml:"cache"`
	Log      Log      `json:"log" yaml:"log"`
	Workflow Workflow `json:"workflow" yaml:"workflow"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Service:  Service{TokenFile: DefaultTokenFile, Timeout: Duration(DefaultTimeout)},
		Cache:    Cache{Path: DefaultCachePath, SessionKey: DefaultSessionKey},
		Log:      Log{Level: "info", Format: "text"},
		Workflow: Workflow{GoalCount: DefaultGoalCount, VisualizationCount: DefaultVisualizationCount, Renderer: string(viz.RendererPrimary)},
	}
}

// Load builds the configuration: defaults, then the file at path (skipped
// when path is empty), then envFile (skipped when missing), then the
// process environment. The result is validated.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, filepath.Ext(path), &cfg); err != nil {
			return Config{}, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes data over cfg. ext is the file extension used as a format
// hint; empty means detect from content.
func Parse(data []byte, ext string, cfg *Config) error {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" && strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		ext = ".json"
	}
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config json: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from VIZFLOW_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("BASE_URL", &c.Service.BaseURL)
	str("TOKEN", &c.Service.Token)
	str("TOKEN_FILE", &c.Service.TokenFile)
	str("CACHE_PATH", &c.Cache.Path)
	str("SESSION_KEY", &c.Cache.SessionKey)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("RENDERER", &c.Workflow.Renderer)
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok && v != "" {
		if err := c.Service.Timeout.parse(v); err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
	}
	if v, ok := lookup(EnvPrefix + "NO_CACHE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sNO_CACHE: %w", EnvPrefix, err)
		}
		c.Cache.Disabled = b
	}
	if err := num("GOAL_COUNT", &c.Workflow.GoalCount); err != nil {
		return err
	}
	return num("VISUALIZATION_COUNT", &c.Workflow.VisualizationCount)
}

// Validate rejects out-of-range values.
func (c Config) Validate() error {
	var errs []error
	if !viz.ValidCount(c.Workflow.GoalCount) {
		errs = append(errs, fmt.Errorf("workflow.goal_count %d outside [%d,%d]", c.Workflow.GoalCount, viz.MinCount, viz.MaxCount))
	}
	if !viz.ValidCount(c.Workflow.VisualizationCount) {
		errs = append(errs, fmt.Errorf("workflow.visualization_count %d outside [%d,%d]", c.Workflow.VisualizationCount, viz.MinCount, viz.MaxCount))
	}
	if _, err := viz.ParseRenderer(c.Workflow.Renderer); err != nil {
		errs = append(errs, fmt.Errorf("workflow.renderer: %w", err))
	}
	if c.Service.Timeout < 0 {
		errs = append(errs, fmt.Errorf("service.timeout must not be negative"))
	}
	if !c.Cache.Disabled && (c.Cache.Path == "" || c.Cache.SessionKey == "") {
		errs = append(errs, fmt.Errorf("cache.path and cache.session_key are required unless cache.disabled"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q (want text or json)", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Renderer returns the configured renderer.
func (c Config) Renderer() viz.Renderer {
	r, err := viz.ParseRenderer(c.Workflow.Renderer)
	if err != nil {
		return viz.RendererPrimary
	}
	return r
}

// RequestTimeout returns the per-request timeout.
func (c Config) RequestTimeout() time.Duration {
	if c.Service.Timeout == 0 {
		return DefaultTimeout
	}
	return time.Duration(c.Service.Timeout)
}

// ResolveToken returns the bearer token, reading TokenFile when Token is
// empty. A missing default token file yields an empty token.
func (c Config) ResolveToken() (string, error) {
	if c.Service.Token != "" {
		return c.Service.Token, nil
	}
	if c.Service.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Service.TokenFile)
	if errors.Is(err, fs.ErrNotExist) && c.Service.TokenFile == DefaultTokenFile {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0]), nil
}
