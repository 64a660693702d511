package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultServer is the public Code::Stats instance.
const DefaultServer = "https://codestats.net/"

// Config holds all runtime configuration.
type Config struct {
	// Telemetry service
	Server string `koanf:"server"`
	Key    string `koanf:"key"` // empty = sending disabled, accumulation continues

	// Flush behaviour
	QuietWindow time.Duration `koanf:"quiet_window"`

	// Language resolver overrides: host language id -> service name.
	Languages map[string]string `koanf:"languages"`

	// Operational
	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`
	MetricsAddr string `koanf:"metrics_addr"` // "" = disabled
}

// defaults is the lowest-priority layer.
var defaults = map[string]any{
	"server":       DefaultServer,
	"key":          "",
	"quiet_window": 10 * time.Second,
	"log_level":    "info",
	"log_format":   "json",
	"metrics_addr": "",
}

// Load reads configuration from (lowest → highest priority):
//  1. Built-in defaults
//  2. YAML file at CONFIG_FILE env var path (if set)
//  3. CODESTATS_* environment variables (always highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults.
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	// Layer 2: optional YAML file.
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", cfgFile, err)
		}
	}

	// Layer 3: environment variables.
	// Transform: "CODESTATS_QUIET_WINDOW" → "quiet_window".
	if err := k.Load(env.Provider("CODESTATS_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "CODESTATS_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	// Normalise string fields.
	cfg.Server = strings.TrimSpace(cfg.Server)
	cfg.Key = strings.TrimSpace(cfg.Key)
	cfg.LogLevel = strings.TrimSpace(strings.ToLower(cfg.LogLevel))
	cfg.LogFormat = strings.TrimSpace(strings.ToLower(cfg.LogFormat))

	// The pulse endpoint path is appended verbatim, so the base URL must
	// end with a slash.
	if cfg.Server != "" && !strings.HasSuffix(cfg.Server, "/") {
		cfg.Server += "/"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []string

	u, err := url.Parse(c.Server)
	switch {
	case c.Server == "":
		errs = append(errs, "CODESTATS_SERVER is required (default: "+DefaultServer+")")
	case err != nil:
		errs = append(errs, fmt.Sprintf("CODESTATS_SERVER is not a valid URL: %v", err))
	case u.Scheme != "https":
		errs = append(errs, "CODESTATS_SERVER must use https (plaintext transport is rejected)")
	}

	if strings.ContainsAny(c.Key, " \t\n") {
		errs = append(errs, "CODESTATS_KEY must not contain whitespace")
	}

	if c.QuietWindow < time.Second {
		errs = append(errs, "CODESTATS_QUIET_WINDOW must be at least 1s")
	}

	for id, name := range c.Languages {
		if strings.TrimSpace(id) == "" || strings.TrimSpace(name) == "" {
			errs = append(errs, "languages entries must have non-empty ids and names")
			break
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d configuration error(s):\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}
	return nil
}
