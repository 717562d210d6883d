package main

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds the server-side configuration shared by the serve and
// mcp commands.
type Config struct {
	Listen       string `koanf:"listen"`
	KrokiURL     string `koanf:"kroki_url"`
	Backend      string `koanf:"backend"`
	DBPath       string `koanf:"db_path"`
	OutputDir    string `koanf:"output_dir"`
	PromptDir    string `koanf:"prompt_dir"`
	LogLevel     string `koanf:"log_level"`
	CacheTTL     string `koanf:"cache_ttl"`
	Policy       string `koanf:"policy"`
	ProxyHosts   string `koanf:"proxy_hosts"`
	AllowPrivate bool   `koanf:"allow_private"`
	SweepSpec    string `koanf:"sweep_spec"`
	VacuumSpec   string `koanf:"vacuum_spec"`
}

// loadConfig layers configuration sources.
// Priority: flags > UMLVIEW_* env > umlview.toml > defaults.
func loadConfig(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"listen":        ":4400",
		"kroki_url":     "https://kroki.io",
		"backend":       "web",
		"db_path":       "umlview.db",
		"output_dir":    "output",
		"prompt_dir":    "",
		"log_level":     "info",
		"cache_ttl":     "24h",
		"policy":        "",
		"proxy_hosts":   "",
		"allow_private": false,
		"sweep_spec":    "",
		"vacuum_spec":   "",
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Config file is optional.
	_ = k.Load(file.Provider("umlview.toml"), toml.Parser())

	// Environment variables, e.g. UMLVIEW_KROKI_URL=http://localhost:8000.
	// The underscore-to-dot rewrite would split multi-word keys, so
	// rewrite known key names wholesale instead.
	if err := k.Load(env.Provider("UMLVIEW_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "UMLVIEW_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// serverFlags registers the flags shared by serve and mcp. Flag names
// match the koanf keys so posflag can overlay them directly.
func serverFlags(f *pflag.FlagSet) {
	f.String("listen", ":4400", "HTTP listen address")
	f.String("kroki_url", "https://kroki.io", "Kroki service base URL")
	f.String("backend", "web", "default render backend (web or local)")
	f.String("db_path", "umlview.db", "libSQL database path (empty disables the cache and artifact log)")
	f.String("output_dir", "output", "directory for saved diagrams")
	f.String("prompt_dir", "", "directory with user prompt presets (merged over the embedded set)")
	f.String("log_level", "info", "log level: debug, info, warn, error")
	f.String("cache_ttl", "24h", "render cache entry lifetime")
	f.String("policy", "", "CEL expression gating proxied URLs")
	f.String("proxy_hosts", "", "comma-separated extra hosts the proxy may fetch from")
	f.Bool("allow_private", false, "let the proxy fetch loopback/private addresses")
	f.String("sweep_spec", "", "cron spec for the cache sweep (default hourly)")
	f.String("vacuum_spec", "", "cron spec for database vacuum (default daily)")
}

// splitHosts turns the comma-separated proxy_hosts value into the
// host list the proxy policy consumes.
func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
