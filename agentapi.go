// Package agentapi is a single-process multi-agent coordination runtime.
// Agents communicate exclusively through asynchronous messages brokered by a
// central bus, are supervised by a registry, and coordinate access to shared
// named resources through advisory leases. The Framework type wires the
// pieces together and runs a periodic metrics tick.
package agentapi

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentapi-dev/agentapi/internal/agent"
)

// Duration wraps time.Duration for YAML text parsing ("10s", "5m").
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the top-level configuration.
type Config struct {
	// TickInterval is the period of the metrics-publish tick.
	TickInterval Duration `yaml:"tick_interval,omitempty"`

	// TickBackoff is how long the tick loop waits after a failed tick
	// before retrying.
	TickBackoff Duration `yaml:"tick_backoff,omitempty"`

	// PollInterval bounds how long a blocked mailbox receiver waits before
	// re-checking for a stop signal.
	PollInterval Duration `yaml:"poll_interval,omitempty"`

	// Agents are started when the framework is run from a config file.
	Agents []agent.Def `yaml:"agents,omitempty"`

	API           APIConfig           `yaml:"api,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty"`
	Store         StoreConfig         `yaml:"store,omitempty"`
	Backup        BackupConfig        `yaml:"backup,omitempty"`
}

// APIConfig configures the REST front end.
type APIConfig struct {
	Port      int      `yaml:"port"`
	JWTSecret string   `yaml:"jwt_secret"`
	TokenTTL  Duration `yaml:"token_ttl,omitempty"`

	// RateLimit is requests per second per client; RateBurst the burst size.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	RateBurst int     `yaml:"rate_burst,omitempty"`

	// AdminPassword seeds the default admin user.
	AdminPassword string `yaml:"admin_password,omitempty"`
}

// ObservabilityConfig configures the metrics/health HTTP server.
type ObservabilityConfig struct {
	Port int `yaml:"port"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds Redis connection settings for the store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// BackupConfig configures scheduled store backups.
type BackupConfig struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression, e.g. "0 2 * * *".
	Schedule string `yaml:"schedule,omitempty"`
	Dir      string `yaml:"dir,omitempty"`

	// Keep is how many backup archives to retain.
	Keep int `yaml:"keep,omitempty"`
}

// DefaultConfig returns a config with usable defaults.
func DefaultConfig() *Config {
	return &Config{
		TickInterval: Duration{10 * time.Second},
		TickBackoff:  Duration{5 * time.Second},
		PollInterval: Duration{100 * time.Millisecond},
		API: APIConfig{
			Port:      8080,
			TokenTTL:  Duration{30 * time.Minute},
			RateLimit: 10,
			RateBurst: 20,
		},
		Observability: ObservabilityConfig{Port: 9090},
		Store:         StoreConfig{Backend: "memory"},
		Backup: BackupConfig{
			Schedule: "0 2 * * *",
			Dir:      "./backups",
			Keep:     7,
		},
	}
}

// LoadConfig loads configuration from a YAML file, applying defaults and
// environment fallbacks.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.TickInterval.Duration <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.TickBackoff.Duration <= 0 {
		c.TickBackoff = def.TickBackoff
	}
	if c.PollInterval.Duration <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.API.Port == 0 {
		c.API.Port = def.API.Port
	}
	if c.API.TokenTTL.Duration <= 0 {
		c.API.TokenTTL = def.API.TokenTTL
	}
	if c.API.RateLimit <= 0 {
		c.API.RateLimit = def.API.RateLimit
	}
	if c.API.RateBurst <= 0 {
		c.API.RateBurst = def.API.RateBurst
	}
	if c.Observability.Port == 0 {
		c.Observability.Port = def.Observability.Port
	}
	if c.Store.Backend == "" {
		c.Store.Backend = def.Store.Backend
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = def.Backup.Schedule
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = def.Backup.Dir
	}
	if c.Backup.Keep <= 0 {
		c.Backup.Keep = def.Backup.Keep
	}

	// Secrets from environment when not in the file.
	if c.API.JWTSecret == "" {
		c.API.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if c.Store.Redis.Password == "" {
		c.Store.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store backend is redis but no address is configured")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, def := range c.Agents {
		if def.Name == "" {
			return fmt.Errorf("agent with role %s has no name", def.Role)
		}
		if seen[def.Name] {
			return fmt.Errorf("duplicate agent name in config: %s", def.Name)
		}
		seen[def.Name] = true
	}
	return nil
}
