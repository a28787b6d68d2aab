package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	MissingSettingsOpen   = "open"
	MissingSettingsClosed = "closed"
)

type LogConfig struct {
	Format string `toml:"format" yaml:"format"`
}

type StorageConfig struct {
	Driver string `toml:"driver" yaml:"driver"`
	DSN    string `toml:"dsn" yaml:"dsn"`
}

type RoutesConfig struct {
	DataAPIPrefix string `toml:"data_api_prefix" yaml:"data_api_prefix"`
	AdminPrefix   string `toml:"admin_prefix" yaml:"admin_prefix"`
	CronPath      string `toml:"cron_path" yaml:"cron_path"`
	LegacyRPCPath string `toml:"legacy_rpc_path" yaml:"legacy_rpc_path"`
}

type GateConfig struct {
	// OnMissingSettings selects what the gate does when no settings record
	// has been stored yet or the stored one cannot be read.
	OnMissingSettings string `toml:"on_missing_settings" yaml:"on_missing_settings"`
}

type BypassConfig struct {
	PreviewToken  string `toml:"preview_token" yaml:"preview_token"`
	PreviewHeader string `toml:"preview_header" yaml:"preview_header"`
}

type IPRateLimiterSection struct {
	Enable      bool `toml:"enable" yaml:"enable"`
	MaxRequests int  `toml:"max_requests" yaml:"max_requests"`
	WindowMS    int  `toml:"window_ms" yaml:"window_ms"`
}

func (s IPRateLimiterSection) Window() time.Duration {
	return time.Duration(s.WindowMS) * time.Millisecond
}

type RBodySizeLimiterSection struct {
	Enable        bool  `toml:"enable" yaml:"enable"`
	MaxRBodyBytes int64 `toml:"max_rbody_bytes" yaml:"max_rbody_bytes"`
}

type LoginConfig struct {
	IPRateLimiter    IPRateLimiterSection    `toml:"ip_rate_limiter" yaml:"ip_rate_limiter"`
	RBodySizeLimiter RBodySizeLimiterSection `toml:"rbody_size_limiter" yaml:"rbody_size_limiter"`
}

type SessionConfig struct {
	TTLHours int `toml:"ttl_hours" yaml:"ttl_hours"`
}

func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

type Config struct {
	Addr     string        `toml:"addr" yaml:"addr"`
	SiteName string        `toml:"site_name" yaml:"site_name"`
	Debug    bool          `toml:"debug" yaml:"debug"`
	Log      LogConfig     `toml:"log" yaml:"log"`
	Storage  StorageConfig `toml:"storage" yaml:"storage"`
	Routes   RoutesConfig  `toml:"routes" yaml:"routes"`
	Gate     GateConfig    `toml:"gate" yaml:"gate"`
	Bypass   BypassConfig  `toml:"bypass" yaml:"bypass"`
	Login    LoginConfig   `toml:"login" yaml:"login"`
	Session  SessionConfig `toml:"session" yaml:"session"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Addr:     ":8080",
		SiteName: "Headless",
		Log:      LogConfig{Format: "text"},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			DSN:    "headless.db",
		},
		Routes: RoutesConfig{
			DataAPIPrefix: "/api",
			AdminPrefix:   "/admin",
			CronPath:      "/cron",
			LegacyRPCPath: "/xmlrpc.php",
		},
		Gate:   GateConfig{OnMissingSettings: MissingSettingsOpen},
		Bypass: BypassConfig{PreviewHeader: "X-Headless-Preview"},
		Login: LoginConfig{
			IPRateLimiter: IPRateLimiterSection{
				Enable:      true,
				MaxRequests: 10,
				WindowMS:    60000,
			},
			RBodySizeLimiter: RBodySizeLimiterSection{
				Enable:        true,
				MaxRBodyBytes: 4 << 10,
			},
		},
		Session: SessionConfig{TTLHours: 24 * 30},
	}
}

// LoadConfig reads a TOML file, or a YAML file when the extension says so,
// on top of Default, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HEADLESS_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("HEADLESS_DB_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("HEADLESS_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("HEADLESS_PREVIEW_TOKEN"); v != "" {
		c.Bypass.PreviewToken = v
	}
	if v := os.Getenv("HEADLESS_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// normalize trims trailing slashes from route prefixes so that "/api/" and
// "/api" describe the same subtree.
func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Gate.OnMissingSettings = strings.ToLower(strings.TrimSpace(c.Gate.OnMissingSettings))
	for _, p := range []*string{
		&c.Routes.DataAPIPrefix,
		&c.Routes.AdminPrefix,
		&c.Routes.CronPath,
		&c.Routes.LegacyRPCPath,
	} {
		if len(*p) > 1 {
			*p = strings.TrimRight(*p, "/")
		}
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("config: storage dsn is required")
	}

	switch c.Gate.OnMissingSettings {
	case MissingSettingsOpen, MissingSettingsClosed:
	default:
		return fmt.Errorf("config: gate.on_missing_settings must be %q or %q, got %q",
			MissingSettingsOpen, MissingSettingsClosed, c.Gate.OnMissingSettings)
	}

	routes := map[string]string{
		"data_api_prefix": c.Routes.DataAPIPrefix,
		"admin_prefix":    c.Routes.AdminPrefix,
		"cron_path":       c.Routes.CronPath,
		"legacy_rpc_path": c.Routes.LegacyRPCPath,
	}
	for name, p := range routes {
		if !strings.HasPrefix(p, "/") || p == "/" {
			return fmt.Errorf("config: routes.%s must be an absolute path below /, got %q", name, p)
		}
	}

	if c.Session.TTLHours <= 0 {
		return fmt.Errorf("config: session.ttl_hours must be > 0")
	}
	return nil
}

// FailClosed reports whether a missing settings record enables every
// protection instead of disabling them.
func (c *Config) FailClosed() bool {
	return c.Gate.OnMissingSettings == MissingSettingsClosed
}
