package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rubiojr/cmsmirror/pkg/core"
)

//go:embed config.toml.sample
var configTemplate string

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"

	ModeFTS       = "fts"
	ModeSubstring = "substring"

	DefaultBaseURL   = "https://api.webflow.com/v2"
	DefaultPageSize  = 100
	DefaultBatchSize = 400
	DefaultLimit     = 100
)

// Environment variables applied over the file. Secrets are usually injected
// this way rather than written to disk.
const (
	EnvAPIToken    = "CMSMIRROR_API_TOKEN"
	EnvSiteID      = "CMSMIRROR_SITE_ID"
	EnvSyncSecret  = "CMSMIRROR_SYNC_SECRET"
	EnvDatabaseURL = "CMSMIRROR_DATABASE_URL"
	EnvRedisURL    = "CMSMIRROR_REDIS_URL"
)

type Config struct {
	StorageDir string         `toml:"storage_dir"`
	Backend    string         `toml:"backend"`
	SearchMode string         `toml:"search_mode"`
	CMS        CMSConfig      `toml:"cms"`
	Sync       SyncConfig     `toml:"sync"`
	Search     SearchConfig   `toml:"search"`
	Server     ServerConfig   `toml:"server"`
	Postgres   PostgresConfig `toml:"postgres"`
	Redis      RedisConfig    `toml:"redis"`
	Widget     WidgetConfig   `toml:"widget"`
}

type CMSConfig struct {
	BaseURL  string   `toml:"base_url"`
	SiteID   string   `toml:"site_id"`
	APIToken string   `toml:"api_token"`
	PageSize int      `toml:"page_size"`
	Timeout  Duration `toml:"timeout"`
}

type SyncConfig struct {
	Secret string `toml:"secret"`
	// Schedule is a cron spec ("@every 1h", "0 */6 * * *"). Empty disables
	// scheduled syncs.
	Schedule string `toml:"schedule"`
	// MaintenanceSchedule runs store optimization while serving.
	MaintenanceSchedule string `toml:"maintenance_schedule"`
	OnStart             bool   `toml:"on_start"`
	BatchSize           int    `toml:"batch_size"`
	// Concurrency bounds how many collections are fetched at once.
	Concurrency int `toml:"concurrency"`
}

type SearchConfig struct {
	Limit int `toml:"limit"`
	// NotFoundOnUnknown answers 404 when a collection filter resolves to
	// nothing, instead of an empty result set.
	NotFoundOnUnknown bool `toml:"not_found_on_unknown"`
}

type ServerConfig struct {
	Host         string   `toml:"host"`
	Port         string   `toml:"port"`
	SearchMaxAge Duration `toml:"search_max_age"`
	DataMaxAge   Duration `toml:"data_max_age"`
}

type PostgresConfig struct {
	URL string `toml:"url"`
}

type RedisConfig struct {
	URL string   `toml:"url"`
	TTL Duration `toml:"ttl"`
}

type WidgetConfig struct {
	Bindings []BindingConfig `toml:"bindings"`
}

type BindingConfig struct {
	Field string `toml:"field"`
	Kind  string `toml:"kind"`
	Label string `toml:"label,omitempty"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func GetDefaultConfig() (*Config, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return nil, fmt.Errorf("getting default storage directory: %w", err)
	}
	c := &Config{StorageDir: storageDir, Sync: SyncConfig{OnStart: true}}
	c.applyDefaults()
	return c, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		c, err := GetDefaultConfig()
		if err != nil {
			return nil, err
		}
		c.ApplyEnv(os.LookupEnv)
		return c, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if config.StorageDir == "" {
		storageDir, err := GetDefaultStorageDir()
		if err != nil {
			return nil, fmt.Errorf("getting default storage directory: %w", err)
		}
		config.StorageDir = storageDir
	}

	config.ApplyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Parse decodes TOML data and fills defaults. It neither touches the
// environment nor validates.
func Parse(data []byte) (*Config, error) {
	config := Config{Sync: SyncConfig{OnStart: true}}
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.SearchMode == "" {
		if c.Backend == BackendSQLite {
			c.SearchMode = ModeFTS
		} else {
			c.SearchMode = ModeSubstring
		}
	}
	if c.CMS.BaseURL == "" {
		c.CMS.BaseURL = DefaultBaseURL
	}
	if c.CMS.PageSize <= 0 {
		c.CMS.PageSize = DefaultPageSize
	}
	if c.CMS.Timeout.Duration == 0 {
		c.CMS.Timeout = Duration{30 * time.Second}
	}
	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = 4
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = DefaultBatchSize
	}
	if c.Search.Limit <= 0 {
		c.Search.Limit = DefaultLimit
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.SearchMaxAge.Duration == 0 {
		c.Server.SearchMaxAge = Duration{5 * time.Minute}
	}
	if c.Server.DataMaxAge.Duration == 0 {
		c.Server.DataMaxAge = Duration{time.Hour}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Redis.TTL.Duration == 0 {
		c.Redis.TTL = Duration{7 * 24 * time.Hour}
	}
}

// ApplyEnv overrides settings from the environment. lookup is os.LookupEnv in
// production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.CMS.APIToken, EnvAPIToken)
	set(&c.CMS.SiteID, EnvSiteID)
	set(&c.Sync.Secret, EnvSyncSecret)
	set(&c.Postgres.URL, EnvDatabaseURL)
	set(&c.Redis.URL, EnvRedisURL)
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendPostgres, BackendMemory, BackendRedis:
	default:
		return &core.ConfigError{Setting: "backend", Msg: fmt.Sprintf("unknown backend %q", c.Backend)}
	}

	switch c.SearchMode {
	case ModeFTS:
		if c.Backend != BackendSQLite {
			return &core.ConfigError{
				Setting: "search_mode",
				Msg:     fmt.Sprintf("full-text search needs the sqlite backend, not %q", c.Backend),
			}
		}
	case ModeSubstring:
	default:
		return &core.ConfigError{Setting: "search_mode", Msg: fmt.Sprintf("unknown search mode %q", c.SearchMode)}
	}

	if c.Backend == BackendPostgres && c.Postgres.URL == "" {
		return &core.ConfigError{Setting: "postgres.url", Msg: "required for the postgres backend"}
	}

	for i, b := range c.Widget.Bindings {
		if b.Field == "" {
			return &core.ConfigError{Setting: fmt.Sprintf("widget.bindings[%d].field", i), Msg: "empty"}
		}
		switch strings.ToLower(b.Kind) {
		case "text", "href", "image":
		default:
			return &core.ConfigError{
				Setting: fmt.Sprintf("widget.bindings[%d].kind", i),
				Msg:     fmt.Sprintf("unknown kind %q", b.Kind),
			}
		}
	}
	return nil
}

// HasCMSCredentials reports whether a sync can reach the upstream API.
func (c *Config) HasCMSCredentials() bool {
	return c.CMS.APIToken != "" && c.CMS.SiteID != ""
}

// DBPath is the SQLite database file inside the storage directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.StorageDir, "cmsmirror.db")
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0600)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template, err := c.generateConfigTemplate()
	if err != nil {
		return fmt.Errorf("generating config template: %w", err)
	}
	return os.WriteFile(configPath, []byte(template), 0600)
}

func (c *Config) generateConfigTemplate() (string, error) {
	storageDir := c.StorageDir
	if storageDir == "" {
		var err error
		storageDir, err = GetDefaultStorageDir()
		if err != nil {
			return "", fmt.Errorf("getting default storage directory: %w", err)
		}
	}

	// Replace the placeholder storage_dir with the actual path
	template := strings.Replace(configTemplate, "/home/user/.local/share/cmsmirror", storageDir, 1)
	return template, nil
}

// GetDefaultStorageDir returns the default storage directory for databases
func GetDefaultStorageDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise use ~/.local/share
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "cmsmirror")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetConfigDir returns the configuration directory
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "cmsmirror")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
