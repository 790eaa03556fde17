// Package config provides YAML and environment based configuration loading
// for Courier.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized as overrides. The bot was
// historically configured entirely through the environment, so every
// secret and limit can still be supplied that way.
const (
	EnvBotToken          = "BOT_TOKEN"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvRegularDailyLimit = "REGULAR_DAILY_LIMIT"
	EnvAdminDailyLimit   = "ADMIN_DAILY_LIMIT"
	EnvRootAdminIDs      = "ROOT_ADMIN_IDS"
	EnvInstagramUsername = "INSTAGRAM_USERNAME"
	EnvInstagramPassword = "INSTAGRAM_PASSWORD"
)

// Config is the top-level Courier configuration, loaded from courier.yaml
// with environment overrides applied on top.
type Config struct {
	BotToken          string            `yaml:"bot_token"`
	DatabaseURL       string            `yaml:"database_url"`
	RegularDailyLimit int               `yaml:"regular_daily_limit"`
	AdminDailyLimit   int               `yaml:"admin_daily_limit"`
	RootAdmins        []int64           `yaml:"root_admins"`
	DownloadDir       string            `yaml:"download_dir"`
	Instagram         InstagramConfig   `yaml:"instagram"`
	Maintenance       MaintenanceConfig `yaml:"maintenance"`
	Dashboard         DashboardConfig   `yaml:"dashboard"`
}

// InstagramConfig holds optional credentials for Instagram downloads.
// Instagram requires an authenticated session; when these are unset,
// Instagram URLs are rejected with a descriptive reply.
type InstagramConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MaintenanceConfig controls the nightly maintenance sweep.
type MaintenanceConfig struct {
	Cron          string `yaml:"cron"`           // 5-field cron expression
	RetentionDays int    `yaml:"retention_days"` // quota rows older than this are purged
}

// DashboardConfig holds settings for the read-only status server.
// The dashboard is disabled when ListenAddr is empty.
type DashboardConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads a YAML config file from path, applies environment overrides,
// and returns a validated Config. An empty path skips the file entirely
// and configures from the environment alone.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, overlays the environment, and returns a
// validated Config. Nil data is allowed (environment-only configuration).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsRootAdmin reports whether id is in the fixed root-admin allowlist.
// Root admins are configuration-only: never stored, never removable.
func (c *Config) IsRootAdmin(id int64) bool {
	for _, root := range c.RootAdmins {
		if root == id {
			return true
		}
	}
	return false
}

// InstagramCredentials returns the configured username/password pair, or
// empty strings when Instagram downloads are not configured.
func (c *Config) InstagramCredentials() (username, password string, ok bool) {
	if c.Instagram.Username == "" || c.Instagram.Password == "" {
		return "", "", false
	}
	return c.Instagram.Username, c.Instagram.Password, true
}

// applyEnv overlays environment variables onto the config. Numeric
// variables that fail to parse are a hard error so startup fails fast
// rather than running with a silently wrong limit.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBotToken); v != "" {
		c.BotToken = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv(EnvRegularDailyLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: not a number: %q", EnvRegularDailyLimit, v)
		}
		c.RegularDailyLimit = n
	}
	if v := os.Getenv(EnvAdminDailyLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: not a number: %q", EnvAdminDailyLimit, v)
		}
		c.AdminDailyLimit = n
	}
	if v := os.Getenv(EnvRootAdminIDs); v != "" {
		ids, err := parseIDList(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvRootAdminIDs, err)
		}
		c.RootAdmins = ids
	}
	if v := os.Getenv(EnvInstagramUsername); v != "" {
		c.Instagram.Username = v
	}
	if v := os.Getenv(EnvInstagramPassword); v != "" {
		c.Instagram.Password = v
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}
	if c.Maintenance.Cron == "" {
		c.Maintenance.Cron = "10 0 * * *"
	}
	if c.Maintenance.RetentionDays == 0 {
		c.Maintenance.RetentionDays = 90
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.BotToken == "" {
		errs = append(errs, "bot_token is required")
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "database_url is required")
	}
	if c.RegularDailyLimit <= 0 {
		errs = append(errs, "regular_daily_limit is required and must be positive")
	}
	if c.AdminDailyLimit <= 0 {
		errs = append(errs, "admin_daily_limit is required and must be positive")
	}
	if len(c.RootAdmins) == 0 {
		errs = append(errs, "at least one root admin is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// parseIDList parses a comma-separated list of integer chat IDs.
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
