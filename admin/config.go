package admin

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/ppadmin/auth"
	"github.com/hazyhaar/ppadmin/horosafe"
	"github.com/hazyhaar/ppadmin/upload"
)

// Config holds the full admin configuration.
type Config struct {
	Listen         string           `yaml:"listen"`
	DBPath         string           `yaml:"db_path"`
	LogLevel       string           `yaml:"log_level"`
	SessionSecret  string           `yaml:"session_secret"`
	SessionTTL     time.Duration    `yaml:"session_ttl"`
	SecureCookies  bool             `yaml:"secure_cookies"`
	MetricStoreURL string           `yaml:"metric_store_url"`
	Stagecraft     StagecraftConfig `yaml:"stagecraft"`
	OAuth          auth.OAuthConfig `yaml:"oauth"`
	Upload         upload.Config    `yaml:"upload"`
}

// StagecraftConfig locates the dashboard-configuration service.
type StagecraftConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Secrets read from the environment override the file.
const (
	EnvSessionSecret     = "PPADMIN_SESSION_SECRET"
	EnvStagecraftToken   = "PPADMIN_STAGECRAFT_TOKEN"
	EnvOAuthClientSecret = "PPADMIN_OAUTH_CLIENT_SECRET"
)

// DefaultConfig returns sane defaults. Service URLs and secrets have none.
func DefaultConfig() *Config {
	return &Config{
		Listen:     ":3203",
		DBPath:     "ppadmin.db",
		LogLevel:   "info",
		SessionTTL: 12 * time.Hour,
		Upload:     upload.DefaultConfig(),
	}
}

// LoadConfig reads a YAML config file over DefaultConfig, applies the
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvSessionSecret); v != "" {
		c.SessionSecret = v
	}
	if v := getenv(EnvStagecraftToken); v != "" {
		c.Stagecraft.Token = v
	}
	if v := getenv(EnvOAuthClientSecret); v != "" {
		c.OAuth.ClientSecret = v
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if err := horosafe.ValidateSecret([]byte(c.SessionSecret)); err != nil {
		return fmt.Errorf("session_secret: %w (set %s)", err, EnvSessionSecret)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be > 0")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	for _, u := range []struct{ name, value string }{
		{"metric_store_url", c.MetricStoreURL},
		{"stagecraft.url", c.Stagecraft.URL},
		{"oauth.auth_url", c.OAuth.AuthURL},
		{"oauth.token_url", c.OAuth.TokenURL},
		{"oauth.userinfo_url", c.OAuth.UserInfoURL},
		{"oauth.redirect_url", c.OAuth.RedirectURL},
	} {
		if u.value == "" {
			return fmt.Errorf("%s is required", u.name)
		}
		if err := horosafe.ValidateServiceURL(u.value); err != nil {
			return fmt.Errorf("%s: %w", u.name, err)
		}
	}
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("oauth.client_id is required")
	}
	return c.Upload.Validate()
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level %q: use debug, info, warn or error", s)
	}
}
