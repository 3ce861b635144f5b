package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the persistent application configuration
type Config struct {
	Feed    FeedConfig    `json:"feed"`
	UI      UIConfig      `json:"ui"`
	Backend BackendConfig `json:"backend"`
	Media   MediaConfig   `json:"media"`
	Auth    AuthConfig    `json:"auth"`
	Share   ShareConfig   `json:"share"`
}

// FeedConfig tunes the feed controller
type FeedConfig struct {
	PageSize      int `json:"page_size" validate:"gte=1,lte=100"`
	DebounceMs    int `json:"debounce_ms" validate:"gte=0,lte=2000"`
	FlagTTLMs     int `json:"flag_ttl_ms" validate:"gte=0"`
	ToastTTLMs    int `json:"toast_ttl_ms" validate:"gte=0"`
	LoadThreshold int `json:"load_threshold" validate:"gte=0"` // scroll units from the end
}

// UIConfig holds UI preferences
type UIConfig struct {
	Theme     string `json:"theme" validate:"oneof=dark light"`
	Font      string `json:"font" validate:"oneof=normal large"`
	ShowDebug bool   `json:"show_debug"`
}

// BackendConfig locates the document store and the change bus
type BackendConfig struct {
	DBPath   string `json:"db_path"`             // empty means ~/.vibesphere/vibesphere.db
	RedisURL string `json:"redis_url,omitempty"` // empty disables cross-process sync
}

// MediaConfig selects where uploads go
type MediaConfig struct {
	Mode      string `json:"mode" validate:"oneof=dir s3"`
	Dir       string `json:"dir,omitempty"`
	Endpoint  string `json:"s3_endpoint,omitempty" validate:"required_if=Mode s3"`
	AccessKey string `json:"s3_access_key,omitempty"`
	SecretKey string `json:"s3_secret_key,omitempty"`
	Bucket    string `json:"s3_bucket,omitempty" validate:"required_if=Mode s3"`
	UseSSL    bool   `json:"s3_use_ssl"`
	PublicURL string `json:"public_url,omitempty"`
}

// AuthConfig holds session settings
type AuthConfig struct {
	JWTSecret      string `json:"jwt_secret,omitempty"`
	SessionTTLDays int    `json:"session_ttl_days" validate:"gte=1,lte=365"`
}

// ShareConfig controls link sharing
type ShareConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	Command string `json:"command,omitempty"` // platform share command, e.g. "termux-share {url}"
}

var validate = validator.New()

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			PageSize:      20,
			DebounceMs:    150,
			FlagTTLMs:     600,
			ToastTTLMs:    5000,
			LoadThreshold: 1000,
		},
		UI: UIConfig{
			Theme: "dark",
			Font:  "normal",
		},
		Media: MediaConfig{
			Mode: "dir",
		},
		Auth: AuthConfig{
			SessionTTLDays: 30,
		},
		Share: ShareConfig{
			BaseURL: "https://vibesphere.app",
		},
	}
}

// Dir is ~/.vibesphere
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vibesphere")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads config from disk, or returns defaults
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from path. A missing file yields defaults. Fields
// absent from the file keep their defaults. Environment variables override
// the file either way.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.AutoPopulateFromEnv()
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes config to path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for secrets
}

// Validate checks ranges and required fields
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// AutoPopulateFromEnv fills in backend settings and secrets from environment variables
func (c *Config) AutoPopulateFromEnv() {
	c.apply(os.Getenv)
}

// LoadKeysFromFile loads settings from a shell script of export lines (like keys.sh)
func (c *Config) LoadKeysFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	vars := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}

	c.apply(func(k string) string { return vars[k] })
	return nil
}

func (c *Config) apply(get func(string) string) {
	if v := get("VIBESPHERE_DB"); v != "" {
		c.Backend.DBPath = v
	}
	if v := get("VIBESPHERE_REDIS_URL"); v != "" {
		c.Backend.RedisURL = v
	}
	if v := get("VIBESPHERE_S3_ENDPOINT"); v != "" {
		c.Media.Endpoint = v
		c.Media.Mode = "s3"
	}
	if v := get("VIBESPHERE_S3_ACCESS_KEY"); v != "" {
		c.Media.AccessKey = v
	}
	if v := get("VIBESPHERE_S3_SECRET_KEY"); v != "" {
		c.Media.SecretKey = v
	}
	if v := get("VIBESPHERE_S3_BUCKET"); v != "" {
		c.Media.Bucket = v
	}
	if v := get("VIBESPHERE_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Media.UseSSL = b
		}
	}
	if v := get("VIBESPHERE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := get("VIBESPHERE_SHARE_BASE_URL"); v != "" {
		c.Share.BaseURL = v
	}
}

// DBPath resolves the document store location
func (c *Config) DBPath() string {
	if c.Backend.DBPath != "" {
		return c.Backend.DBPath
	}
	return filepath.Join(Dir(), "vibesphere.db")
}

// PrefsPath is the local key-value store
func (c *Config) PrefsPath() string {
	return filepath.Join(Dir(), "prefs.db")
}

// MediaDir resolves the upload directory for dir mode
func (c *Config) MediaDir() string {
	if c.Media.Dir != "" {
		return c.Media.Dir
	}
	return filepath.Join(Dir(), "media")
}

// EventsPath is the JSONL event log
func (c *Config) EventsPath() string {
	return filepath.Join(Dir(), "events.jsonl")
}

// SessionTTL as a duration
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTLDays) * 24 * time.Hour
}

// Millis converts a millisecond setting
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
