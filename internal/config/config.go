package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Fanout policies for live delivery to users with several devices.
const (
	FanoutLatest = "latest"
	FanoutAll    = "all"
)

// placeholderSecret ships in Default and is refused by Validate.
const placeholderSecret = "change-me-in-production"

// Config represents the daemon's config.toml.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Auth     AuthConfig     `toml:"auth"`
	Delivery DeliveryConfig `toml:"delivery"`
	Limits   LimitsConfig   `toml:"limits"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Listen      string `toml:"listen"`
	CORSOrigins string `toml:"cors_origins"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	Issuer    string   `toml:"issuer"`
	TokenTTL  Duration `toml:"token_ttl"`
}

type DeliveryConfig struct {
	Fanout string `toml:"fanout"`
}

type LimitsConfig struct {
	MessagesPerSecond float64 `toml:"messages_per_second"`
	Burst             int     `toml:"burst"`
	MaxContentLength  int     `toml:"max_content_length"`
}

type LogConfig struct {
	Path  string `toml:"path"`
	Level string `toml:"level"`
}

// Duration is a time.Duration that decodes from TOML strings like "168h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// BaseDir returns ~/.dmchat.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dmchat")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:      ":3001",
			CORSOrigins: "http://localhost:3000",
		},
		Store: StoreConfig{Path: filepath.Join(BaseDir(), "dmchat.db")},
		Auth: AuthConfig{
			JWTSecret: placeholderSecret,
			Issuer:    "dmchat",
			TokenTTL:  Duration{7 * 24 * time.Hour},
		},
		Delivery: DeliveryConfig{Fanout: FanoutLatest},
		Limits: LimitsConfig{
			MessagesPerSecond: 10,
			Burst:             20,
			MaxContentLength:  1000,
		},
		Log: LogConfig{
			Path:  filepath.Join(BaseDir(), "logs", "dmchatd.log"),
			Level: "info",
		},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		cfg = Default()
		applyEnv(cfg)
		return cfg, nil
	}
	return nil, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate reports the first setting the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Delivery.Fanout {
	case FanoutLatest, FanoutAll:
	default:
		return fmt.Errorf("delivery.fanout: unknown policy %q", c.Delivery.Fanout)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret: must not be empty")
	}
	if c.Auth.JWTSecret == placeholderSecret {
		return fmt.Errorf("auth.jwt_secret: placeholder secret, set it in the config file or DMCHAT_JWT_SECRET")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path: must not be empty")
	}
	if c.Limits.MessagesPerSecond <= 0 || c.Limits.Burst <= 0 {
		return fmt.Errorf("limits: messages_per_second and burst must be positive")
	}
	if c.Limits.MaxContentLength <= 0 {
		return fmt.Errorf("limits.max_content_length: must be positive")
	}
	return nil
}

// NewSecret returns a random 256-bit signing secret, hex encoded.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func applyEnv(cfg *Config) {
	if secret := os.Getenv("DMCHAT_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
}
