// Package config loads server configuration.
//
// Values are resolved in three layers, later layers winning:
//
//  1. Defaults (Default)
//  2. An optional YAML file named by REFOLIO_CONFIG
//  3. Environment variables (PORT, DB_PATH, JWT_SECRET, ...)
//
// Environment variables are what a deployment sets; the YAML file is handy
// for local development where a long list of exports gets tedious.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "REFOLIO_CONFIG"

type Config struct {
	Port     int    `yaml:"port"`
	BaseURL  string `yaml:"base_url"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	GitHub  GitHubConfig  `yaml:"github"`
}

type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	// SecureCookies sets the Secure attribute; leave false for plain-HTTP dev.
	SecureCookies bool `yaml:"secure_cookies"`
}

// StorageConfig selects the blob store. When S3.Bucket is empty uploads go
// to MediaDir on local disk and are served under /media/.
type StorageConfig struct {
	MediaDir string   `yaml:"media_dir"`
	S3       S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// PublicURL is the prefix public object URLs are built from. Defaults to
	// Endpoint/Bucket.
	PublicURL string `yaml:"public_url"`
}

// RedisConfig enables the Redis change bus. Empty Addr means in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GitHubConfig struct {
	Token string `yaml:"token"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     8080,
		BaseURL:  "http://localhost:8080",
		DBPath:   "data/refolio.db",
		LogLevel: "info",
		Storage: StorageConfig{
			MediaDir: "data/media",
			S3:       S3Config{Region: "us-east-1"},
		},
	}
}

// Load resolves the configuration from the process environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv(FileEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		cfg.Port = port
	}
	if v := getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid REDIS_DB %q", v)
		}
		cfg.Redis.DB = db
	}
	if v := getenv("SECURE_COOKIES"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid SECURE_COOKIES %q", v)
		}
		cfg.Auth.SecureCookies = secure
	}

	setString(&cfg.BaseURL, "BASE_URL")
	setString(&cfg.DBPath, "DB_PATH")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.Auth.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.Storage.MediaDir, "MEDIA_DIR")
	setString(&cfg.Storage.S3.Bucket, "S3_BUCKET")
	setString(&cfg.Storage.S3.Region, "S3_REGION")
	setString(&cfg.Storage.S3.Endpoint, "S3_ENDPOINT")
	setString(&cfg.Storage.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&cfg.Storage.S3.SecretKey, "S3_SECRET_KEY")
	setString(&cfg.Storage.S3.PublicURL, "S3_PUBLIC_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return nil
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("jwt_secret must be at least 16 characters"))
	}
	if (c.Auth.GoogleClientID == "") != (c.Auth.GoogleClientSecret == "") {
		errs = append(errs, errors.New("google_client_id and google_client_secret must be set together"))
	}
	if c.Storage.S3.Bucket == "" && c.Storage.MediaDir == "" {
		errs = append(errs, errors.New("either storage.s3.bucket or storage.media_dir is required"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// AuthEnabled reports whether sessions can be issued at all.
func (c Config) AuthEnabled() bool { return c.Auth.JWTSecret != "" }

// GoogleEnabled reports whether the Google sign-in route is registered.
func (c Config) GoogleEnabled() bool { return c.Auth.GoogleClientID != "" }

// CallbackURL is where both sign-in flows return to.
func (c Config) CallbackURL() string { return c.BaseURL + "/auth/callback" }

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return lvl, nil
}
