package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config carries every process-wide setting. It is built once at startup and
// passed by value; nothing in the service mutates it afterwards.
type Config struct {
	Env  string `yaml:"env" env:"CANTUS_ENV" env-default:"local"`
	HTTP HTTP   `yaml:"http"`
	DB   DB     `yaml:"db"`
	Auth Auth   `yaml:"auth"`
	Rate Rate   `yaml:"rate"`
}

type HTTP struct {
	Addr         string        `yaml:"addr" env:"CANTUS_HTTP_ADDR" env-default:":8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"CANTUS_HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"CANTUS_HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"CANTUS_HTTP_IDLE_TIMEOUT" env-default:"60s"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"CANTUS_HTTP_MAX_BODY_BYTES" env-default:"1048576"`
}

type DB struct {
	DSN string `yaml:"dsn" env:"CANTUS_PG_DSN"`
}

type Auth struct {
	// Secret signs access tokens (HS256). Required outside tests.
	Secret     string        `yaml:"secret" env:"CANTUS_AUTH_SECRET"`
	Issuer     string        `yaml:"issuer" env:"CANTUS_AUTH_ISSUER" env-default:"cantus"`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"CANTUS_AUTH_ACCESS_TTL" env-default:"15m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"CANTUS_AUTH_REFRESH_TTL" env-default:"168h"`
	// SecureCookies must be true behind TLS; tokens travel in HttpOnly
	// cookies and the Secure attribute follows this flag.
	SecureCookies bool `yaml:"secure_cookies" env:"CANTUS_AUTH_SECURE_COOKIES" env-default:"false"`
}

type Rate struct {
	Burst  int `yaml:"burst" env:"CANTUS_RATE_BURST" env-default:"20"`
	PerSec int `yaml:"per_sec" env:"CANTUS_RATE_PER_SEC" env-default:"10"`
}

// Load reads the optional YAML file named by CANTUS_CONFIG_PATH, then applies
// environment overrides.
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("CANTUS_CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Auth.Secret == "" {
		return errors.New("config: auth secret is required")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	return nil
}
