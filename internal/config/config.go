package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "HELPINGHAND"

// DevSecret is only accepted when Dev is true.
const DevSecret = "helpinghand-dev-secret"

type Config struct {
	Dev       bool
	Server    Server
	Database  Database
	Auth      Auth
	Log       Log
	RateLimit RateLimit
	Telemetry Telemetry
}

type Server struct {
	Addr         string
	CORSOrigins  string
	MaxBodyBytes int64
}

type Database struct {
	Driver         string
	DSN            string
	ConnectRetries int
}

type Auth struct {
	Secret   string
	TokenTTL time.Duration
	Issuer   string
}

type Log struct {
	Level  string
	Format string
}

type RateLimit struct {
	Enabled   bool
	PerMinute int
	RedisAddr string
}

type Telemetry struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Insecure    bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dev", false)
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "helpinghand.db")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.issuer", "helpinghand")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.per_minute", 240)
	v.SetDefault("ratelimit.redis_addr", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "helpinghand")
	v.SetDefault("telemetry.insecure", false)
}

// Load reads configuration from defaults, an optional YAML file and
// HELPINGHAND_* environment variables, in increasing precedence.
// An empty path looks for helpinghand.yaml in the working directory and
// tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("helpinghand")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Dev: v.GetBool("dev"),
		Server: Server{
			Addr:         v.GetString("server.addr"),
			CORSOrigins:  v.GetString("server.cors_origins"),
			MaxBodyBytes: v.GetInt64("server.max_body_bytes"),
		},
		Database: Database{
			Driver:         strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
			DSN:            v.GetString("database.dsn"),
			ConnectRetries: v.GetInt("database.connect_retries"),
		},
		Auth: Auth{
			Secret:   v.GetString("auth.secret"),
			TokenTTL: v.GetDuration("auth.token_ttl"),
			Issuer:   v.GetString("auth.issuer"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		RateLimit: RateLimit{
			Enabled:   v.GetBool("ratelimit.enabled"),
			PerMinute: v.GetInt("ratelimit.per_minute"),
			RedisAddr: v.GetString("ratelimit.redis_addr"),
		},
		Telemetry: Telemetry{
			Enabled:     v.GetBool("telemetry.enabled"),
			Endpoint:    v.GetString("telemetry.endpoint"),
			ServiceName: v.GetString("telemetry.service_name"),
			Insecure:    v.GetBool("telemetry.insecure"),
		},
	}
	if cfg.Dev && cfg.Auth.Secret == "" {
		cfg.Auth.Secret = DevSecret
	}
	return cfg
}

// Validate reports the first setting that would prevent the server from
// starting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver: %q is invalid (valid values: sqlite, postgres)", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth.secret is required (set HELPINGHAND_AUTH_SECRET)")
	}
	if c.Auth.Secret == DevSecret && !c.Dev {
		return errors.New("auth.secret: the development secret is only allowed with dev=true")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: %q is invalid (valid values: text, json)", c.Log.Format)
	}
	if c.RateLimit.Enabled && c.RateLimit.PerMinute <= 0 {
		return errors.New("ratelimit.per_minute must be positive when rate limiting is enabled")
	}
	return nil
}
