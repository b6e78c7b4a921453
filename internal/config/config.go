// Package config loads service settings from pipi.toml, a .env file and the
// process environment, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the full service configuration.
type Config struct {
	Server     Server     `koanf:"server"`
	Storage    Storage    `koanf:"storage"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Auth       Auth       `koanf:"auth"`
	Telegram   Telegram   `koanf:"telegram"`
	Proximity  Proximity  `koanf:"proximity"`
	Activity   Activity   `koanf:"activity"`
	Log        Log        `koanf:"log"`
}

type Server struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type Storage struct {
	// Backend is "postgres" or "memory".
	Backend string `koanf:"backend"`
}

type PostgreSQL struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"db_name"`
	SSLMode  string `koanf:"ssl_mode"`
}

// DSN builds the lib/pq style connection string.
func (p PostgreSQL) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		p.Host, p.User, p.Password, p.DBName, p.Port, p.SSLMode)
}

type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type Auth struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type Telegram struct {
	// BotToken enables host notifications when set.
	BotToken string `koanf:"bot_token"`
}

type Proximity struct {
	Threshold     float64       `koanf:"threshold"`
	Policy        string        `koanf:"policy"`
	SearchTimeout time.Duration `koanf:"search_timeout"`
	DismissDelay  time.Duration `koanf:"dismiss_delay"`
	// RequireMembership rejects verification from users who have not joined.
	RequireMembership bool `koanf:"require_membership"`
}

type Activity struct {
	// JoinMode is "conditional" or "literal".
	JoinMode string `koanf:"join_mode"`
}

type Log struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Default returns the built-in settings used before any file or env is applied.
func Default() Config {
	return Config{
		Server: Server{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Storage: Storage{Backend: BackendPostgres},
		PostgreSQL: PostgreSQL{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "password",
			DBName:   "pipidb",
			SSLMode:  "disable",
		},
		Redis: Redis{Addr: "localhost:6379"},
		Auth:  Auth{TokenTTL: TokenTTL},
		Proximity: Proximity{
			Threshold:         ProximityThresholdMeters,
			Policy:            "most_recently_updated",
			DismissDelay:      DismissDelay,
			RequireMembership: true,
		},
		Activity: Activity{JoinMode: JoinModeConditional},
		Log:      Log{Level: "info"},
	}
}

// SearchPaths are the directories searched for pipi.toml.
var SearchPaths = []string{
	".pipi",
	"/etc/pipi",
	"/app/config",
	"config",
	".",
}

// Load reads pipi.toml from the first search path that has one, then applies
// environment overrides. A missing file is not an error. The returned string is
// the file that was used, or empty.
func Load(paths ...string) (*Config, string, error) {
	// .env is optional
	_ = godotenv.Load()

	if len(paths) == 0 {
		paths = SearchPaths
	}

	k := koanf.New(".")
	var used string
	for _, dir := range paths {
		path := dir + "/pipi.toml"
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error loading %s: %w", path, err)
		}
		used = path
		break
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, used, nil
}

// Validate checks the values other packages rely on.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("%w: storage.backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	switch c.Activity.JoinMode {
	case JoinModeConditional, JoinModeLiteral:
	default:
		return fmt.Errorf("%w: activity.join_mode %q", ErrInvalidConfig, c.Activity.JoinMode)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("%w: auth.jwt_secret is empty (set JWT_SECRET)", ErrInvalidConfig)
	}
	if c.Proximity.Threshold <= 0 {
		return fmt.Errorf("%w: proximity.threshold must be positive", ErrInvalidConfig)
	}
	return nil
}

func applyEnv(c *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("PIPI_ADDR", &c.Server.Addr)
	setString("STORAGE_BACKEND", &c.Storage.Backend)
	setString("DB_HOST", &c.PostgreSQL.Host)
	setInt("DB_PORT", &c.PostgreSQL.Port)
	setString("DB_USER", &c.PostgreSQL.User)
	setString("DB_PASSWORD", &c.PostgreSQL.Password)
	setString("DB_NAME", &c.PostgreSQL.DBName)
	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setString("JWT_SECRET", &c.Auth.JWTSecret)
	setString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	setString("JOIN_MODE", &c.Activity.JoinMode)
	setString("LOG_LEVEL", &c.Log.Level)
}
