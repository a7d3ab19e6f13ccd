// Package config loads service settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const minJWTSecretLength = 32

// Config is the complete service configuration.
type Config struct {
	App        AppConfig        `yaml:"app"`
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Pagination PaginationConfig `yaml:"pagination"`
	Log        LogConfig        `yaml:"log"`
}

type AppConfig struct {
	Name string `yaml:"name"`
}

// HTTPConfig holds listener, timeout and request limiting settings.
// Timeouts are in seconds.
type HTTPConfig struct {
	Listen          string   `yaml:"listen"`
	ReadTimeout     int      `yaml:"read_timeout"`
	WriteTimeout    int      `yaml:"write_timeout"`
	IdleTimeout     int      `yaml:"idle_timeout"`
	ShutdownTimeout int      `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	RateLimitRPS    float64  `yaml:"rate_limit_rps"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

type GRPCConfig struct {
	Listen string `yaml:"listen"`
}

// DatabaseConfig describes the PostgreSQL connection. URL, when set, wins
// over the individual fields.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	SSLMode         string `yaml:"sslmode"`
	PoolSize        int    `yaml:"pool_size"`
	MaxOverflow     int    `yaml:"max_overflow"`
	ConnectAttempts uint   `yaml:"connect_attempts"`
}

type JWTConfig struct {
	Secret                   string `yaml:"secret"`
	Algorithm                string `yaml:"algorithm"`
	Issuer                   string `yaml:"issuer"`
	AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes"`
	RefreshTokenExpireDays   int    `yaml:"refresh_token_expire_days"`
	RefreshExtensionDays     int    `yaml:"refresh_extension_days"`
	LeewaySeconds            int    `yaml:"leeway_seconds"`
}

type PaginationConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "staffroster"},
		HTTP: HTTPConfig{
			Listen:          ":8080",
			ReadTimeout:     15,
			WriteTimeout:    15,
			IdleTimeout:     60,
			ShutdownTimeout: 10,
			MaxBodyBytes:    1 << 20,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		GRPC: GRPCConfig{Listen: ":9090"},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			PoolSize:        5,
			MaxOverflow:     10,
			ConnectAttempts: 5,
		},
		JWT: JWTConfig{
			Algorithm:                "HS256",
			Issuer:                   "staffroster",
			AccessTokenExpireMinutes: 30,
			RefreshTokenExpireDays:   7,
			RefreshExtensionDays:     7,
			LeewaySeconds:            5,
		},
		Pagination: PaginationConfig{DefaultPageSize: 20, MaxPageSize: 100},
		Log:        LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// applyEnvOverrides applies the environment on top of cfg. Variable names
// match the ones used by existing deployments.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be an integer", key))
			return
		}
		*dst = n
	}

	str("APP_NAME", &cfg.App.Name)

	str("HTTP_LISTEN", &cfg.HTTP.Listen)
	if v, ok := lookup("RATE_LIMIT_RPS"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, "RATE_LIMIT_RPS must be a number")
		} else {
			cfg.HTTP.RateLimitRPS = f
		}
	}
	num("RATE_LIMIT_BURST", &cfg.HTTP.RateLimitBurst)
	if v, ok := lookup("CORS_ORIGINS"); ok {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	str("GRPC_LISTEN", &cfg.GRPC.Listen)

	str("DATABASE_URL", &cfg.Database.URL)
	str("DB_HOST", &cfg.Database.Host)
	num("DB_PORT", &cfg.Database.Port)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Name)
	str("DB_SSLMODE", &cfg.Database.SSLMode)
	num("DB_POOL_SIZE", &cfg.Database.PoolSize)
	num("DB_MAX_OVERFLOW", &cfg.Database.MaxOverflow)

	str("JWT_SECRET_KEY", &cfg.JWT.Secret)
	str("JWT_ALGORITHM", &cfg.JWT.Algorithm)
	str("JWT_ISSUER", &cfg.JWT.Issuer)
	num("ACCESS_TOKEN_EXPIRE_MINUTES", &cfg.JWT.AccessTokenExpireMinutes)
	num("REFRESH_TOKEN_EXPIRE_DAYS", &cfg.JWT.RefreshTokenExpireDays)
	num("REFRESH_EXTENSION_DAYS", &cfg.JWT.RefreshExtensionDays)
	num("JWT_LEEWAY_SECONDS", &cfg.JWT.LeewaySeconds)

	num("DEFAULT_PAGE_SIZE", &cfg.Pagination.DefaultPageSize)
	num("MAX_PAGE_SIZE", &cfg.Pagination.MaxPageSize)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("environment errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the settings needed regardless of the storage backend.
// Database settings are checked by DSN.
func (c *Config) Validate() error {
	var errs []string

	if c.HTTP.Listen == "" {
		errs = append(errs, "http.listen is required")
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		errs = append(errs, "http rate limit must not be negative")
	}

	if c.JWT.Secret == "" {
		errs = append(errs, "jwt.secret is required (set JWT_SECRET_KEY)")
	} else if len(c.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "jwt.secret must be at least 32 characters")
	}
	switch strings.ToUpper(c.JWT.Algorithm) {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Sprintf("jwt.algorithm %q is not supported", c.JWT.Algorithm))
	}
	if c.JWT.AccessTokenExpireMinutes <= 0 {
		errs = append(errs, "jwt.access_token_expire_minutes must be positive")
	}
	if c.JWT.RefreshTokenExpireDays <= 0 {
		errs = append(errs, "jwt.refresh_token_expire_days must be positive")
	}
	if c.JWT.RefreshExtensionDays < 0 || c.JWT.LeewaySeconds < 0 {
		errs = append(errs, "jwt extension and leeway must not be negative")
	}

	if c.Pagination.DefaultPageSize <= 0 || c.Pagination.MaxPageSize <= 0 {
		errs = append(errs, "pagination sizes must be positive")
	} else if c.Pagination.DefaultPageSize > c.Pagination.MaxPageSize {
		errs = append(errs, "pagination.default_page_size must not exceed max_page_size")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() (string, error) {
	db := c.Database
	if db.URL != "" {
		return db.URL, nil
	}
	var missing []string
	if db.User == "" {
		missing = append(missing, "DB_USER")
	}
	if db.Password == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if db.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("database settings missing: %s", strings.Join(missing, ", "))
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Password),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   "/" + db.Name,
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	return u.String(), nil
}

// MaxOpenConns is the pool size plus the allowed overflow.
func (c *Config) MaxOpenConns() int { return c.Database.PoolSize + c.Database.MaxOverflow }

// MaxIdleConns keeps the base pool warm.
func (c *Config) MaxIdleConns() int { return c.Database.PoolSize }

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenExpireMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWT.RefreshTokenExpireDays) * 24 * time.Hour
}

func (c *Config) RefreshExtension() time.Duration {
	return time.Duration(c.JWT.RefreshExtensionDays) * 24 * time.Hour
}

func (c *Config) Leeway() time.Duration {
	return time.Duration(c.JWT.LeewaySeconds) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.HTTP.ReadTimeout) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.HTTP.WriteTimeout) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.HTTP.IdleTimeout) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownTimeout) * time.Second
}
