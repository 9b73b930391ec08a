package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/odpi/egeria-sub244/internal/db"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the complete runtime configuration of the search server.
type Config struct {
	Server   ServerConfig
	Store    string
	Database db.Config
	Search   SearchConfig
	Log      LogConfig
}

type ServerConfig struct {
	Address        string
	AllowedOrigins []string
}

// SearchConfig bounds what a single request may ask for.
type SearchConfig struct {
	MaxConditionDepth int
	DefaultPageSize   int
	MaxPageSize       int
	PlanCacheTTL      time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("store", StoreMemory)

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)
	v.SetDefault("database.min_conns", dbDefaults.MinConns)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)

	v.SetDefault("search.max_condition_depth", 16)
	v.SetDefault("search.default_page_size", 50)
	v.SetDefault("search.max_page_size", 1000)
	v.SetDefault("search.plan_cache_ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads config.yaml from configPath when present and applies EGERIA_*
// environment overrides, e.g. EGERIA_DATABASE_HOST or EGERIA_SEARCH_MAX_PAGE_SIZE.
// It reports whether a file was found.
func Load(configPath string) (Config, bool, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("EGERIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, false, fmt.Errorf("failed to read config: %w", err)
		}
		fileFound = false
	}

	cfg := Config{
		Server: ServerConfig{
			Address:        v.GetString("server.address"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Store: strings.ToLower(v.GetString("store")),
		Database: db.Config{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxConns:        v.GetInt32("database.max_conns"),
			MinConns:        v.GetInt32("database.min_conns"),
			MaxConnLifetime: v.GetDuration("database.max_conn_lifetime"),
			MaxConnIdleTime: v.GetDuration("database.max_conn_idle_time"),
		},
		Search: SearchConfig{
			MaxConditionDepth: v.GetInt("search.max_condition_depth"),
			DefaultPageSize:   v.GetInt("search.default_page_size"),
			MaxPageSize:       v.GetInt("search.max_page_size"),
			PlanCacheTTL:      v.GetDuration("search.plan_cache_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fileFound, err
	}
	return cfg, fileFound, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store %q: expected %q or %q", c.Store, StoreMemory, StorePostgres)
	}
	if c.Search.MaxConditionDepth < 1 {
		return fmt.Errorf("search.max_condition_depth must be at least 1, got %d", c.Search.MaxConditionDepth)
	}
	if c.Search.MaxPageSize < 1 {
		return fmt.Errorf("search.max_page_size must be at least 1, got %d", c.Search.MaxPageSize)
	}
	if c.Search.DefaultPageSize < 1 || c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf("search.default_page_size must be between 1 and %d, got %d", c.Search.MaxPageSize, c.Search.DefaultPageSize)
	}
	return nil
}
