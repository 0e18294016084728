// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	League   LeagueConfig   `mapstructure:"league"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr      string        `mapstructure:"addr"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// GameConfig holds match timing and sizing configuration. The skip grace
// keeps the server-side timeout check a little below the client-visible
// turn timeout so a client acting on its own clock is never rejected by
// clock skew alone.
type GameConfig struct {
	SecretLength        int           `mapstructure:"secret_length"`
	TurnTimeout         time.Duration `mapstructure:"turn_timeout"`
	SkipGrace           time.Duration `mapstructure:"skip_grace"`
	DisconnectThreshold time.Duration `mapstructure:"disconnect_threshold"`
	QueueStaleAfter     time.Duration `mapstructure:"queue_stale_after"`
	ChallengeStaleAfter time.Duration `mapstructure:"challenge_stale_after"`
}

// LeagueConfig holds league membership limits.
type LeagueConfig struct {
	MaxPerPlayer    int `mapstructure:"max_per_player"`
	MaxNameLen      int `mapstructure:"max_name_len"`
	MaxDisplayLen   int `mapstructure:"max_display_len"`
	CodeLength      int `mapstructure:"code_length"`
	CodeGenAttempts int `mapstructure:"code_gen_attempts"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. SERVER_ADDR, DATABASE_HOST, GAME_TURN_TIMEOUT.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.token_ttl", "720h")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "numduel")
	v.SetDefault("database.name", "numduel")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("game.secret_length", 6)
	v.SetDefault("game.turn_timeout", "30s")
	v.SetDefault("game.skip_grace", "2s")
	v.SetDefault("game.disconnect_threshold", "30s")
	v.SetDefault("game.queue_stale_after", "60s")
	v.SetDefault("game.challenge_stale_after", "60s")

	v.SetDefault("league.max_per_player", 5)
	v.SetDefault("league.max_name_len", 30)
	v.SetDefault("league.max_display_len", 20)
	v.SetDefault("league.code_length", 6)
	v.SetDefault("league.code_gen_attempts", 10)
}
