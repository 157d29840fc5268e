package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`

	API struct {
		Listen              string `mapstructure:"listen"`
		HeartbeatRatePerMin int    `mapstructure:"heartbeat_rate_per_min"`
	} `mapstructure:"api"`

	Auth struct {
		Secret        string        `mapstructure:"secret"`
		TokenTTLHours int           `mapstructure:"token_ttl_hours"`
		TokenTTL      time.Duration `mapstructure:"-"`
	} `mapstructure:"auth"`

	Hub struct {
		BacklogCapacity          int           `mapstructure:"backlog_capacity"`
		ChannelBuffer            int           `mapstructure:"channel_buffer"`
		HeartbeatIntervalSeconds int           `mapstructure:"heartbeat_interval_seconds"`
		CleanupIntervalSeconds   int           `mapstructure:"cleanup_interval_seconds"`
		ConnectionTimeoutMinutes int           `mapstructure:"connection_timeout_minutes"`
		HeartbeatInterval        time.Duration `mapstructure:"-"`
		CleanupInterval          time.Duration `mapstructure:"-"`
		ConnectionTimeout        time.Duration `mapstructure:"-"`
	} `mapstructure:"hub"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("api.listen", "127.0.0.1:8080")
	v.SetDefault("api.heartbeat_rate_per_min", 60)
	v.SetDefault("auth.token_ttl_hours", 24)
	v.SetDefault("hub.backlog_capacity", 100)
	v.SetDefault("hub.channel_buffer", 256)
	v.SetDefault("hub.heartbeat_interval_seconds", 30)
	v.SetDefault("hub.cleanup_interval_seconds", 180)
	v.SetDefault("hub.connection_timeout_minutes", 30)
	v.SetDefault("log.level", "info")

	// Env overrides
	v.SetEnvPrefix("PUSHGATE")
	v.AutomaticEnv()
	_ = v.BindEnv("db.dsn", "PUSHGATE_DB_DSN")
	_ = v.BindEnv("api.listen", "PUSHGATE_API_LISTEN")
	_ = v.BindEnv("auth.secret", "PUSHGATE_AUTH_SECRET")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Auth.TokenTTL = time.Duration(c.Auth.TokenTTLHours) * time.Hour
	c.Hub.HeartbeatInterval = time.Duration(c.Hub.HeartbeatIntervalSeconds) * time.Second
	c.Hub.CleanupInterval = time.Duration(c.Hub.CleanupIntervalSeconds) * time.Second
	c.Hub.ConnectionTimeout = time.Duration(c.Hub.ConnectionTimeoutMinutes) * time.Minute

	if c.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required (set PUSHGATE_DB_DSN or config file)")
	}
	if c.Auth.Secret == "" {
		return nil, fmt.Errorf("auth.secret is required (set PUSHGATE_AUTH_SECRET or config file)")
	}
	return &c, nil
}
