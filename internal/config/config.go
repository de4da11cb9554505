package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	// RedisAddr switches the presence transport to Redis when set;
	// empty means single-node in-memory presence.
	RedisAddr string `mapstructure:"redis_addr"`
	// PostgresDSN enables the registered-user profile read path.
	PostgresDSN string `mapstructure:"postgres_dsn"`

	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	EventLogSize     int           `mapstructure:"event_log_size"`
	RoomMaxOccupants int           `mapstructure:"room_max_occupants"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("redis_addr", "")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("connect_timeout", "5s")
	v.SetDefault("event_log_size", 10)
	v.SetDefault("room_max_occupants", 5)
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Transport: %s\n", cfg.Mode, cfg.Port, transportName(cfg.RedisAddr))
	return &cfg, nil
}

func transportName(redisAddr string) string {
	if redisAddr == "" {
		return "memory"
	}
	return "redis"
}
