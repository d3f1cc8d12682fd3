package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	BaseRoute  string        `mapstructure:"base_route"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	RoomDeleteTime  time.Duration `mapstructure:"room_delete_time"`
	PersistDebounce time.Duration `mapstructure:"persist_debounce"`
	EchoMessages    bool          `mapstructure:"echo_messages"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
	DatabaseURL    string   `mapstructure:"database_url"`
	RedisURL       string   `mapstructure:"redis_url"`
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
	v.SetDefault("port", 3000)
	v.SetDefault("base_route", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("room_delete_time", "30m")
	v.SetDefault("persist_debounce", "1s")
	v.SetDefault("echo_messages", false)
	v.SetDefault("allowed_origins", []string{
		"http://localhost:3000",
		"https://kaguya.live",
		"https://www.kaguya.live",
	})
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")

	// Environment variables (PORT, BASE_ROUTE, DATABASE_URL, ...) override
	// file values; defaults above register the keys for AutomaticEnv.
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults and env\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
