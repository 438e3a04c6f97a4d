package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendQueue  int           `mapstructure:"send_queue"`
	Secret     string        `mapstructure:"secret"`
	JWTSecret  string        `mapstructure:"jwt_secret"`

	CORSOrigins []string `mapstructure:"cors_origins"`

	TypingTTL           time.Duration `mapstructure:"typing_ttl"`
	HistoryDefaultLimit int           `mapstructure:"history_default_limit"`
	HistoryMaxLimit     int           `mapstructure:"history_max_limit"`
	MaxTextRunes        int           `mapstructure:"max_text_runes"`
	MaxAudioBytes       int           `mapstructure:"max_audio_bytes"`
	SendRateLimit       int           `mapstructure:"send_rate_limit"`
	SendRateInterval    time.Duration `mapstructure:"send_rate_interval"`

	Storage      StorageConfig `mapstructure:"storage"`
	DefaultRooms []string      `mapstructure:"default_rooms"`
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

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Storage: %s | Static: %s\n", cfg.Mode, cfg.Port, cfg.Storage.Driver, cfg.StaticPath)
	return cfg, nil
}

// SetDefaults registers every key so AutomaticEnv can override it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 2<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_queue", 64)
	v.SetDefault("secret", "dev-cookie-secret")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("cors_origins", []string{})

	v.SetDefault("typing_ttl", "2s")
	v.SetDefault("history_default_limit", 50)
	v.SetDefault("history_max_limit", 200)
	v.SetDefault("max_text_runes", 2000)
	v.SetDefault("max_audio_bytes", 1<<20)
	v.SetDefault("send_rate_limit", 20)
	v.SetDefault("send_rate_interval", "10s")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("default_rooms", []string{"general"})
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.HistoryMaxLimit < cfg.HistoryDefaultLimit {
		return nil, fmt.Errorf("history_max_limit (%d) is below history_default_limit (%d)", cfg.HistoryMaxLimit, cfg.HistoryDefaultLimit)
	}
	switch cfg.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return &cfg, nil
}
