package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Gateway GatewayConfig
	Poll    PollConfig
	Preview PreviewConfig
	History HistoryConfig
	Redis   RedisConfig
}

type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	SubmitTimeout int // seconds; uploads may legitimately take minutes
	PollTimeout   int // seconds; a failed probe is retried next tick
}

type PollConfig struct {
	Interval int // seconds between status probes
}

type PreviewConfig struct {
	PageSize int
}

type HistoryConfig struct {
	Limit int // jobs fetched per refresh
}

// RedisConfig is optional; when Addr is empty the artifact-availability
// memory stays in-process only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() (*Config, error) {
	readSecret("GATEWAY_API_KEY")
	readSecret("REDIS_PASSWORD")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	_ = viper.BindEnv("gateway.base_url", "GATEWAY_BASE_URL")
	_ = viper.BindEnv("gateway.api_key", "GATEWAY_API_KEY")
	_ = viper.BindEnv("gateway.submit_timeout", "GATEWAY_SUBMIT_TIMEOUT")
	_ = viper.BindEnv("gateway.poll_timeout", "GATEWAY_POLL_TIMEOUT")
	_ = viper.BindEnv("poll.interval", "POLL_INTERVAL")
	_ = viper.BindEnv("preview.page_size", "PREVIEW_PAGE_SIZE")
	_ = viper.BindEnv("history.limit", "HISTORY_LIMIT")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")

	// Defaults
	viper.SetDefault("gateway.base_url", "http://localhost:8000")
	viper.SetDefault("gateway.submit_timeout", 300)
	viper.SetDefault("gateway.poll_timeout", 10)
	viper.SetDefault("poll.interval", 2)
	viper.SetDefault("preview.page_size", 50)
	viper.SetDefault("history.limit", 100)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Gateway: GatewayConfig{
			BaseURL:       viper.GetString("gateway.base_url"),
			APIKey:        viper.GetString("gateway.api_key"),
			SubmitTimeout: viper.GetInt("gateway.submit_timeout"),
			PollTimeout:   viper.GetInt("gateway.poll_timeout"),
		},
		Poll: PollConfig{
			Interval: viper.GetInt("poll.interval"),
		},
		Preview: PreviewConfig{
			PageSize: viper.GetInt("preview.page_size"),
		},
		History: HistoryConfig{
			Limit: viper.GetInt("history.limit"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
	}

	return cfg, nil
}
