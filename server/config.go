package server

import (
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config 进程级配置（环境变量，可由 .env 文件提供）
type Config struct {
	Addr string
	Log  LogConfig

	BackendBaseURL string
	BackendAPIKey  string
	BackendTimeout time.Duration

	// 内部通道 /internal 的访问密钥，为空时不开放
	InternalAPIKey string

	// 每个连接的发送队列长度，满了就丢弃
	SendQueueSize int
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() Config {
	return Config{
		Addr:           ":8080",
		Log:            LogConfig{File: "app.log", Level: "info"},
		BackendTimeout: 10 * time.Second,
		SendQueueSize:  64,
	}
}

// LoadConfig 先加载 envFile（不存在则忽略），再从环境变量读取配置
func LoadConfig(envFile string) (Config, error) {
	cfg := DefaultServerConfig()
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, errors.Wrapf(err, "load %s", envFile)
		}
	}

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("ADDR", &cfg.Addr)
	str("LOG_FILE", &cfg.Log.File)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("BACKEND_INTERNAL_BASE_URL", &cfg.BackendBaseURL)
	str("BACKEND_INTERNAL_API_KEY", &cfg.BackendAPIKey)
	str("INTERNAL_API_KEY", &cfg.InternalAPIKey)

	if v, ok := os.LookupEnv("LOG_STDERR"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.Wrap(err, "LOG_STDERR")
		}
		cfg.Log.Stderr = b
	}
	if v, ok := os.LookupEnv("BACKEND_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, errors.Wrap(err, "BACKEND_TIMEOUT")
		}
		cfg.BackendTimeout = d
	}
	if v, ok := os.LookupEnv("SEND_QUEUE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, errors.Errorf("SEND_QUEUE_SIZE: want a positive integer, got %q", v)
		}
		cfg.SendQueueSize = n
	}
	if cfg.BackendBaseURL != "" && cfg.BackendAPIKey == "" {
		return cfg, errors.New("BACKEND_INTERNAL_API_KEY is required when BACKEND_INTERNAL_BASE_URL is set")
	}
	return cfg, nil
}
