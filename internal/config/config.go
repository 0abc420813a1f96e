package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Cache    CacheConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	cache, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Upstream: upstream, Cache: cache}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	Env            string        `envconfig:"APP_ENV" default:"production"`
	HandlerTimeout time.Duration `envconfig:"HANDLER_TIMEOUT" default:"5m"`

	Addr string `ignored:"true"`
}

// Development 表示是否运行在开发模式。
func (c ServerConfig) Development() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "develop", "development", "local":
		return true
	}
	return false
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Port)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.Addr = addr
	return cfg, nil
}

func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	return ":" + port, nil
}

// UpstreamConfig 描述上游生成式接口配置。
type UpstreamConfig struct {
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	Model   string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	BaseURL string `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
}

// Enabled 表示是否提供了上游凭证。缺失凭证不是启动错误，请求时返回 500。
func (c UpstreamConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	var cfg UpstreamConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return UpstreamConfig{}, fmt.Errorf("load upstream config: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return cfg, nil
}

// CacheConfig 描述会话缓存配置。
type CacheConfig struct {
	TTL           time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"0"`
	RedisURI      string        `envconfig:"CACHE_REDIS_URI"`
}

func loadCacheConfig() (CacheConfig, error) {
	var cfg CacheConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return CacheConfig{}, fmt.Errorf("load cache config: %w", err)
	}
	if cfg.TTL <= 0 {
		return CacheConfig{}, fmt.Errorf("invalid CACHE_TTL value %q", cfg.TTL)
	}
	return cfg, nil
}
