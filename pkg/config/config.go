package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Shopify   ShopifyConfig
	LLM       LLMConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type ShopifyConfig struct {
	APIVersion string
	TimeoutSec int
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/shop-agent")

	viper.SetEnvPrefix("SHOP_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("shopify.apiVersion", "2023-10")
	viper.SetDefault("shopify.timeoutSec", 15)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-3.5-turbo")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.maxTokens", 300)
	viper.SetDefault("llm.timeoutSec", 30)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("rateLimit.maxRequestsPerMinute", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
