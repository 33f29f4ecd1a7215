package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string  `mapstructure:"port"`
	TotalSlots      int     `mapstructure:"total_slots"`
	RatePerMinute   float64 `mapstructure:"rate_per_minute"`
	LogLevel        string  `mapstructure:"log_level"`
	OTelServiceName string  `mapstructure:"otel_service_name"`
	OTelEndpoint    string  `mapstructure:"otel_endpoint"`
	ChatBaseURL     string  `mapstructure:"chat_base_url"`
	ChatAPIKey      string  `mapstructure:"chat_api_key"`
	ChatModel       string  `mapstructure:"chat_model"`
	IPInfoURL       string  `mapstructure:"ipinfo_url"`
	IPInfoToken     string  `mapstructure:"ipinfo_token"`
	RateLimitRPS    float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
	RedisURL        string  `mapstructure:"redis_url"`
	RedisStream     string  `mapstructure:"redis_stream"`
}

var defaults = map[string]any{
	"port":              "8080",
	"total_slots":       20,
	"rate_per_minute":   0.5,
	"log_level":         "info",
	"otel_service_name": "parking-lot-service",
	"otel_endpoint":     "http://localhost:4318",
	"chat_base_url":     "https://router.huggingface.co/v1",
	"chat_api_key":      "",
	"chat_model":        "openai-community/gpt2",
	"ipinfo_url":        "https://ipinfo.io/json",
	"ipinfo_token":      "",
	"rate_limit_rps":    20.0,
	"rate_limit_burst":  40,
	"redis_url":         "",
	"redis_stream":      "parking:actions",
}

// env names that predate the PARKING_ prefix and are kept for compatibility.
var envAliases = map[string]string{
	"port":              "APP_PORT",
	"otel_service_name": "OTEL_SERVICE_NAME",
	"otel_endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
	"chat_api_key":      "HF_API_KEY",
	"ipinfo_token":      "IPINFO_TOKEN",
	"redis_url":         "REDIS_URL",
}

// Load reads defaults, then the optional config file, then the environment.
// Every key can be set as PARKING_<KEY>, e.g. PARKING_TOTAL_SLOTS.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("PARKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, "PARKING_"+strings.ToUpper(key), env); err != nil {
			return nil, err
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.TotalSlots <= 0 {
		errs = append(errs, fmt.Errorf("total_slots must be greater than 0, got %d", c.TotalSlots))
	}
	if c.RatePerMinute < 0 {
		errs = append(errs, fmt.Errorf("rate_per_minute must not be negative, got %v", c.RatePerMinute))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}
	return errors.Join(errs...)
}
