// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	BackendURL      string
	Delivery        DeliveryConfig
	Naming          NamingConfig
	Classifier      ClassifierConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
	Tools           ToolsConfig
}

// ToolsConfig holds credentials for the external lookup integrations.
type ToolsConfig struct {
	FlightAPIKey string
}

// DeliveryConfig controls the message-delivery protocol.
type DeliveryConfig struct {
	AttemptTimeout time.Duration // per-attempt deadline
	RetryDelay     time.Duration // fixed wait between attempts
	MaxAttempts    int           // total attempts, including the first
}

// SendBudget is the total wall-clock ceiling for one logical send:
// every attempt running to its deadline plus every inter-attempt delay.
func (d DeliveryConfig) SendBudget() time.Duration {
	n := time.Duration(d.MaxAttempts)
	return n*d.AttemptTimeout + (n-1)*d.RetryDelay
}

// NamingConfig bounds the best-effort backend naming call.
type NamingConfig struct {
	Timeout time.Duration
}

// ClassifierConfig controls the model-type diagnostic.
type ClassifierConfig struct {
	Timeout     time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
}

// RateLimitConfig controls per-identity request throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// fileConfig is the optional YAML config file layout. Environment
// variables override anything set here.
type fileConfig struct {
	Port        string `yaml:"port"`
	FrontendURL string `yaml:"frontend_url"`
	DBPath      string `yaml:"db_path"`
	BackendURL  string `yaml:"backend_url"`
	Delivery    struct {
		AttemptTimeout string `yaml:"attempt_timeout"`
		RetryDelay     string `yaml:"retry_delay"`
		MaxAttempts    int    `yaml:"max_attempts"`
	} `yaml:"delivery"`
	ConversationLog struct {
		Enabled    *bool  `yaml:"enabled"`
		Dir        string `yaml:"dir"`
		GlobalPath string `yaml:"global_path"`
	} `yaml:"conversation_log"`
}

// Load reads configuration from the optional YAML file named by
// INSTANTAGENT_CONFIG, then applies environment variable overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Port:       "8080",
		DBPath:     "./data/instantagent.db",
		BackendURL: "http://127.0.0.1:8000",
		Delivery: DeliveryConfig{
			AttemptTimeout: 30 * time.Second,
			RetryDelay:     2 * time.Second,
			MaxAttempts:    3,
		},
		Naming: NamingConfig{
			Timeout: 15 * time.Second,
		},
		Classifier: ClassifierConfig{
			Timeout:     10 * time.Second,
			RetryDelay:  2 * time.Second,
			MaxAttempts: 3,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 10,
			WindowDuration:    time.Minute,
		},
		ConversationLog: ConversationLogConfig{
			Enabled:    true,
			Dir:        "./data/logs/conversations",
			GlobalPath: "./data/logs/conversations/all.ndjson",
			QueueSize:  1000,
		},
	}

	if path := os.Getenv("INSTANTAGENT_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.FrontendURL != "" {
		c.FrontendURL = fc.FrontendURL
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.BackendURL != "" {
		c.BackendURL = fc.BackendURL
	}
	if fc.Delivery.AttemptTimeout != "" {
		d, err := time.ParseDuration(fc.Delivery.AttemptTimeout)
		if err != nil {
			return fmt.Errorf("parse delivery.attempt_timeout: %w", err)
		}
		c.Delivery.AttemptTimeout = d
	}
	if fc.Delivery.RetryDelay != "" {
		d, err := time.ParseDuration(fc.Delivery.RetryDelay)
		if err != nil {
			return fmt.Errorf("parse delivery.retry_delay: %w", err)
		}
		c.Delivery.RetryDelay = d
	}
	if fc.Delivery.MaxAttempts > 0 {
		c.Delivery.MaxAttempts = fc.Delivery.MaxAttempts
	}
	if fc.ConversationLog.Enabled != nil {
		c.ConversationLog.Enabled = *fc.ConversationLog.Enabled
	}
	if fc.ConversationLog.Dir != "" {
		c.ConversationLog.Dir = fc.ConversationLog.Dir
	}
	if fc.ConversationLog.GlobalPath != "" {
		c.ConversationLog.GlobalPath = fc.ConversationLog.GlobalPath
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.BackendURL = getEnv("BACKEND_URL", c.BackendURL)
	c.Delivery.AttemptTimeout = getEnvDuration("DELIVERY_ATTEMPT_TIMEOUT", c.Delivery.AttemptTimeout)
	c.Delivery.RetryDelay = getEnvDuration("DELIVERY_RETRY_DELAY", c.Delivery.RetryDelay)
	c.Delivery.MaxAttempts = getEnvInt("DELIVERY_MAX_ATTEMPTS", c.Delivery.MaxAttempts)
	c.Naming.Timeout = getEnvDuration("NAMING_TIMEOUT", c.Naming.Timeout)
	c.Classifier.Timeout = getEnvDuration("CLASSIFIER_TIMEOUT", c.Classifier.Timeout)
	c.Classifier.RetryDelay = getEnvDuration("CLASSIFIER_RETRY_DELAY", c.Classifier.RetryDelay)
	c.Classifier.MaxAttempts = getEnvInt("CLASSIFIER_MAX_ATTEMPTS", c.Classifier.MaxAttempts)
	c.RateLimit.RequestsPerWindow = getEnvInt("RATE_LIMIT_REQUESTS", c.RateLimit.RequestsPerWindow)
	c.RateLimit.WindowDuration = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.WindowDuration)
	c.ConversationLog.Enabled = getEnvBool("CONVERSATION_LOG_ENABLED", c.ConversationLog.Enabled)
	c.ConversationLog.Dir = getEnv("CONVERSATION_LOG_DIR", c.ConversationLog.Dir)
	c.ConversationLog.GlobalEnabled = getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", c.ConversationLog.GlobalEnabled)
	c.ConversationLog.GlobalPath = getEnv("CONVERSATION_LOG_GLOBAL_PATH", c.ConversationLog.GlobalPath)
	c.ConversationLog.QueueSize = getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", c.ConversationLog.QueueSize)
	c.Tools.FlightAPIKey = getEnv("FLIGHT_API_KEY", c.Tools.FlightAPIKey)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if c.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("DELIVERY_MAX_ATTEMPTS must be > 0")
	}
	if c.Delivery.AttemptTimeout <= 0 {
		return fmt.Errorf("DELIVERY_ATTEMPT_TIMEOUT must be > 0")
	}
	if c.Classifier.MaxAttempts <= 0 {
		return fmt.Errorf("CLASSIFIER_MAX_ATTEMPTS must be > 0")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// SendBudget is the total wall-clock ceiling for one logical send.
func (c *Config) SendBudget() time.Duration {
	return c.Delivery.SendBudget()
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
