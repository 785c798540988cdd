package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	IMAPHost     string
	IMAPPort     string
	IMAPUsername string
	IMAPPassword string
	IMAPMailbox  string
	IMAPTLS      bool

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPStartTLS bool
	FromAddress  string

	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBName     string
	DBSSLMode  string

	LLMAPIBase string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	PollInterval       time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	MaxConnectAttempts int

	WebhookPort     string
	RateLimit       int
	RateLimitWindow time.Duration
}

func NewConfig() (*Config, error) {
	env := os.Getenv("ZENMAIL_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment: env,

		IMAPHost:     os.Getenv("ZENMAIL_IMAP_HOST"),
		IMAPPort:     getEnvOrDefault("ZENMAIL_IMAP_PORT", "993"),
		IMAPUsername: os.Getenv("ZENMAIL_IMAP_USER"),
		IMAPPassword: os.Getenv("ZENMAIL_IMAP_PASSWORD"),
		IMAPMailbox:  getEnvOrDefault("ZENMAIL_IMAP_MAILBOX", "INBOX"),
		IMAPTLS:      getEnvOrDefault("ZENMAIL_IMAP_TLS", "true") == "true",

		SMTPHost:     os.Getenv("ZENMAIL_SMTP_HOST"),
		SMTPPort:     getEnvOrDefault("ZENMAIL_SMTP_PORT", "587"),
		SMTPUsername: os.Getenv("ZENMAIL_SMTP_USER"),
		SMTPPassword: os.Getenv("ZENMAIL_SMTP_PASSWORD"),
		SMTPStartTLS: getEnvOrDefault("ZENMAIL_SMTP_STARTTLS", "true") == "true",
		FromAddress:  os.Getenv("ZENMAIL_FROM_ADDRESS"),

		DBHost:     getEnvOrDefault("ZENMAIL_DB_HOST", "localhost"),
		DBPort:     getEnvOrDefault("ZENMAIL_DB_PORT", "5432"),
		DBUsername: getEnvOrDefault("ZENMAIL_DB_USER", "zenmail"),
		DBPassword: os.Getenv("ZENMAIL_DB_PASSWORD"),
		DBName:     getEnvOrDefault("ZENMAIL_DB_NAME", "zenmail"),
		DBSSLMode:  getEnvOrDefault("ZENMAIL_DB_SSLMODE", "disable"),

		LLMAPIBase: getEnvOrDefault("ZENMAIL_LLM_API_BASE", "https://api.openai.com/v1"),
		LLMAPIKey:  os.Getenv("ZENMAIL_LLM_API_KEY"),
		LLMModel:   getEnvOrDefault("ZENMAIL_LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout: getDurationOrDefault("ZENMAIL_LLM_TIMEOUT", 2*time.Minute),

		PollInterval:       getDurationOrDefault("ZENMAIL_POLL_INTERVAL", time.Minute),
		ReconnectBaseDelay: getDurationOrDefault("ZENMAIL_RECONNECT_BASE_DELAY", 2*time.Second),
		ReconnectMaxDelay:  getDurationOrDefault("ZENMAIL_RECONNECT_MAX_DELAY", 5*time.Minute),
		MaxConnectAttempts: getIntOrDefault("ZENMAIL_MAX_CONNECT_ATTEMPTS", 5),

		WebhookPort:     getEnvOrDefault("ZENMAIL_WEBHOOK_PORT", ""),
		RateLimit:       getIntOrDefault("ZENMAIL_RATE_LIMIT", 10),
		RateLimitWindow: getDurationOrDefault("ZENMAIL_RATE_LIMIT_WINDOW", time.Minute),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.IMAPHost == "" {
		return fmt.Errorf("ZENMAIL_IMAP_HOST is required")
	}

	if c.IMAPUsername == "" || c.IMAPPassword == "" {
		return fmt.Errorf("ZENMAIL_IMAP_USER and ZENMAIL_IMAP_PASSWORD are required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("ZENMAIL_DB_PASSWORD is required")
	}

	if c.FromAddress == "" {
		return fmt.Errorf("ZENMAIL_FROM_ADDRESS is required")
	}

	if c.MaxConnectAttempts < 1 {
		return fmt.Errorf("ZENMAIL_MAX_CONNECT_ATTEMPTS must be at least 1")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func (c *Config) IMAPAddress() string {
	return c.IMAPHost + ":" + c.IMAPPort
}

func (c *Config) SMTPAddress() string {
	return c.SMTPHost + ":" + c.SMTPPort
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		fmt.Printf("Warning: invalid duration for %s: %q, using default\n", key, value)
		return defaultValue
	}
	return d
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Printf("Warning: invalid integer for %s: %q, using default\n", key, value)
		return defaultValue
	}
	return n
}
