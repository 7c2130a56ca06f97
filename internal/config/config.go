package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all process configuration, read once at startup.
type Config struct {
	Environment string

	Username string
	Password string

	IMAPServer   string
	IMAPPort     int
	IMAPUseProxy bool

	SMTPServer   string
	SMTPPort     int
	SMTPUseSSL   bool
	SMTPUseProxy bool

	Proxy string

	// DontSetRead fetches messages without marking them seen.
	DontSetRead bool

	AddressBookPath string
	EmailsCachePath string
	AttachmentsDir  string

	Port string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("MAILMIND_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:     env,
		Username:        os.Getenv("USERNAME"),
		Password:        os.Getenv("PASSWORD"),
		IMAPServer:      os.Getenv("IMAP_SERVER"),
		IMAPPort:        getEnvIntOrDefault("IMAP_PORT", 993),
		IMAPUseProxy:    getEnvBool("IMAP_USE_PROXY", false),
		SMTPServer:      os.Getenv("SMTP_SERVER"),
		SMTPPort:        getEnvIntOrDefault("SMTP_PORT", 465),
		SMTPUseSSL:      getEnvBool("SMTP_USE_SSL", true),
		SMTPUseProxy:    getEnvBool("SMTP_USE_PROXY", false),
		Proxy:           os.Getenv("PROXY"),
		DontSetRead:     getEnvBool("DONT_SET_READ", true),
		AddressBookPath: getEnvOrDefault("ADDRESS_BOOK_PATH", "address_book.json"),
		EmailsCachePath: getEnvOrDefault("EMAILS_CACHE_PATH", ".emails_cache.json"),
		AttachmentsDir:  getEnvOrDefault("ATTACHMENTS_DIR", "./attachments"),
		Port:            getEnvOrDefault("PORT", "8000"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("USERNAME is required")
	}

	if c.Password == "" {
		return fmt.Errorf("PASSWORD is required")
	}

	if c.IMAPServer == "" {
		return fmt.Errorf("IMAP_SERVER is required")
	}

	if c.SMTPServer == "" {
		return fmt.Errorf("SMTP_SERVER is required")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
