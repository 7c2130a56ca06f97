package config

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	t.Setenv("MAILMIND_ENV", "production")
	t.Setenv("USERNAME", "user@example.com")
	t.Setenv("PASSWORD", "secret")
	t.Setenv("IMAP_SERVER", "imap.example.com")
	t.Setenv("SMTP_SERVER", "smtp.example.com")
}

func TestNewConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IMAP_PORT", "143")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("SMTP_USE_SSL", "false")
	t.Setenv("IMAP_USE_PROXY", "true")
	t.Setenv("PROXY", "socks5://127.0.0.1:1080")
	t.Setenv("DONT_SET_READ", "false")
	t.Setenv("PORT", "9000")

	config, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() returned error: %v", err)
	}

	if config.Environment != "production" {
		t.Errorf("expected Environment 'production', got '%s'", config.Environment)
	}
	if config.Username != "user@example.com" {
		t.Errorf("expected Username 'user@example.com', got '%s'", config.Username)
	}
	if config.IMAPServer != "imap.example.com" {
		t.Errorf("expected IMAPServer 'imap.example.com', got '%s'", config.IMAPServer)
	}
	if config.IMAPPort != 143 {
		t.Errorf("expected IMAPPort 143, got %d", config.IMAPPort)
	}
	if config.SMTPPort != 587 {
		t.Errorf("expected SMTPPort 587, got %d", config.SMTPPort)
	}
	if config.SMTPUseSSL {
		t.Error("expected SMTPUseSSL false")
	}
	if !config.IMAPUseProxy {
		t.Error("expected IMAPUseProxy true")
	}
	if config.Proxy != "socks5://127.0.0.1:1080" {
		t.Errorf("expected Proxy 'socks5://127.0.0.1:1080', got '%s'", config.Proxy)
	}
	if config.DontSetRead {
		t.Error("expected DontSetRead false")
	}
	if config.Port != "9000" {
		t.Errorf("expected Port '9000', got '%s'", config.Port)
	}
}

func TestNewConfigWithDefaults(t *testing.T) {
	setRequiredEnv(t)

	config, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() returned error: %v", err)
	}

	if config.IMAPPort != 993 {
		t.Errorf("expected default IMAPPort 993, got %d", config.IMAPPort)
	}
	if config.SMTPPort != 465 {
		t.Errorf("expected default SMTPPort 465, got %d", config.SMTPPort)
	}
	if !config.SMTPUseSSL {
		t.Error("expected default SMTPUseSSL true")
	}
	if !config.DontSetRead {
		t.Error("expected default DontSetRead true")
	}
	if config.Port != "8000" {
		t.Errorf("expected default Port '8000', got '%s'", config.Port)
	}
	if config.AddressBookPath != "address_book.json" {
		t.Errorf("expected default AddressBookPath 'address_book.json', got '%s'", config.AddressBookPath)
	}
	if config.EmailsCachePath != ".emails_cache.json" {
		t.Errorf("expected default EmailsCachePath '.emails_cache.json', got '%s'", config.EmailsCachePath)
	}
	if config.AttachmentsDir != "./attachments" {
		t.Errorf("expected default AttachmentsDir './attachments', got '%s'", config.AttachmentsDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		shouldErr bool
		errMsg    string
	}{
		{
			name: "valid config",
			config: &Config{
				Username:   "user@example.com",
				Password:   "secret",
				IMAPServer: "imap.example.com",
				SMTPServer: "smtp.example.com",
			},
			shouldErr: false,
		},
		{
			name: "missing username",
			config: &Config{
				Password:   "secret",
				IMAPServer: "imap.example.com",
				SMTPServer: "smtp.example.com",
			},
			shouldErr: true,
			errMsg:    "USERNAME is required",
		},
		{
			name: "missing password",
			config: &Config{
				Username:   "user@example.com",
				IMAPServer: "imap.example.com",
				SMTPServer: "smtp.example.com",
			},
			shouldErr: true,
			errMsg:    "PASSWORD is required",
		},
		{
			name: "missing IMAP server",
			config: &Config{
				Username:   "user@example.com",
				Password:   "secret",
				SMTPServer: "smtp.example.com",
			},
			shouldErr: true,
			errMsg:    "IMAP_SERVER is required",
		},
		{
			name: "missing SMTP server",
			config: &Config{
				Username:   "user@example.com",
				Password:   "secret",
				IMAPServer: "imap.example.com",
			},
			shouldErr: true,
			errMsg:    "SMTP_SERVER is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.shouldErr && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.shouldErr && err != nil {
				t.Errorf("expected no error but got: %v", err)
			}
			if tt.shouldErr && err != nil && err.Error() != tt.errMsg {
				t.Errorf("expected error message '%s', got '%s'", tt.errMsg, err.Error())
			}
		})
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_KEY", "test-value")

	if got := getEnvOrDefault("TEST_KEY", "default"); got != "test-value" {
		t.Errorf("expected 'test-value', got '%s'", got)
	}
	if got := getEnvOrDefault("NONEXISTENT_KEY", "default"); got != "default" {
		t.Errorf("expected 'default', got '%s'", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("BOOL_KEY", "true")
	if !getEnvBool("BOOL_KEY", false) {
		t.Error("expected true for 'true'")
	}

	os.Unsetenv("BOOL_KEY")
	if !getEnvBool("BOOL_KEY", true) {
		t.Error("expected default true for unset key")
	}

	t.Setenv("BOOL_KEY", "garbage")
	if !getEnvBool("BOOL_KEY", true) {
		t.Error("expected default true for unparsable value")
	}
}

func TestGetEnvIntOrDefault(t *testing.T) {
	t.Setenv("INT_KEY", "42")
	if got := getEnvIntOrDefault("INT_KEY", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	t.Setenv("INT_KEY", "not-a-number")
	if got := getEnvIntOrDefault("INT_KEY", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
}
