package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns a configuration that passes Validate with the ollama
// provider, which needs no API key in the environment.
func validConfig() *Config {
	return &Config{
		Provider:         ProviderOllama,
		ModelName:        "llama3.3",
		Temperature:      0.7,
		MaxTokens:        2048,
		OllamaHost:       "http://localhost:11434",
		EmbedderModel:    "nomic-embed-text",
		MinRelevance:     0.5,
		ReuseThreshold:   0.7,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "kardex",
		PostgresPassword: "secret",
		PostgresDBName:   "kardex",
		PostgresSSLMode:  "disable",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"unknown provider", func(c *Config) { c.Provider = "claude" }, ErrInvalidProvider},
		{"bad ollama host", func(c *Config) { c.OllamaHost = "not a url" }, ErrInvalidOllamaHost},
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"min relevance above one", func(c *Config) { c.MinRelevance = 1.5 }, ErrInvalidThreshold},
		{"negative reuse threshold", func(c *Config) { c.ReuseThreshold = -0.1 }, ErrInvalidThreshold},
		{"reuse below min relevance", func(c *Config) {
			c.MinRelevance = 0.8
			c.ReuseThreshold = 0.6
		}, ErrInvalidThreshold},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"bad ssl mode", func(c *Config) { c.PostgresSSLMode = "maybe" }, ErrInvalidPostgresSSLMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		want     string
	}{
		{"gemini unqualified", ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"ollama unqualified", ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{"already qualified", ProviderGemini, "custom/model", "custom/model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Provider: tt.provider, ModelName: tt.model}
			if got := c.FullModelName(); got != tt.want {
				t.Errorf("FullModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"short", "abc"},
		{"long", "super-secret-password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			masked := maskSecret(tt.input)
			if tt.input == "" {
				if masked != "" {
					t.Errorf("maskSecret(%q) = %q, want empty", tt.input, masked)
				}
				return
			}
			if strings.Contains(masked, tt.input) {
				t.Errorf("maskSecret(%q) = %q leaks the secret", tt.input, masked)
			}
		})
	}
}

func TestConfigStringMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "hunter2hunter2"

	s := cfg.String()
	if strings.Contains(s, "hunter2hunter2") {
		t.Errorf("String() leaks the password: %s", s)
	}
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "p'ss word"

	dsn := cfg.PostgresConnectionString()
	if !strings.Contains(dsn, `password='p\'ss word'`) {
		t.Errorf("special characters not quoted: %s", dsn)
	}
	if !strings.Contains(dsn, "host=localhost") || !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("dsn missing fields: %s", dsn)
	}
}

func TestPostgresURL(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "p@ss/word"

	u := cfg.PostgresURL()
	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("url scheme wrong: %s", u)
	}
	// Special characters must be percent-encoded, never raw.
	if strings.Contains(u, "p@ss/word") {
		t.Errorf("password not encoded: %s", u)
	}
}

func TestParseDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://svc:pw@db.internal:6432/prod?sslmode=require")

	cfg := validConfig()
	if err := cfg.parseDatabaseURL(); err != nil {
		t.Fatalf("parseDatabaseURL: %v", err)
	}

	if cfg.PostgresHost != "db.internal" || cfg.PostgresPort != 6432 ||
		cfg.PostgresUser != "svc" || cfg.PostgresPassword != "pw" ||
		cfg.PostgresDBName != "prod" || cfg.PostgresSSLMode != "require" {
		t.Errorf("parsed config = %+v", cfg)
	}
}

func TestParseDatabaseURLRejectsOtherSchemes(t *testing.T) {
	t.Setenv("DATABASE_URL", "mysql://u:p@h:3306/db")

	cfg := validConfig()
	if err := cfg.parseDatabaseURL(); err == nil {
		t.Error("mysql scheme should be rejected")
	}
}
