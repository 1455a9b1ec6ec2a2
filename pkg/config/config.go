package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config is resolved once at startup and passed by value or pointer to the
// components that need it. Nothing mutates it after Load returns.
type Config struct {
	AppEnv          string
	Port            string
	LogMode         string
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	Database Database
	LLM      LLM
	Cache    Cache
}

type Database struct {
	Driver string
	DSN    string
}

// LLM holds the generation provider settings. APIKey and Model refer to the
// selected Provider.
type LLM struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// HasCredential reports whether the selected provider can be called. The
// local provider never needs one.
func (l LLM) HasCredential() bool {
	if l.Provider == ProviderLocal {
		return true
	}
	return strings.TrimSpace(l.APIKey) != ""
}

type Cache struct {
	TTL      time.Duration
	MaxItems int
}

// loadDotEnv loads .env outside production. A missing file is fine: the
// environment may already carry everything.
func loadDotEnv(appEnv string) {
	if appEnv == "production" {
		return
	}
	_ = godotenv.Load()
}

// Load reads configuration from the process environment, optionally seeded
// from a .env file.
func Load() (*Config, error) {
	loadDotEnv(os.Getenv("APP_ENV"))
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, which keeps tests away from
// the real environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		AppEnv:          orDefault(getenv("APP_ENV"), "development"),
		Port:            orDefault(getenv("PORT"), "8000"),
		LogMode:         getenv("LOG_MODE"),
		CORSOrigins:     splitList(orDefault(getenv("CORS_ORIGINS"), "http://localhost:5173,http://localhost:3000")),
		ShutdownTimeout: time.Duration(atoiOr(getenv("SHUTDOWN_TIMEOUT_SECONDS"), 10)) * time.Second,
		Database: Database{
			Driver: strings.ToLower(orDefault(getenv("DB_DRIVER"), DriverSQLite)),
			DSN:    orDefault(getenv("DB_DSN"), "chat.db"),
		},
		Cache: Cache{
			TTL:      time.Duration(atoiOr(getenv("CONVERSATION_CACHE_TTL_SECONDS"), 60)) * time.Second,
			MaxItems: atoiOr(getenv("CONVERSATION_CACHE_MAX_ITEMS"), 500),
		},
	}
	if cfg.LogMode == "" {
		cfg.LogMode = "development"
		if cfg.AppEnv == "production" {
			cfg.LogMode = "production"
		}
	}

	if !slices.Contains([]string{"development", "staging", "production"}, cfg.AppEnv) {
		return nil, fmt.Errorf("APP_ENV must be one of development, staging, production; got %q", cfg.AppEnv)
	}
	if !slices.Contains([]string{DriverSQLite, DriverMySQL}, cfg.Database.Driver) {
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or mysql; got %q", cfg.Database.Driver)
	}

	provider := strings.ToLower(orDefault(getenv("LLM_PROVIDER"), ProviderGemini))
	switch provider {
	case ProviderGemini:
		cfg.LLM = LLM{
			Provider: provider,
			APIKey:   getenv("GEMINI_API_KEY"),
			Model:    orDefault(getenv("GEMINI_MODEL"), "gemini-2.0-flash"),
			BaseURL:  orDefault(getenv("GEMINI_BASE_URL"), "https://generativelanguage.googleapis.com/v1beta"),
		}
	case ProviderOpenAI:
		cfg.LLM = LLM{
			Provider: provider,
			APIKey:   getenv("OPENAI_API_KEY"),
			Model:    orDefault(getenv("OPENAI_MODEL"), "gpt-4o-mini"),
			BaseURL:  getenv("OPENAI_BASE_URL"),
		}
	case ProviderLocal:
		cfg.LLM = LLM{Provider: provider, Model: "local-echo"}
	default:
		return nil, fmt.Errorf("LLM_PROVIDER must be gemini, openai or local; got %q", provider)
	}

	return cfg, nil
}

// Summary returns loggable key/value pairs. The API key is reported only as
// present or absent.
func (c *Config) Summary() []any {
	return []any{
		"appEnv", c.AppEnv,
		"port", c.Port,
		"dbDriver", c.Database.Driver,
		"llmProvider", c.LLM.Provider,
		"llmModel", c.LLM.Model,
		"llmKeyPresent", c.LLM.APIKey != "",
		"cacheTTL", c.Cache.TTL,
		"cacheMaxItems", c.Cache.MaxItems,
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
