package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            string
	Environment     string
	SupabaseURL     string
	SupabaseDBURL   string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	CORSOrigins     string
	TablePrefix     string
	DevUserID       string // used instead of JWT auth when SupabaseURL is empty in dev
	LogDir          string

	// LLM Configuration
	AnthropicAPIKey  string
	OpenRouterAPIKey string
	DefaultModels    []string
	SynthesizerModel string // empty = first successful model by id
	SystemPrompt     string

	// Orchestration
	MaxToolIterations   int
	MaxToolConcurrency  int
	ProviderCallTimeout time.Duration
	ModelDeadline       time.Duration
	TurnDeadline        time.Duration
	ProviderMaxRetries  int
	HistoryLimit        int

	// Approvals
	ApprovalTTL           time.Duration
	ApprovalSweepInterval time.Duration

	// Google Drive/Calendar tools
	GoogleAccessToken string

	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	supabaseURL := getEnv("SUPABASE_URL", "")

	jwksURL := ""
	if supabaseURL != "" {
		jwksURL = supabaseURL + "/auth/v1/.well-known/jwks.json"
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		SupabaseURL:     supabaseURL,
		SupabaseDBURL:   getEnv("SUPABASE_DB_URL", ""),
		SupabaseJWKSURL: jwksURL,
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:     getTablePrefix(env),
		DevUserID:       getEnv("DEV_USER_ID", "00000000-0000-0000-0000-000000000001"),
		LogDir:          getEnv("LOG_DIR", ""),

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		DefaultModels:    splitList(getEnv("DEFAULT_MODELS", "claude-haiku-4-5-20251001")),
		SynthesizerModel: getEnv("SYNTHESIZER_MODEL", ""),
		SystemPrompt:     getEnv("SYSTEM_PROMPT", DefaultSystemPrompt),

		MaxToolIterations:   getEnvInt("MAX_TOOL_ITERATIONS", DefaultMaxToolIterations),
		MaxToolConcurrency:  getEnvInt("MAX_TOOL_CONCURRENCY", DefaultMaxToolConcurrency),
		ProviderCallTimeout: getEnvDuration("PROVIDER_CALL_TIMEOUT", 60*time.Second),
		ModelDeadline:       getEnvDuration("MODEL_DEADLINE", 120*time.Second),
		TurnDeadline:        getEnvDuration("TURN_DEADLINE", 180*time.Second),
		ProviderMaxRetries:  getEnvInt("PROVIDER_MAX_RETRIES", 3),
		HistoryLimit:        getEnvInt("HISTORY_LIMIT", DefaultHistoryLimit),

		ApprovalTTL:           getEnvDuration("APPROVAL_TTL", DefaultApprovalTTL),
		ApprovalSweepInterval: getEnvDuration("APPROVAL_SWEEP_INTERVAL", time.Minute),

		GoogleAccessToken: getEnv("GOOGLE_ACCESS_TOKEN", ""),

		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// DefaultSystemPrompt seeds every model conversation unless SYSTEM_PROMPT is set.
const DefaultSystemPrompt = "You are a helpful assistant with access to the user's calendar, Google Drive, and documents. " +
	"Use tools when they help answer the question. Changes to files are proposed for the user's approval; " +
	"tell the user when a change is waiting for approval."

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// getEnvDuration parses values like "90s" or "24h"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
