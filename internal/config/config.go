// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultAgents is the agent set exposed when neither AGENTS nor AGENTS_FILE is set.
var DefaultAgents = []string{"greeting_agent", "calc_agent", "jarvis_agent"}

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	GRPCHealthPort string // empty disables the gRPC health server
	AllowedOrigins []string

	Orchestrator  OrchestratorConfig
	SessionServer SessionServerConfig
	Instructions  InstructionsConfig

	Agents     []string
	AgentsFile string

	ChatRatePerMinute int
	ChatStateIdleTTL  time.Duration
	ProfileTTL        time.Duration // 0 keeps stored profiles forever
	JanitorInterval   time.Duration
}

// OrchestratorConfig configures the chat webhook.
type OrchestratorConfig struct {
	URL     string
	Timeout time.Duration
}

// SessionServerConfig configures the agent-session history server.
type SessionServerConfig struct {
	URL     string
	Timeout time.Duration
}

// InstructionsConfig configures the instructions object store.
// Bucket selects Google Cloud Storage; otherwise LocalDir is used.
type InstructionsConfig struct {
	Bucket     string
	BaseFolder string
	LocalDir   string
	Timeout    time.Duration
}

// UsesGCS reports whether instructions live in a GCS bucket.
func (c InstructionsConfig) UsesGCS() bool {
	return c.Bucket != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/console.db"),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		Orchestrator: OrchestratorConfig{
			URL:     getEnv("ORCHESTRATOR_URL", "http://127.0.0.1:5678/webhook/orchestrator"),
			Timeout: getEnvDuration("ORCHESTRATOR_TIMEOUT", 90*time.Second),
		},
		SessionServer: SessionServerConfig{
			URL:     getEnv("SESSION_SERVER_URL", "http://127.0.0.1:8000"),
			Timeout: getEnvDuration("HISTORY_TIMEOUT", 30*time.Second),
		},
		Instructions: InstructionsConfig{
			Bucket:     getEnv("INSTRUCTIONS_BUCKET", ""),
			BaseFolder: getEnv("INSTRUCTIONS_BASE_FOLDER", "ADK_Agent_Bundle_1"),
			LocalDir:   getEnv("INSTRUCTIONS_DIR", "./data/instructions"),
			Timeout:    getEnvDuration("INSTRUCTIONS_TIMEOUT", 30*time.Second),
		},
		Agents:            getEnvList("AGENTS", DefaultAgents),
		AgentsFile:        getEnv("AGENTS_FILE", ""),
		ChatRatePerMinute: getEnvInt("CHAT_RATE_PER_MINUTE", 20),
		ChatStateIdleTTL:  getEnvDuration("CHAT_STATE_IDLE_TTL", 12*time.Hour),
		ProfileTTL:        getEnvDuration("PROFILE_TTL", 0),
		JanitorInterval:   getEnvDuration("JANITOR_INTERVAL", 5*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if err := validateURL("ORCHESTRATOR_URL", c.Orchestrator.URL); err != nil {
		return err
	}
	if err := validateURL("SESSION_SERVER_URL", c.SessionServer.URL); err != nil {
		return err
	}
	if c.Orchestrator.Timeout <= 0 {
		return fmt.Errorf("ORCHESTRATOR_TIMEOUT must be > 0")
	}
	if c.SessionServer.Timeout <= 0 {
		return fmt.Errorf("HISTORY_TIMEOUT must be > 0")
	}
	if c.Instructions.Timeout <= 0 {
		return fmt.Errorf("INSTRUCTIONS_TIMEOUT must be > 0")
	}
	if !c.Instructions.UsesGCS() && c.Instructions.LocalDir == "" {
		return fmt.Errorf("INSTRUCTIONS_DIR cannot be empty when INSTRUCTIONS_BUCKET is unset")
	}
	if c.AgentsFile == "" && len(c.Agents) == 0 {
		return fmt.Errorf("AGENTS cannot be empty")
	}
	if c.ChatRatePerMinute <= 0 {
		return fmt.Errorf("CHAT_RATE_PER_MINUTE must be > 0")
	}
	if c.ChatStateIdleTTL <= 0 {
		return fmt.Errorf("CHAT_STATE_IDLE_TTL must be > 0")
	}
	if c.ProfileTTL < 0 {
		return fmt.Errorf("PROFILE_TTL cannot be negative")
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
