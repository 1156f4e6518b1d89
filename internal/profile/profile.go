// Package profile holds the runtime configuration of the repolens server.
package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol). All providers
	// (openai, deepseek, siliconflow, openrouter, ollama) use the same config.
	LLMProvider string // provider identifier
	LLMAPIKey   string // API key; analysis degrades to heuristics-only without one
	LLMBaseURL  string // base URL (optional, has default per provider)
	LLMModel    string // model name: gpt-4o-mini, deepseek-chat, ...
	LLMTimeout  int    // LLM request timeout in seconds (default: 60)

	// Analysis tuning
	MaxParallelAgents int // concurrently running agents per analysis (default: 4)
	MaxAgentRetries   int // retries for recoverable agent failures (default: 2)
	MaxIngestFiles    int // file cap per ingested repository (default: 500)

	// Server configuration
	Mode    string // dev or prod
	Addr    string
	Port    int
	Data    string // data directory, sqlite databases live here
	Driver  string // sqlite or postgres
	DSN     string
	Version string
}

// Provider default configurations, used when LLM_BASE_URL or LLM_MODEL is not
// explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled returns true if the LLM gateway can be constructed. Without it
// the pattern agent emits heuristic confidences and the advisor keeps catalog
// phrasing; nothing else changes.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("REPOLENS_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("REPOLENS_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("REPOLENS_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("REPOLENS_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("REPOLENS_LLM_TIMEOUT_SECONDS", 60)

	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
		slog.Warn("unknown LLM provider, using default: openai", "provider", p.LLMProvider)
		p.LLMProvider = "openai"
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	p.MaxParallelAgents = getEnvOrDefaultInt("REPOLENS_MAX_PARALLEL_AGENTS", 4)
	p.MaxAgentRetries = getEnvOrDefaultInt("REPOLENS_MAX_AGENT_RETRIES", 2)
	p.MaxIngestFiles = getEnvOrDefaultInt("REPOLENS_MAX_INGEST_FILES", 500)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and fills driver-derived defaults.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/repolens"
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0o770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "", "sqlite":
		p.Driver = "sqlite"
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("repolens_%s.db", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("postgres driver requires a DSN")
		}
	default:
		return errors.Errorf("unknown database driver %q", p.Driver)
	}

	if p.MaxParallelAgents <= 0 {
		p.MaxParallelAgents = 4
	}
	if p.MaxAgentRetries < 0 {
		p.MaxAgentRetries = 0
	}
	if p.MaxIngestFiles <= 0 {
		p.MaxIngestFiles = 500
	}

	return nil
}
