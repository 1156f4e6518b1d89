package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnvVars() {
	prefix := "REPOLENS_"
	suffixes := []string{
		"LLM_PROVIDER",
		"LLM_API_KEY",
		"LLM_BASE_URL",
		"LLM_MODEL",
		"LLM_TIMEOUT_SECONDS",
		"MAX_PARALLEL_AGENTS",
		"MAX_AGENT_RETRIES",
		"MAX_INGEST_FILES",
	}
	for _, suffix := range suffixes {
		os.Unsetenv(prefix + suffix)
	}
}

func TestProfileDefaults(t *testing.T) {
	clearEnvVars()

	p := &Profile{}
	p.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"LLMProvider default", "openai", p.LLMProvider},
		{"LLMBaseURL default", "https://api.openai.com/v1", p.LLMBaseURL},
		{"LLMModel default", "gpt-4o-mini", p.LLMModel},
		{"LLMAPIKey default", "", p.LLMAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}

	if p.MaxParallelAgents != 4 {
		t.Errorf("MaxParallelAgents: expected 4, got %d", p.MaxParallelAgents)
	}
	if p.LLMTimeout != 60 {
		t.Errorf("LLMTimeout: expected 60, got %d", p.LLMTimeout)
	}
}

func TestProfileFromEnv(t *testing.T) {
	clearEnvVars()
	os.Setenv("REPOLENS_LLM_PROVIDER", "deepseek")
	os.Setenv("REPOLENS_LLM_API_KEY", "test-key")
	os.Setenv("REPOLENS_MAX_INGEST_FILES", "42")
	defer clearEnvVars()

	p := &Profile{}
	p.FromEnv()

	if p.LLMProvider != "deepseek" {
		t.Errorf("LLMProvider: expected deepseek, got %q", p.LLMProvider)
	}
	if p.LLMBaseURL != "https://api.deepseek.com" {
		t.Errorf("LLMBaseURL: expected deepseek default, got %q", p.LLMBaseURL)
	}
	if p.LLMModel != "deepseek-chat" {
		t.Errorf("LLMModel: expected deepseek-chat, got %q", p.LLMModel)
	}
	if p.MaxIngestFiles != 42 {
		t.Errorf("MaxIngestFiles: expected 42, got %d", p.MaxIngestFiles)
	}
}

func TestProfileUnknownProviderFallsBack(t *testing.T) {
	clearEnvVars()
	os.Setenv("REPOLENS_LLM_PROVIDER", "mystery")
	defer clearEnvVars()

	p := &Profile{}
	p.FromEnv()

	if p.LLMProvider != "openai" {
		t.Errorf("LLMProvider: expected fallback to openai, got %q", p.LLMProvider)
	}
}

func TestIsLLMEnabled(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*Profile)
		expected bool
	}{
		{"no key", func(p *Profile) {}, false},
		{"with key", func(p *Profile) { p.LLMAPIKey = "sk-test" }, true},
		{"ollama without key", func(p *Profile) { p.LLMProvider = "ollama" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{}
			tt.setup(p)
			if got := p.IsLLMEnabled(); got != tt.expected {
				t.Errorf("IsLLMEnabled(): expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestValidateFillsSQLiteDSN(t *testing.T) {
	p := &Profile{
		Mode:   "dev",
		Data:   t.TempDir(),
		Driver: "sqlite",
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	expected := filepath.Join(p.Data, "repolens_dev.db")
	if p.DSN != expected {
		t.Errorf("DSN: expected %q, got %q", expected, p.DSN)
	}
}

func TestValidateRejectsPostgresWithoutDSN(t *testing.T) {
	p := &Profile{
		Mode:   "dev",
		Data:   t.TempDir(),
		Driver: "postgres",
	}
	if err := p.Validate(); err == nil {
		t.Error("Validate(): expected error for postgres without DSN")
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	p := &Profile{
		Mode:   "dev",
		Data:   t.TempDir(),
		Driver: "oracle",
	}
	if err := p.Validate(); err == nil {
		t.Error("Validate(): expected error for unknown driver")
	}
}
