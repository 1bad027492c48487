package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pitchline-ai/pitchline/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  public_url: "https://broker.example.com"
  log_level: info
persona:
  name: Jordan
  role: VP of Procurement
  label: Jordan Vale
  system_prompt: You are Jordan, a busy procurement executive.
engine:
  provider:
    name: openai
    api_key: sk-test
    model: gpt-4o
  turn_timeout_seconds: 20
  temperature: 0.8
  max_reply_tokens: 150
coach:
  provider:
    name: openai
    api_key: sk-test
    model: gpt-4o
relay:
  tts_provider: ElevenLabs
  voice: FGY2WhTYpPnrIDTdsKH5
  language: en-US
  text_normalization: "on"
storage:
  backend: file
  dir: ./transcripts
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Persona.Name != "Jordan" || cfg.Persona.Label != "Jordan Vale" {
		t.Errorf("persona = %+v", cfg.Persona)
	}
	if cfg.Engine.Provider.Name != "openai" || cfg.Engine.Provider.Model != "gpt-4o" {
		t.Errorf("engine provider = %+v", cfg.Engine.Provider)
	}
	if cfg.Engine.TurnTimeoutSeconds != 20 {
		t.Errorf("turn_timeout_seconds = %d", cfg.Engine.TurnTimeoutSeconds)
	}
	if cfg.Relay.Voice != "FGY2WhTYpPnrIDTdsKH5" {
		t.Errorf("relay voice = %q", cfg.Relay.Voice)
	}
	if cfg.Storage.Backend != config.StorageFile {
		t.Errorf("storage backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	yaml := validYAML + "\nbogus_section:\n  x: 1\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("expected error for unknown top-level field")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "bananas"
	cfg.Engine.Temperature = 3
	cfg.Storage.Backend = "tape"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"server.log_level",
		"persona.name is required",
		"system_prompt",
		"engine.provider.name is required",
		"engine.temperature",
		"storage.backend",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	cfg.Storage.Backend = config.StoragePostgres
	cfg.Storage.PostgresDSN = ""

	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("error = %v, want postgres_dsn complaint", err)
	}
}

func TestValidate_FallbackNeedsName(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	cfg.Engine.Fallback = &config.ProviderEntry{APIKey: "sk-other"}

	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "engine.fallback.name") {
		t.Errorf("error = %v, want fallback name complaint", err)
	}
}

func TestValidate_TextNormalization(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	cfg.Relay.TextNormalization = "sometimes"

	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "text_normalization") {
		t.Errorf("error = %v, want text_normalization complaint", err)
	}
}

func TestResolveSystemPrompt_Inline(t *testing.T) {
	t.Parallel()

	p := config.PersonaConfig{SystemPrompt: "inline prompt"}
	got, err := p.ResolveSystemPrompt()
	if err != nil {
		t.Fatalf("ResolveSystemPrompt: %v", err)
	}
	if got != "inline prompt" {
		t.Errorf("prompt = %q", got)
	}
}

func TestResolveSystemPrompt_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "persona.txt")
	if err := os.WriteFile(path, []byte("  You are Jordan.\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := config.PersonaConfig{SystemPromptFile: path}
	got, err := p.ResolveSystemPrompt()
	if err != nil {
		t.Fatalf("ResolveSystemPrompt: %v", err)
	}
	if got != "You are Jordan." {
		t.Errorf("prompt = %q", got)
	}
}

func TestResolveSystemPrompt_Missing(t *testing.T) {
	t.Parallel()

	if _, err := (config.PersonaConfig{}).ResolveSystemPrompt(); err == nil {
		t.Error("expected error when no prompt is configured")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/pitchline.yaml"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want ErrNotExist", err)
	}
}
