package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"engine": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "mock"},
	"coach":  {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Persona
	if cfg.Persona.Name == "" {
		errs = append(errs, errors.New("persona.name is required"))
	}
	if cfg.Persona.SystemPrompt == "" && cfg.Persona.SystemPromptFile == "" {
		errs = append(errs, errors.New("persona requires system_prompt or system_prompt_file"))
	}
	if cfg.Persona.SystemPrompt != "" && cfg.Persona.SystemPromptFile != "" {
		slog.Warn("persona has both system_prompt and system_prompt_file; the inline prompt wins")
	}

	// Engine
	if cfg.Engine.Provider.Name == "" {
		errs = append(errs, errors.New("engine.provider.name is required"))
	}
	validateProviderName("engine", cfg.Engine.Provider.Name)
	if cfg.Engine.Fallback != nil {
		if cfg.Engine.Fallback.Name == "" {
			errs = append(errs, errors.New("engine.fallback.name is required when engine.fallback is set"))
		}
		validateProviderName("engine", cfg.Engine.Fallback.Name)
	}
	if cfg.Engine.TurnTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("engine.turn_timeout_seconds %d must not be negative", cfg.Engine.TurnTimeoutSeconds))
	}
	if cfg.Engine.Temperature < 0 || cfg.Engine.Temperature > 2 {
		errs = append(errs, fmt.Errorf("engine.temperature %.2f is out of range [0, 2]", cfg.Engine.Temperature))
	}
	if cfg.Engine.MaxReplyTokens < 0 {
		errs = append(errs, fmt.Errorf("engine.max_reply_tokens %d must not be negative", cfg.Engine.MaxReplyTokens))
	}

	// Coach
	validateProviderName("coach", cfg.Coach.Provider.Name)
	if cfg.Coach.Provider.Name == "" {
		slog.Warn("coach.provider is not configured; analysis endpoints will be disabled")
	}

	// Relay
	if tn := cfg.Relay.TextNormalization; tn != "" && tn != "on" && tn != "off" {
		errs = append(errs, fmt.Errorf("relay.text_normalization %q is invalid; valid values: on, off", tn))
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: file, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StoragePostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
