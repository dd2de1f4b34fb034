package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, an optional file, and env
// vars. Order of precedence (low -> high):
//  1. defaults (Default())
//  2. file (YAML) if REVERIE_CONFIG is set
//  3. env (prefix REVERIE_, double underscore for nesting, e.g.
//     REVERIE_SCORING__BATCH_SIZE -> scoring.batch_size)
func Load() (*Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path := os.Getenv("REVERIE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// "__" separates key segments so single underscores within a segment
	// survive: REVERIE_SCORING__BATCH_SIZE -> scoring.batch_size.
	envProvider := env.Provider("REVERIE_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "REVERIE_"))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	// The provider API keys honor the standard env vars when the config
	// leaves them blank.
	if cfg.LLM.AnthropicKey == "" {
		cfg.LLM.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.LLM.OpenRouterKey == "" {
		cfg.LLM.OpenRouterKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if cfg.LLM.Provider == "openrouter" && cfg.LLM.OpenRouterKey == "" && cfg.LLM.AnthropicKey != "" {
		cfg.LLM.Provider = "anthropic"
	}

	if cfg.Server.Bind == "" || cfg.Server.Port == 0 {
		return nil, errors.New("server bind and port must not be empty")
	}
	if cfg.Scoring.MaxConcurrency < 1 {
		return nil, errors.New("scoring max_concurrency must be at least 1")
	}
	if cfg.Outbox.MaxAttempts < 1 {
		return nil, errors.New("outbox max_attempts must be at least 1")
	}
	return &cfg, nil
}
