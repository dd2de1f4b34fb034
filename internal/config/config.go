package config

import (
	"fmt"
	"time"
)

// Config holds all reverie configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	LLM      LLMConfig      `koanf:"llm"`
	Scoring  ScoringConfig  `koanf:"scoring"`
	Outbox   OutboxConfig   `koanf:"outbox"`
}

type ServerConfig struct {
	Bind string `koanf:"bind"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`

	// GraphPath is the secondary graph database. Defaults to graph.db
	// next to the primary database.
	GraphPath string `koanf:"graph_path"`
}

type LLMConfig struct {
	Provider      string `koanf:"provider"` // "anthropic", "openrouter"
	Model         string `koanf:"model"`
	AnthropicKey  string `koanf:"anthropic_key"`
	OpenRouterKey string `koanf:"openrouter_key"`
}

// ScoringConfig drives the quality-scoring pipeline.
type ScoringConfig struct {
	BatchSize          int  `koanf:"batch_size"`
	ProcessIntervalSec int  `koanf:"process_interval_sec"`
	WarmupSec          int  `koanf:"warmup_sec"`
	CooldownSec        int  `koanf:"cooldown_sec"`
	MaxConcurrency     int  `koanf:"max_concurrency"`
	FeedbackAdjustment bool `koanf:"feedback_adjustment"`

	// EvaluatorVersion busts the score cache when the judge prompt or
	// model changes.
	EvaluatorVersion string `koanf:"evaluator_version"`

	BackoffBaseMs int `koanf:"backoff_base_ms"`
	BackoffMaxMs  int `koanf:"backoff_max_ms"`

	// FeedbackScores maps feedback types to H(t) overrides.
	FeedbackScores map[string]float64 `koanf:"feedback_scores"`
}

// OutboxConfig drives the outbox dispatcher.
type OutboxConfig struct {
	BatchSize       int `koanf:"batch_size"`
	PollIntervalSec int `koanf:"poll_interval_sec"`
	MaxAttempts     int `koanf:"max_attempts"`
	BackoffBaseMs   int `koanf:"backoff_base_ms"`
	BackoffMaxMs    int `koanf:"backoff_max_ms"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37710,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider: "openrouter",
			Model:    "mistralai/mistral-small-3.2-24b-instruct",
		},
		Scoring: ScoringConfig{
			BatchSize:          20,
			ProcessIntervalSec: 1800,
			WarmupSec:          45,
			CooldownSec:        60,
			MaxConcurrency:     5,
			FeedbackAdjustment: true,
			EvaluatorVersion:   "v1",
			BackoffBaseMs:      800,
			BackoffMaxMs:       8000,
			FeedbackScores: map[string]float64{
				"great_response":    9.0,
				"that_worked":       10.0,
				"like":              8.0,
				"copied":            7.0,
				"dislike":           2.0,
				"not_helpful":       2.0,
				"implicit_copy":     7.0,
				"implicit_continue": 6.5,
				"implicit_followup": 6.0,
			},
		},
		Outbox: OutboxConfig{
			BatchSize:       50,
			PollIntervalSec: 5,
			MaxAttempts:     10,
			BackoffBaseMs:   1000,
			BackoffMaxMs:    300000,
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// ProcessInterval returns the scoring loop interval as a duration.
func (c *ScoringConfig) ProcessInterval() time.Duration {
	return time.Duration(c.ProcessIntervalSec) * time.Second
}

// Warmup returns the scoring loop warm-up delay.
func (c *ScoringConfig) Warmup() time.Duration {
	return time.Duration(c.WarmupSec) * time.Second
}

// Cooldown returns the sleep applied after a loop-body error.
func (c *ScoringConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSec) * time.Second
}

// BackoffBase returns the initial judge retry delay.
func (c *ScoringConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BackoffMax returns the judge retry delay cap.
func (c *ScoringConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// PollInterval returns the outbox poll cadence as a duration.
func (c *OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}
