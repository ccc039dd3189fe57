package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v2"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Model    ModelConfig    `yaml:"model"`
	Sampling SamplingConfig `yaml:"sampling"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Guessing GuessingConfig `yaml:"guessing"`
	Mcp      McpConfig      `yaml:"mcp"`
	Source   SourceConfig   `yaml:"source"`
}

type AppConfig struct {
	Port      int    `yaml:"port"`
	WorkDir   string `yaml:"workdir"`
	ModelName string `yaml:"model_name"`
	Override  bool   `yaml:"override"` // Retrain even if a saved model exists
}

// ModelConfig describes tokenization and training of the n-gram model
type ModelConfig struct {
	Splitter   string `yaml:"splitter"`
	Start4Word int    `yaml:"start4word"`
	Skip4Word  int    `yaml:"skip4word"`
	MaxGram    int    `yaml:"max_gram"`
	Threshold  int64  `yaml:"threshold"`
	StartChr   string `yaml:"start_chr"`
	EndChr     string `yaml:"end_chr"`
}

type SamplingConfig struct {
	Size              int    `yaml:"size"`
	MinLength         int    `yaml:"min_length"`
	MaxLength         int    `yaml:"max_length"`
	MaxAttempts       int    `yaml:"max_attempts"`
	Seed              uint64 `yaml:"seed"`
	Workers           int    `yaml:"workers"`
	UsingSampleAttack bool   `yaml:"using_sample_attack"`
}

type ScoringConfig struct {
	MaxIterations int64 `yaml:"max_iterations"` // <= 0 means unbounded
	Workers       int   `yaml:"workers"`
}

// GuessingConfig drives the rounds of secondary training
type GuessingConfig struct {
	Thresholds      []float64 `yaml:"thresholds"`
	SecondarySample int       `yaml:"secondary_sample"` // Max cracked passwords retrained per round, <= 0 keeps all
}

type McpConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

func (m McpConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// SourceConfig lists the corpora
type SourceConfig struct {
	Training []string `yaml:"training"`
	Testing  string   `yaml:"testing"`
}

// Default returns a configuration with every field set to its default
func Default() *Config {
	return &Config{
		App: AppConfig{
			Port:      8080,
			WorkDir:   "./models",
			ModelName: "default",
		},
		Model: ModelConfig{
			Splitter:  "empty",
			Skip4Word: 1,
			MaxGram:   256,
			Threshold: 10,
			StartChr:  "\x00",
			EndChr:    "\x03",
		},
		Sampling: SamplingConfig{
			Size:        100000,
			MinLength:   4,
			MaxLength:   256,
			MaxAttempts: 100000,
			Workers:     runtime.NumCPU(),
		},
		Scoring: ScoringConfig{
			MaxIterations: 0,
			Workers:       runtime.NumCPU(),
		},
		Mcp: McpConfig{
			Host: "localhost",
			Port: 8081,
		},
	}
}

// LoadConfig reads the application configuration and, when sourceConfigPath
// is not empty, the corpus list. Missing fields keep their defaults.
func LoadConfig(appConfigPath, sourceConfigPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(appConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read app config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse app config: %w", err)
	}

	if sourceConfigPath != "" {
		data, err := os.ReadFile(sourceConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read source config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg.Source); err != nil {
			return nil, fmt.Errorf("failed to parse source config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the core cannot work with
func (c *Config) Validate() error {
	if c.Model.MaxGram < 1 {
		return fmt.Errorf("model.max_gram must be at least 1, got %d", c.Model.MaxGram)
	}
	if c.Model.Threshold < 0 {
		return fmt.Errorf("model.threshold must not be negative, got %d", c.Model.Threshold)
	}
	if c.Model.Skip4Word < 1 || c.Model.Start4Word < 0 {
		return fmt.Errorf("model.start4word/skip4word out of range: %d/%d", c.Model.Start4Word, c.Model.Skip4Word)
	}
	if c.Model.StartChr == "" || c.Model.EndChr == "" || c.Model.StartChr == c.Model.EndChr {
		return fmt.Errorf("model.start_chr and model.end_chr must be distinct and non-empty")
	}
	if c.Sampling.Size < 1 {
		return fmt.Errorf("sampling.size must be positive, got %d", c.Sampling.Size)
	}
	if c.Sampling.MinLength < 0 || c.Sampling.MaxLength <= c.Sampling.MinLength {
		return fmt.Errorf("sampling.min_length/max_length out of range: %d/%d", c.Sampling.MinLength, c.Sampling.MaxLength)
	}
	if c.Sampling.MaxAttempts < 1 {
		return fmt.Errorf("sampling.max_attempts must be positive, got %d", c.Sampling.MaxAttempts)
	}
	for i, t := range c.Guessing.Thresholds {
		if t <= 0 {
			return fmt.Errorf("guessing.thresholds[%d] must be positive, got %v", i, t)
		}
	}
	if c.App.ModelName == "" {
		return fmt.Errorf("app.model_name must not be empty")
	}
	return nil
}
