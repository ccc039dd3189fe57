package ngram

import (
	ngramtypes "pwguess/internal/model/ngram"

	"github.com/pkg/errors"
)

// Defaults used by the back-off model
const (
	DefaultMaxOrder  = 256
	DefaultThreshold = 10
)

// Config describes how a model is trained
type Config struct {
	Sentinels ngramtypes.Sentinels `json:"sentinels"`
	MaxOrder  int                  `json:"max_gram"`
	Threshold int64                `json:"threshold"`

	// Tokenization rule, recorded so a reloaded model tokenizes the same way
	Splitter   string `json:"splitter"`
	Start4Word int    `json:"start4word"`
	Skip4Word  int    `json:"skip4word"`
}

// DefaultConfig returns a character-wise configuration
func DefaultConfig() Config {
	return Config{
		Sentinels: ngramtypes.DefaultSentinels(),
		MaxOrder:  DefaultMaxOrder,
		Threshold: DefaultThreshold,
		Skip4Word: 1,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxOrder < 1 {
		return errors.Errorf("max order must be at least 1, got %d", c.MaxOrder)
	}
	if c.Threshold < 0 {
		return errors.Errorf("threshold must not be negative, got %d", c.Threshold)
	}
	if c.Sentinels.Start == "" || c.Sentinels.End == "" {
		return errors.New("start and end sentinels must not be empty")
	}
	if c.Sentinels.Start == c.Sentinels.End {
		return errors.Errorf("start and end sentinels must differ, both are %q", c.Sentinels.Start)
	}
	if c.Start4Word < 0 || c.Skip4Word < 1 {
		return errors.Errorf("invalid word selection start=%d skip=%d", c.Start4Word, c.Skip4Word)
	}
	return nil
}
