package ngram

import (
	"math"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Sampling defaults
const (
	DefaultMinLength   = 4
	DefaultMaxLength   = 256
	DefaultMaxAttempts = 100000
)

// SamplerConfig bounds the generative process
type SamplerConfig struct {
	MinLength   int `json:"min_length" yaml:"min_length"`     // Shorter samples are discarded
	MaxLength   int `json:"max_length" yaml:"max_length"`     // Samples reaching this length are discarded
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"` // Discarded attempts tolerated per sample
}

// DefaultSamplerConfig returns the default sampling bounds
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		MinLength:   DefaultMinLength,
		MaxLength:   DefaultMaxLength,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Validate checks the sampling bounds
func (c SamplerConfig) Validate() error {
	if c.MinLength < 0 {
		return errors.Errorf("min length must not be negative, got %d", c.MinLength)
	}
	if c.MaxLength <= c.MinLength {
		return errors.Errorf("max length %d must exceed min length %d", c.MaxLength, c.MinLength)
	}
	if c.MaxAttempts < 1 {
		return errors.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}

// Sampler draws passwords from a model's own generative process
type Sampler struct {
	model  *Model
	config SamplerConfig
}

// NewSampler creates a sampler. It fails fast on an empty model.
func NewSampler(m *Model, config SamplerConfig) (*Sampler, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid sampler config")
	}
	if m.Empty() || !m.hasEnd {
		return nil, errors.Wrapf(ErrEmptyModel, "model %s", m.id)
	}
	return &Sampler{model: m, config: config}, nil
}

// Sample draws one password and returns its ml2p. Attempts that end too
// early or grow too long are discarded and regenerated.
func (s *Sampler) Sample(rng *rand.Rand) (float64, string, error) {
	m := s.model
	history := make([]uint32, 0, 16)
	var b strings.Builder

	for attempt := 0; attempt <= s.config.MaxAttempts; attempt++ {
		history = append(history[:0], m.startID)
		b.Reset()
		cost := 0.0
		length := 0

		for {
			node := m.deepestContext(history)
			if node == nil {
				return 0, "", errors.Wrapf(ErrEmptyModel, "model %s", m.id)
			}
			id, p := node.pick(rng.Float64())
			cost -= math.Log2(p)

			if id == m.endID {
				if length >= s.config.MinLength {
					return cost, b.String(), nil
				}
				break
			}

			tok := m.vocab.Token(id)
			b.WriteString(tok)
			length += utf8.RuneCountInString(tok)
			history = append(history, id)
			if length >= s.config.MaxLength {
				break
			}
		}
	}
	return 0, "", errors.Wrapf(ErrDegenerateModel, "no usable sample after %d attempts", s.config.MaxAttempts)
}
