package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Tokenizer splits one corpus line into model tokens
type Tokenizer interface {
	// Tokenize converts a line (without its line terminator) into tokens
	Tokenize(line string) []string

	// Name returns the name of the tokenization rule
	Name() string
}

// SplitTokenizer implements the column-splitting rule shared by every
// front-end. An empty splitter yields one token per rune; any other splitter
// is a literal delimiter, and only fields start, start+step, ... are kept.
type SplitTokenizer struct {
	splitter string
	start    int
	step     int
}

// NewSplitTokenizer creates a tokenizer for the given splitter, start index and stride
func NewSplitTokenizer(splitter string, start, step int) (*SplitTokenizer, error) {
	if start < 0 {
		return nil, fmt.Errorf("start index must not be negative, got %d", start)
	}
	if step < 1 {
		return nil, fmt.Errorf("step must be at least 1, got %d", step)
	}
	return &SplitTokenizer{splitter: splitter, start: start, step: step}, nil
}

// NewCharTokenizer creates a tokenizer emitting one token per rune
func NewCharTokenizer() *SplitTokenizer {
	return &SplitTokenizer{step: 1}
}

func (t *SplitTokenizer) Tokenize(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	if t.splitter == "" {
		// Invalid bytes stay as single-byte tokens so they round-trip
		tokens := make([]string, 0, len(line))
		for i := 0; i < len(line); {
			_, size := utf8.DecodeRuneInString(line[i:])
			tokens = append(tokens, line[i:i+size])
			i += size
		}
		return tokens
	}

	items := strings.Split(line, t.splitter)
	tokens := make([]string, 0, len(items))
	for i := t.start; i < len(items); i += t.step {
		if items[i] == "" {
			continue
		}
		tokens = append(tokens, items[i])
	}
	return tokens
}

func (t *SplitTokenizer) Name() string {
	if t.splitter == "" {
		return "chars"
	}
	return fmt.Sprintf("split(%q,%d,%d)", t.splitter, t.start, t.step)
}

// Splitter returns the literal delimiter ("" for character-wise)
func (t *SplitTokenizer) Splitter() string {
	return t.splitter
}
