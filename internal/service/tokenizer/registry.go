package tokenizer

import (
	"fmt"
	"sort"
	"strings"
)

// TokenizerRegistry resolves named splitters used by the configuration layer
type TokenizerRegistry struct {
	splitters map[string]string // splitter name -> literal delimiter
}

// NewTokenizerRegistry creates a registry with the built-in splitter names
func NewTokenizerRegistry() *TokenizerRegistry {
	tr := &TokenizerRegistry{
		splitters: make(map[string]string),
	}
	tr.Register("empty", "")
	tr.Register("space", " ")
	tr.Register("tab", "\t")
	return tr
}

// Register adds a named splitter
func (tr *TokenizerRegistry) Register(name, delimiter string) {
	tr.splitters[strings.ToLower(name)] = delimiter
}

// ResolveSplitter maps a splitter name to its delimiter. Unknown names are
// taken as literal delimiters, with "\t" and "\\" escapes unquoted.
func (tr *TokenizerRegistry) ResolveSplitter(name string) string {
	if delimiter, ok := tr.splitters[strings.ToLower(name)]; ok {
		return delimiter
	}
	return strings.NewReplacer(`\t`, "\t", `\\`, `\`).Replace(name)
}

// GetTokenizer builds the tokenizer for a named splitter
func (tr *TokenizerRegistry) GetTokenizer(splitter string, start, step int) (*SplitTokenizer, error) {
	t, err := NewSplitTokenizer(tr.ResolveSplitter(splitter), start, step)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer for splitter %q: %w", splitter, err)
	}
	return t, nil
}

// SupportedSplitters returns the registered splitter names
func (tr *TokenizerRegistry) SupportedSplitters() []string {
	names := make([]string, 0, len(tr.splitters))
	for name := range tr.splitters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
