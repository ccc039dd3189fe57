package ngram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSequenceBrackets(t *testing.T) {
	seq := NewSequence(DefaultSentinels(), []string{"pass", "word"})
	assert.Equal(t, Sequence{"\x00", "pass", "word", "\x03"}, seq)
}

func TestNGramParts(t *testing.T) {
	ng := NGram{"a", "b", "c"}
	assert.Equal(t, NGram{"a", "b"}, ng.Context())
	assert.Equal(t, "c", ng.LastToken())
	assert.Equal(t, "a b c", ng.String())
	assert.Empty(t, NGram{"a"}.Context())
	assert.Equal(t, "", NGram{}.LastToken())
}

func TestKeyRoundTrip(t *testing.T) {
	cases := []NGram{
		{},
		{"a"},
		{"ab", "c"},
		{"a", "bc"},
		{"\x00", "\x03", " "},
		{"pässwörd", "日本"},
	}
	seen := make(map[string]bool)
	for _, ng := range cases {
		key := ng.Key()
		assert.False(t, seen[key], "key collision for %q", ng)
		seen[key] = true

		parsed, ok := ParseKey(key)
		require.True(t, ok)
		assert.Equal(t, ng, parsed)
	}
}

func TestParseKeyRejectsTruncated(t *testing.T) {
	key := NGram{"abc"}.Key()
	_, ok := ParseKey(key[:len(key)-1])
	assert.False(t, ok)
}
