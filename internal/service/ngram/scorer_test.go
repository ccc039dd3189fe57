package ngram

import (
	"context"
	"math"
	"strings"
	"testing"

	"pwguess/internal/service/tokenizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// trainWords builds a model whose vocabulary holds both "a", "b" and "ab",
// so "ab" has two decompositions: [a b] costing 2 bits and [ab] costing
// log2(4/3) bits.
func trainWords(t *testing.T) *Model {
	t.Helper()
	tok, err := tokenizer.NewSplitTokenizer(" ", 0, 1)
	require.NoError(t, err)
	cfg := testConfig(2, 1)
	cfg.Splitter = " "
	m, err := Train(context.Background(), strings.NewReader("ab\nab\nab\na b\n"), tok, cfg, nil, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestScorerFindsCheapestDecomposition(t *testing.T) {
	m := trainWords(t)

	r := NewScorer(m, 0).ScoreDetail("ab")
	assert.Equal(t, []string{"ab"}, r.Tokens)
	assert.InDelta(t, math.Log2(4.0/3.0), r.ML2P, 1e-12)
	assert.Equal(t, int64(2), r.Iterations)
	assert.False(t, r.Exhausted)
}

func TestScorerIterationBudget(t *testing.T) {
	m := trainWords(t)

	// shorter tokens are tried first, so the first completion is [a b]
	r := NewScorer(m, 1).ScoreDetail("ab")
	assert.Equal(t, []string{"a", "b"}, r.Tokens)
	assert.InDelta(t, 2.0, r.ML2P, 1e-12)
	assert.Equal(t, int64(1), r.Iterations)
	assert.True(t, r.Exhausted)

	// a budget larger than the number of decompositions changes nothing
	r = NewScorer(m, 10).ScoreDetail("ab")
	assert.Equal(t, []string{"ab"}, r.Tokens)
	assert.False(t, r.Exhausted)
}

func TestScorerBudgetIsPerCall(t *testing.T) {
	m := trainWords(t)
	s := NewScorer(m, 1)
	first := s.ScoreDetail("ab")
	second := s.ScoreDetail("ab")
	assert.Equal(t, first, second)
}

func TestScoreIsIdempotent(t *testing.T) {
	corpus := strings.Repeat("password1\n", 4) + "passw0rd\npass1234\n1234pass\n"
	m := trainChars(t, corpus, 3, 1, nil)
	s := NewScorer(m, 0)

	for _, pwd := range []string{"password1", "pass1234", "1234", "zzz", ""} {
		c1, t1 := s.Score(pwd)
		c2, t2 := s.Score(pwd)
		assert.Equal(t, c1, c2, pwd)
		assert.Equal(t, t1, t2, pwd)
	}
}

func TestScorerFallsBackToUnigrams(t *testing.T) {
	// no context of order 2 admits "ba", every step falls back to the
	// unigram table where each token has probability 1/3
	m := trainChars(t, "ab\nab\n", 2, 2, nil)
	cost, tokens := NewScorer(m, 0).Score("ba")
	assert.InDelta(t, 3*math.Log2(3), cost, 1e-12)
	assert.Equal(t, []string{"b", "a"}, tokens)

	cost, _ = NewScorer(m, 0).Score("ab")
	assert.Equal(t, 0.0, cost)
}

func TestScorerHandlesMultibyteRunes(t *testing.T) {
	m := trainChars(t, "päss\npäss\n", 3, 1, nil)
	cost, tokens := NewScorer(m, 0).Score("päss")
	assert.Equal(t, 0.0, cost)
	assert.Equal(t, []string{"p", "ä", "s", "s"}, tokens)

	cost, tokens = NewScorer(m, 0).Score("pass")
	assert.Equal(t, MaxCost, cost)
	assert.Equal(t, []string{"pass"}, tokens)
}

func TestScorerHandlesInvalidUTF8(t *testing.T) {
	m := trainChars(t, strings.Repeat("ab\xffc\n", 5)+"a\x80b\n", 3, 1, nil)
	s := NewScorer(m, 0)

	cost, tokens := s.Score("ab\xffc")
	assert.Less(t, cost, MaxCost)
	assert.Equal(t, []string{"a", "b", "\xff", "c"}, tokens)

	cost, tokens = s.Score("a\x80b")
	assert.Less(t, cost, MaxCost)
	assert.Equal(t, []string{"a", "\x80", "b"}, tokens)
}
