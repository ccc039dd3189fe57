package montecarlo

import (
	"context"
	"strings"
	"sync"
	"testing"

	"pwguess/internal/service/tokenizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lengthScorer struct {
	mu    sync.Mutex
	calls map[string]int
}

func (s *lengthScorer) Score(pwd string) (float64, []string) {
	s.mu.Lock()
	s.calls[pwd]++
	s.mu.Unlock()
	return float64(len(pwd)), []string{pwd}
}

func TestScoreTestSetGroupsDuplicates(t *testing.T) {
	scorer := &lengthScorer{calls: map[string]int{}}
	in := "abc\nde\nabc\n\nfghi\r\nabc\n"
	scored, err := ScoreTestSet(context.Background(), scorer, strings.NewReader(in), TestSetOptions{Workers: 3})
	require.NoError(t, err)

	require.Len(t, scored, 3)
	assert.Equal(t, ScoredPassword{Password: "abc", Tokens: []string{"abc"}, ML2P: 3, Count: 3}, scored[0])
	assert.Equal(t, "de", scored[1].Password)
	assert.Equal(t, "fghi", scored[2].Password)
	assert.Equal(t, 4.0, scored[2].ML2P)
	for pwd, n := range scorer.calls {
		assert.Equal(t, 1, n, pwd)
	}
}

func TestScoreTestSetJoinsTokens(t *testing.T) {
	tok, err := tokenizer.NewSplitTokenizer("\t", 1, 2)
	require.NoError(t, err)
	scorer := &lengthScorer{calls: map[string]int{}}

	scored, err := ScoreTestSet(context.Background(), scorer,
		strings.NewReader("L4\tpass\tD3\t123\nL4\tpass\tD3\t123\n"), TestSetOptions{Tokenizer: tok})
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "pass123", scored[0].Password)
	assert.Equal(t, int64(2), scored[0].Count)
}

func TestScoreTestSetCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ScoreTestSet(ctx, &lengthScorer{calls: map[string]int{}}, strings.NewReader("a\n"), TestSetOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScoreAllLeavesInputUntouched(t *testing.T) {
	set := []ScoredPassword{{Password: "ab", Count: 2}, {Password: "xyz", Count: 1}}
	scored, err := ScoreAll(context.Background(), &lengthScorer{calls: map[string]int{}}, set, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, set[0].ML2P)
	assert.Equal(t, 2.0, scored[0].ML2P)
	assert.Equal(t, 3.0, scored[1].ML2P)
	assert.Equal(t, int64(2), scored[0].Count)
}
