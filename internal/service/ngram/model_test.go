package ngram

import (
	"context"
	"io"
	"math"
	"strings"
	"testing"

	"pwguess/internal/service/tokenizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(maxOrder int, threshold int64) Config {
	cfg := DefaultConfig()
	cfg.MaxOrder = maxOrder
	cfg.Threshold = threshold
	return cfg
}

func trainChars(t *testing.T, corpus string, maxOrder int, threshold int64, prior *Model) *Model {
	t.Helper()
	m, err := Train(context.Background(), strings.NewReader(corpus), tokenizer.NewCharTokenizer(),
		testConfig(maxOrder, threshold), prior, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestTrainABCScenario(t *testing.T) {
	m := trainChars(t, "abc\nabc\nabd\n", 2, 1, nil)
	require.False(t, m.Empty())

	afterA := m.Transitions([]string{"a"})
	require.NotEmpty(t, afterA)
	for tok, p := range afterA {
		if tok != "b" {
			assert.Greater(t, afterA["b"], p)
		}
	}
	assert.InDelta(t, 1.0, afterA["b"], 1e-12)

	afterB := m.Transitions([]string{"b"})
	assert.InDelta(t, 2.0/3.0, afterB["c"], 1e-12)
	assert.InDelta(t, 1.0/3.0, afterB["d"], 1e-12)

	scorer := NewScorer(m, 0)
	abc, tokens := scorer.Score("abc")
	assert.Less(t, abc, MaxCost)
	assert.InDelta(t, math.Log2(3.0/2.0), abc, 1e-12)
	assert.Equal(t, []string{"a", "b", "c"}, tokens)

	xyz, tokens := scorer.Score("xyz")
	assert.Equal(t, MaxCost, xyz)
	assert.Equal(t, []string{"xyz"}, tokens)
	assert.Less(t, abc, xyz)
}

func TestStartSentinelIsNeverPredicted(t *testing.T) {
	m := trainChars(t, "abc\nabc\nabd\n", 2, 1, nil)

	root := m.Transitions(nil)
	_, hasStart := root[DefaultConfig().Sentinels.Start]
	assert.False(t, hasStart)
	assert.Equal(t, int64(3), m.Vocabulary().Count(DefaultConfig().Sentinels.Start))
	assert.Equal(t, int64(3), m.Vocabulary().Count(DefaultConfig().Sentinels.End))
	assert.Equal(t, int64(3), m.TransitionCount(nil, "a"))
	assert.Equal(t, int64(3), m.TransitionCount([]string{"\x00"}, "a"))
}

func TestProbabilitiesSumToAtMostOne(t *testing.T) {
	corpus := strings.Repeat("password\n", 5) + strings.Repeat("pass\n", 3) +
		"passw0rd\n123456\n123456\n123456\nletmein\nqwerty\nqwerty\n"
	m := trainChars(t, corpus, 4, 2, nil)
	require.NoError(t, m.CheckInvariants())

	m.trie.Walk(func(node *TrieNode) {
		if node.probs == nil {
			return
		}
		var sum float64
		for _, p := range node.probs {
			assert.True(t, p > 0 && p <= 1)
			sum += p
		}
		assert.LessOrEqual(t, sum, 1+probabilityEpsilon)
	})
}

func TestProbabilitiesSumToOneWithoutPruning(t *testing.T) {
	m := trainChars(t, "abc\nabc\nabd\nbcd\n", 3, 1, nil)
	require.NoError(t, m.CheckInvariants())

	m.trie.Walk(func(node *TrieNode) {
		if node.probs == nil {
			return
		}
		var sum float64
		for _, p := range node.probs {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	})
}

func TestPrunedMassBacksOff(t *testing.T) {
	// context "a" sees b three times and c once; with threshold 2 the c
	// transition is pruned and its mass is spread over the unigram table
	m := trainChars(t, "ab\nab\nab\nac\n", 2, 2, nil)

	afterA := m.Transitions([]string{"a"})
	require.NotNil(t, afterA)
	root := m.Transitions(nil)
	missing := 1 - 3.0/4.0
	assert.InDelta(t, 3.0/4.0+missing*root["b"], afterA["b"], 1e-12)
	assert.NotContains(t, afterA, "c")
	assert.InDelta(t, missing*root["\x03"], afterA["\x03"], 1e-12)
	require.NoError(t, m.CheckInvariants())
}

func TestMergeBeforePruneDiverges(t *testing.T) {
	merged := trainChars(t, "ab\nab\n", 2, 2, nil)
	assert.Equal(t, map[string]float64{"b": 1}, merged.Transitions([]string{"a"}))
	assert.Equal(t, int64(2), merged.TransitionCount([]string{"a"}, "b"))

	first, err := Train(context.Background(), strings.NewReader("ab\n"), tokenizer.NewCharTokenizer(),
		testConfig(2, 2), nil, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, first.Empty())

	sequential := trainChars(t, "ab\n", 2, 2, first)
	assert.Nil(t, sequential.Transitions([]string{"a"}))
	assert.Equal(t, int64(0), sequential.TransitionCount([]string{"a"}, "b"))
	assert.False(t, sequential.Empty())

	// the unigram table is always merged, so both agree there
	assert.Equal(t, merged.Transitions(nil), sequential.Transitions(nil))
}

func TestTrainParallelPrunesOnceAfterMerging(t *testing.T) {
	trainer, err := NewTrainer(testConfig(2, 2), nil, zap.NewNop())
	require.NoError(t, err)

	shards := []io.Reader{strings.NewReader("ab\n"), strings.NewReader("ab\n")}
	require.NoError(t, trainer.TrainParallel(context.Background(), shards, tokenizer.NewCharTokenizer()))
	m, err := trainer.Freeze()
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"b": 1}, m.Transitions([]string{"a"}))
	assert.Equal(t, int64(2), m.Lines())
}

func TestKnownContextsAlwaysAccumulate(t *testing.T) {
	prior := trainChars(t, "ab\n", 2, 1, nil)
	require.NotNil(t, prior.Transitions([]string{"a"}))

	m := trainChars(t, "ac\n", 2, 2, prior)
	assert.Equal(t, int64(1), m.TransitionCount([]string{"a"}, "b"))
	assert.Equal(t, int64(1), m.TransitionCount([]string{"a"}, "c"))
	assert.Equal(t, int64(2), m.Lines())
}

func TestPriorWithDifferentSentinelsIsRejected(t *testing.T) {
	prior := trainChars(t, "ab\n", 2, 1, nil)
	cfg := testConfig(2, 1)
	cfg.Sentinels.End = "\n"
	_, err := NewTrainer(cfg, prior, zap.NewNop())
	assert.Error(t, err)
}

func TestEmptyCorpus(t *testing.T) {
	m, err := Train(context.Background(), strings.NewReader(""), tokenizer.NewCharTokenizer(),
		DefaultConfig(), nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoTrainingData)
	require.NotNil(t, m)
	assert.True(t, m.Empty())

	_, err = NewSampler(m, DefaultSamplerConfig())
	assert.ErrorIs(t, err, ErrEmptyModel)
}

func TestHighThresholdYieldsEmptyModel(t *testing.T) {
	corpus := strings.Repeat("hunter2\n", 50) + strings.Repeat("dragon\n", 20)
	m := trainChars(t, corpus, 4, 1000, nil)
	assert.True(t, m.Empty())
	require.NoError(t, m.CheckInvariants())

	_, err := NewSampler(m, DefaultSamplerConfig())
	assert.ErrorIs(t, err, ErrEmptyModel)

	cost, tokens := NewScorer(m, 0).Score("hunter2")
	assert.Equal(t, MaxCost, cost)
	assert.Equal(t, []string{"hunter2"}, tokens)
}

func TestTrainerFrozen(t *testing.T) {
	trainer, err := NewTrainer(testConfig(2, 1), nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, trainer.Train(context.Background(), strings.NewReader("ab\n"), tokenizer.NewCharTokenizer()))
	_, err = trainer.Freeze()
	require.NoError(t, err)

	_, err = trainer.Freeze()
	assert.ErrorIs(t, err, ErrTrainerFrozen)
	assert.ErrorIs(t, trainer.Absorb(NewCounter(DefaultConfig().Sentinels, 2)), ErrTrainerFrozen)
}

func TestCounterMergeIsCommutative(t *testing.T) {
	s := DefaultConfig().Sentinels
	left, right := NewCounter(s, 3), NewCounter(s, 3)
	left.Add([]string{"a", "b", "c"})
	right.Add([]string{"a", "b", "d"})
	right.Add([]string{"b", "c"})

	lr, rl := NewCounter(s, 3), NewCounter(s, 3)
	lr.Merge(left)
	lr.Merge(right)
	rl.Merge(right)
	rl.Merge(left)

	assert.Equal(t, lr.vocab, rl.vocab)
	assert.Equal(t, lr.unigrams, rl.unigrams)
	assert.Equal(t, lr.orders, rl.orders)
	assert.Equal(t, int64(3), lr.Lines())
	assert.Equal(t, int64(2), lr.TransitionCount([]string{"a", "b"}, "c")+lr.TransitionCount([]string{"a", "b"}, "d"))
	assert.Equal(t, int64(2), lr.TransitionCount([]string{"b"}, "c"))
}

func TestCounterOrdersBoundedBySequenceLength(t *testing.T) {
	c := NewCounter(DefaultConfig().Sentinels, 256)
	c.Add([]string{"a"})
	// [start a end] has windows of size 2 and 3 only
	assert.Equal(t, int64(1), c.TransitionCount([]string{"\x00", "a"}, "\x03"))
	assert.Equal(t, 3, c.Contexts())
	assert.Equal(t, 3, c.longest)
}

func TestProbabilityBacksOffToShorterContext(t *testing.T) {
	m := trainChars(t, "abc\nxbd\n", 3, 1, nil)

	// context "ab" only knows c; d is reached through context "b"
	p, ok := m.Probability([]string{"a", "b"}, "c")
	require.True(t, ok)
	assert.InDelta(t, 1.0, p, 1e-12)

	p, ok = m.Probability([]string{"a", "b"}, "d")
	require.True(t, ok)
	assert.InDelta(t, 0.5, p, 1e-12)

	_, ok = m.Probability([]string{"a", "b"}, "q")
	assert.False(t, ok)
}

func TestStatsDescribeModel(t *testing.T) {
	m := trainChars(t, "abc\nabc\nabd\n", 2, 1, nil)
	stats := m.Stats()
	assert.Equal(t, m.ID().String(), stats.ID)
	assert.Equal(t, int64(3), stats.Lines)
	assert.Equal(t, 5, stats.Longest)
	assert.Equal(t, 6, stats.VocabSize)
	assert.False(t, stats.Empty)
	assert.Equal(t, int64(6), stats.Trie.Contexts)
	assert.Equal(t, 1, stats.Trie.MaxDepth)
}
