package montecarlo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportCurve(t *testing.T) *RankCurve {
	t.Helper()
	// positions: 1 -> 0.5, 2 -> 1.5, 3 -> 3.5, 4 -> 7.5
	rc, err := BuildRankCurve([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	return rc
}

func TestReportOrdersByGuessNumber(t *testing.T) {
	scored := []ScoredPassword{
		{Password: "slow", ML2P: 3.5, Count: 1},
		{Password: "never", ML2P: 1022, Count: 2},
		{Password: "fast", ML2P: 1, Count: 3},
		{Password: "mid", ML2P: 2, Count: 4},
	}
	r := Report(reportCurve(t), scored, ReportOptions{})

	require.Len(t, r.Entries, 4)
	assert.Equal(t, int64(10), r.Total)
	names := []string{}
	for _, e := range r.Entries {
		names = append(names, e.Password)
	}
	assert.Equal(t, []string{"fast", "mid", "slow", "never"}, names)

	assert.Equal(t, 0.5, r.Entries[0].GuessNumber)
	assert.Equal(t, 0.5, r.Entries[0].Probability)
	assert.Equal(t, int64(3), r.Entries[0].Cracked)
	assert.Equal(t, int64(7), r.Entries[1].Cracked)
	assert.Equal(t, 3.5, r.Entries[2].GuessNumber)
	assert.Equal(t, int64(8), r.Entries[2].Cracked)
	assert.InDelta(t, 80.0, r.Entries[2].Ratio, 1e-12)

	never := r.Entries[3]
	assert.True(t, math.IsInf(never.GuessNumber, 1))
	assert.Equal(t, CoverageAbove, never.Coverage)
	assert.Equal(t, int64(8), never.Cracked)
	assert.Empty(t, r.Cracked())
}

func TestReportGuessThreshold(t *testing.T) {
	scored := []ScoredPassword{
		{Password: "a", ML2P: 1, Count: 2},
		{Password: "b", ML2P: 3, Count: 1},
		{Password: "c", ML2P: 0.1, Count: 1},
		{Password: "d", ML2P: 1022, Count: 1},
	}
	r := Report(reportCurve(t), scored, ReportOptions{GuessThreshold: 2, Total: 10})

	cracked := r.Cracked()
	require.Len(t, cracked, 2)
	assert.Equal(t, "c", cracked[0].Password)
	assert.Equal(t, CoverageBelow, cracked[0].Coverage)
	assert.Equal(t, "a", cracked[1].Password)
	assert.Equal(t, int64(10), r.Total)
	assert.InDelta(t, 30.0, r.Entries[1].Ratio, 1e-12)
}

func TestReportExactSampleAttack(t *testing.T) {
	idx := NewSampleIndex(&SampleSet{
		ML2P:      []float64{1, 1, 3},
		Passwords: []string{"a", "a", "b"},
	})
	scored := []ScoredPassword{
		{Password: "b", ML2P: 3, Count: 1},
		{Password: "a", ML2P: 1, Count: 1},
		{Password: "x", ML2P: 2, Count: 1},
	}
	// the threshold is ignored in favour of the sample index
	r := Report(reportCurve(t), scored, ReportOptions{Index: idx, GuessThreshold: 100})

	byName := map[string]Entry{}
	for _, e := range r.Entries {
		byName[e.Password] = e
	}
	assert.True(t, byName["a"].Exact)
	assert.Equal(t, 1.0, byName["a"].GuessNumber)
	assert.True(t, byName["b"].Exact)
	assert.Equal(t, 3.0, byName["b"].GuessNumber)
	assert.False(t, byName["x"].Exact)
	assert.Equal(t, 1.5, byName["x"].GuessNumber)

	cracked := r.Cracked()
	require.Len(t, cracked, 2)
	assert.Equal(t, "a", cracked[0].Password)
	assert.Equal(t, "b", cracked[1].Password)
}
