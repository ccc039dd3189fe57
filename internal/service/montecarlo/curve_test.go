package montecarlo

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankCurvePositions(t *testing.T) {
	samples := []float64{3, 2, 1, 2}
	rc, err := BuildRankCurve(samples)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 1, 2}, samples, "input must not be reordered")
	assert.Equal(t, 4, rc.Len())

	tests := []struct {
		ml2p     float64
		want     float64
		coverage Coverage
	}{
		{0.5, 0, CoverageBelow},
		{1, 0.5, CoverageWithin},
		{1.5, 0.5, CoverageWithin},
		{2, 2.5, CoverageWithin}, // ties share the rank of the last tied sample
		{2.9, 2.5, CoverageWithin},
		{3, 4.5, CoverageWithin},
		{3.1, math.Inf(1), CoverageAbove},
	}
	for _, tt := range tests {
		got, cov := rc.Rank(tt.ml2p)
		assert.Equal(t, tt.want, got, "ml2p %v", tt.ml2p)
		assert.Equal(t, tt.coverage, cov, "ml2p %v", tt.ml2p)
	}
}

func TestRankIsMonotone(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	samples := make([]float64, 2000)
	for i := range samples {
		samples[i] = rng.Float64() * 40
	}
	rc, err := BuildRankCurve(samples)
	require.NoError(t, err)

	queries := make([]float64, 500)
	for i := range queries {
		queries[i] = rng.Float64()*50 - 5
	}
	sort.Float64s(queries)

	prev := -1.0
	for _, q := range queries {
		gn, _ := rc.Rank(q)
		assert.GreaterOrEqual(t, gn, prev, "ml2p %v", q)
		prev = gn
	}
}

func TestBuildRankCurveRejectsBadInput(t *testing.T) {
	_, err := BuildRankCurve(nil)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = BuildRankCurve([]float64{1, math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidSample)

	_, err = BuildRankCurve([]float64{-1})
	assert.ErrorIs(t, err, ErrInvalidSample)
}

func TestRankCurvePoints(t *testing.T) {
	rc, err := BuildRankCurve([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	points := rc.Points(2)
	require.Len(t, points, 2)
	assert.Equal(t, 2.0, points[0].ML2P)
	assert.Equal(t, 4.0, points[1].ML2P)
	assert.InDelta(t, (2+4+8+16)/4.0, points[1].GuessNumber, 1e-12)

	assert.Len(t, rc.Points(0), 4)
	assert.Len(t, rc.Points(10), 4)
}

func TestCoverageText(t *testing.T) {
	text, err := CoverageAbove.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "above", string(text))
	assert.Equal(t, "below", CoverageBelow.String())
	assert.Equal(t, "within", CoverageWithin.String())
}
