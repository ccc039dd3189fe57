package montecarlo

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Coverage tells whether a cost fell inside the sampled range
type Coverage int

const (
	CoverageWithin Coverage = iota
	CoverageBelow           // Cheaper than every sample
	CoverageAbove           // More expensive than every sample
)

func (c Coverage) String() string {
	switch c {
	case CoverageBelow:
		return "below"
	case CoverageAbove:
		return "above"
	default:
		return "within"
	}
}

func (c Coverage) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// RankCurve maps sampled ml2p values to estimated guess numbers. Each sample
// of probability p stands for 1/(n*p) guesses, so the guess number of the
// i-th cheapest sample is the running sum of 2^ml2p / n.
type RankCurve struct {
	costs     []float64
	positions []float64
}

// BuildRankCurve sorts the samples and computes their cumulative guess numbers.
// The input slice is not modified.
func BuildRankCurve(samples []float64) (*RankCurve, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	costs := make([]float64, len(samples))
	copy(costs, samples)
	for i, c := range costs {
		if math.IsNaN(c) || c < 0 {
			return nil, errors.Wrapf(ErrInvalidSample, "sample %d: %v", i, c)
		}
	}
	sort.Float64s(costs)

	n := float64(len(costs))
	weights := make([]float64, len(costs))
	for i, c := range costs {
		weights[i] = math.Exp2(c) / n
	}
	positions := floats.CumSum(make([]float64, len(costs)), weights)

	// equal costs share the rank of the last tied sample
	for i := len(costs) - 2; i >= 0; i-- {
		if costs[i] == costs[i+1] {
			positions[i] = positions[i+1]
		}
	}
	return &RankCurve{costs: costs, positions: positions}, nil
}

// Rank returns the estimated guess number of a cost, using the nearest
// sampled cost at or below it. Costs below the cheapest sample map to 0 and
// costs above the most expensive sample map to +Inf.
func (rc *RankCurve) Rank(ml2p float64) (float64, Coverage) {
	if ml2p < rc.costs[0] {
		return 0, CoverageBelow
	}
	if ml2p > rc.costs[len(rc.costs)-1] {
		return math.Inf(1), CoverageAbove
	}
	idx := sort.Search(len(rc.costs), func(i int) bool { return rc.costs[i] > ml2p }) - 1
	return rc.positions[idx], CoverageWithin
}

// Len returns the number of samples behind the curve
func (rc *RankCurve) Len() int {
	return len(rc.costs)
}

// Point is one sample of the curve
type Point struct {
	ML2P        float64 `json:"ml2p"`
	GuessNumber float64 `json:"guess_number"`
}

// Points returns up to n evenly spaced points of the curve, always including
// the last one
func (rc *RankCurve) Points(n int) []Point {
	if n <= 0 || n > len(rc.costs) {
		n = len(rc.costs)
	}
	step := float64(len(rc.costs)) / float64(n)
	out := make([]Point, 0, n)
	for k := 1; k <= n; k++ {
		i := int(math.Ceil(float64(k)*step)) - 1
		if i >= len(rc.costs) {
			i = len(rc.costs) - 1
		}
		out = append(out, Point{ML2P: rc.costs[i], GuessNumber: rc.positions[i]})
	}
	return out
}
