package montecarlo

import (
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// Summary describes the distribution of sampled costs
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	StdDev float64 `json:"stddev"`
}

// SummarizeSamples computes summary statistics of sampled ml2p values
func SummarizeSamples(samples []float64) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNoSamples
	}
	data := stats.Float64Data(samples)

	var s Summary
	var err error
	s.Count = data.Len()
	if s.Min, err = data.Min(); err != nil {
		return Summary{}, errors.Wrap(err, "min")
	}
	if s.Max, err = data.Max(); err != nil {
		return Summary{}, errors.Wrap(err, "max")
	}
	if s.Mean, err = stats.Mean(data); err != nil {
		return Summary{}, errors.Wrap(err, "mean")
	}
	if s.Median, err = stats.Median(data); err != nil {
		return Summary{}, errors.Wrap(err, "median")
	}
	if s.P90, err = stats.Percentile(data, 90); err != nil {
		return Summary{}, errors.Wrap(err, "percentile")
	}
	if s.StdDev, err = stats.StandardDeviation(data); err != nil {
		return Summary{}, errors.Wrap(err, "standard deviation")
	}
	return s, nil
}
