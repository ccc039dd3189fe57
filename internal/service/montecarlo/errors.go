package montecarlo

import "github.com/pkg/errors"

var (
	// ErrNoSamples is returned when a rank curve is built from nothing
	ErrNoSamples = errors.New("no samples")

	// ErrInvalidSample is returned for NaN or negative sample costs
	ErrInvalidSample = errors.New("invalid sample cost")
)
