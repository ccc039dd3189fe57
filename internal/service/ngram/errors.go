package ngram

import "github.com/pkg/errors"

var (
	// ErrNoTrainingData is returned when a corpus contains no lines
	ErrNoTrainingData = errors.New("no training data")

	// ErrEmptyModel is returned when sampling from a model without any transition
	ErrEmptyModel = errors.New("model has no transitions")

	// ErrDegenerateModel is returned when sampling keeps producing unusable sequences
	ErrDegenerateModel = errors.New("model too degenerate to sample")

	// ErrCorruptModel is returned when a persisted model fails validation
	ErrCorruptModel = errors.New("corrupt model")

	// ErrTrainerFrozen is returned when a trainer is used after Freeze
	ErrTrainerFrozen = errors.New("trainer already frozen")
)
