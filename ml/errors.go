package ml

import "errors"

var (
	ErrUnknownModel     = errors.New("unknown model")
	ErrUnknownModelKey  = errors.New("unknown model key")
	ErrNotTrained       = errors.New("model not trained")
	ErrEmptyPrediction  = errors.New("no predictions returned")
	ErrEmptyTrainingSet = errors.New("features or labels empty")
	ErrShapeMismatch    = errors.New("features and labels size mismatch")
	ErrTooFewSamples    = errors.New("too few samples")
)
