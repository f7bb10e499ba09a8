package service

import (
	"maps"
	"time"

	"pubclass/ml"
)

// ModelReport describes one slot after initialization.
type ModelReport struct {
	Samples  int           `json:"samples"`
	Duration time.Duration `json:"duration"`
	Scores   *ml.Scores    `json:"scores,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Report summarizes a successful initialization. Only aggregate numbers are
// kept; samples are dropped after training.
type Report struct {
	RunID       string                 `json:"run_id"`
	Samples     int                    `json:"samples"`
	TrainSize   int                    `json:"train_size"`
	TestSize    int                    `json:"test_size"`
	Features    map[string]int         `json:"features"`
	Models      map[string]ModelReport `json:"models"`
	Failures    map[string]string      `json:"failures,omitempty"`
	Duration    time.Duration          `json:"duration"`
	CompletedAt time.Time              `json:"completed_at"`
}

func (r Report) clone() Report {
	out := r
	out.Features = maps.Clone(r.Features)
	out.Models = maps.Clone(r.Models)
	out.Failures = maps.Clone(r.Failures)
	return out
}
