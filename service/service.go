// Package service orchestrates corpus loading, vectorizer fitting and model
// training, and serves classifications from the trained bank.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pubclass/db"
	"pubclass/embed"
	"pubclass/logger"
	"pubclass/ml"
	"pubclass/monitoring"
	"pubclass/pipeline"
	"pubclass/vectorize"
)

var (
	ErrNotInitialized = errors.New("service not initialized")
	ErrInitializing   = errors.New("service is already initializing")
	ErrVectorization  = errors.New("vectorization failed")
	ErrInitialization = errors.New("initialization failed")
)

// unavailableMessage is reported for slots that are missing or untrained.
const unavailableMessage = "Model not available or not trained"

// Config drives initialization.
type Config struct {
	SampleSize int
	Seed       int64
	TestRatio  float64
	// Evaluate scores every slot on the held-out split after training.
	Evaluate   bool
	Classifier ml.Config
	Embedding  vectorize.EmbeddingOptions
}

// Notifier receives lifecycle and training events.
type Notifier interface {
	Publish(msgType monitoring.MessageType, data any) error
}

// Observer records metrics.
type Observer interface {
	SetLifecycleState(state string)
	ObserveTraining(model, method string, d time.Duration)
	ObserveClassification(method, model, outcome string)
	ObserveClassifyDuration(method string, d time.Duration)
}

// Journal persists training runs and predictions.
type Journal interface {
	SaveTrainingLog(ctx context.Context, entry db.TrainingLog) (int64, error)
	SavePredictions(ctx context.Context, predictions []db.Prediction) error
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }
func WithJournal(j Journal) Option   { return func(s *Service) { s.journal = j } }

// trained is published once initialization succeeds and never mutated.
type trained struct {
	vectorizers *vectorize.Set
	bank        *ml.Bank
	report      Report
}

// Service owns the lifecycle and the trained state.
type Service struct {
	cfg     Config
	catalog *pipeline.Catalog
	source  pipeline.Source
	encoder embed.Encoder
	logger  *zap.Logger

	notifier Notifier
	observer Observer
	journal  Journal

	mu      sync.Mutex
	state   State
	lastErr error
	ready   atomic.Pointer[trained]
}

// New builds a service in the Uninitialized state. encoder may be nil, in
// which case the embeddings method stays unfitted.
func New(cfg Config, catalog *pipeline.Catalog, source pipeline.Source, encoder embed.Encoder, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 1000
	}
	if cfg.TestRatio <= 0 || cfg.TestRatio >= 1 {
		cfg.TestRatio = 0.2
	}
	s := &Service{
		cfg:      cfg,
		catalog:  catalog,
		source:   source,
		encoder:  encoder,
		logger:   log,
		notifier: nopNotifier{},
		observer: nopObserver{},
		state:    StateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.observer.SetLifecycleState(string(StateUninitialized))
	return s
}

// Prediction is one model's answer inside a Response.
type Prediction struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// Response is the result of Classify.
type Response struct {
	InputText           string                `json:"input_text"`
	VectorizationMethod string                `json:"vectorization_method"`
	Predictions         map[string]Prediction `json:"predictions"`
	ProcessingTime      float64               `json:"processing_time"`
}

// Status reports which slots and vectorizers are usable.
type Status struct {
	ModelsTrained       map[string]bool `json:"models_trained"`
	VectorizersFitted   map[string]bool `json:"vectorizers_fitted"`
	AvailableCategories []string        `json:"available_categories"`
}

// Classify normalizes text, vectorizes it with method and asks either the
// named model or every model for that method. Per-model failures become
// error entries; only request-level problems are returned as errors.
func (s *Service) Classify(ctx context.Context, text string, method vectorize.Method, modelName string) (*Response, error) {
	start := time.Now()
	m := s.ready.Load()
	if m == nil {
		return nil, ErrNotInitialized
	}
	if _, err := vectorize.ParseMethod(string(method)); err != nil {
		return nil, err
	}

	kinds := ml.Kinds()
	if modelName != "" {
		kinds = []ml.Kind{ml.Kind(modelName)}
	}

	row, err := m.vectorizers.Transform(ctx, pipeline.Normalize(text), method)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVectorization, err)
	}

	resp := &Response{
		InputText:           text,
		VectorizationMethod: string(method),
		Predictions:         make(map[string]Prediction, len(kinds)),
	}
	journal := make([]db.Prediction, 0, len(kinds))
	requestID := logger.RequestID(ctx)
	for _, kind := range kinds {
		key := ml.Key{Kind: kind, Method: method}
		res := m.bank.Classify(key, row)
		pred := toPrediction(res)
		resp.Predictions[string(kind)] = pred

		outcome := "ok"
		if res.Err != nil {
			outcome = "error"
			s.logger.Debug("model prediction failed",
				zap.String("model.key", key.String()), zap.Error(res.Err))
		}
		s.observer.ObserveClassification(string(method), string(kind), outcome)
		journal = append(journal, db.Prediction{
			RequestID:   requestID,
			Method:      string(method),
			ModelName:   string(kind),
			Label:       pred.Prediction,
			Confidence:  pred.Confidence,
			Error:       pred.Error,
			InputLength: len(text),
		})
	}

	elapsed := time.Since(start)
	resp.ProcessingTime = elapsed.Seconds()
	s.observer.ObserveClassifyDuration(string(method), elapsed)
	if s.journal != nil {
		if err := s.journal.SavePredictions(context.WithoutCancel(ctx), journal); err != nil {
			s.logger.Warn("journal predictions failed", zap.Error(err))
		}
	}
	return resp, nil
}

func toPrediction(res ml.Result) Prediction {
	if res.Err == nil {
		return Prediction{Prediction: res.Label, Confidence: res.Confidence}
	}
	msg := res.Err.Error()
	if errors.Is(res.Err, ml.ErrUnknownModelKey) || errors.Is(res.Err, ml.ErrNotTrained) {
		msg = unavailableMessage
	}
	return Prediction{Prediction: "Error", Confidence: ml.ErrorConfidence, Error: msg}
}

// Status is safe to call in any state.
func (s *Service) Status() Status {
	st := Status{
		ModelsTrained:       make(map[string]bool),
		VectorizersFitted:   make(map[string]bool),
		AvailableCategories: s.catalog.Names(),
	}
	m := s.ready.Load()
	for _, key := range ml.AllKeys() {
		st.ModelsTrained[key.String()] = m != nil && m.bank.Trained(key)
	}
	for _, method := range vectorize.Methods() {
		st.VectorizersFitted[string(method)] = m != nil && m.vectorizers.IsFitted(method)
	}
	return st
}

// Evaluation returns the report of the successful initialization.
func (s *Service) Evaluation() (Report, error) {
	m := s.ready.Load()
	if m == nil {
		return Report{}, ErrNotInitialized
	}
	return m.report.clone(), nil
}

type nopNotifier struct{}

func (nopNotifier) Publish(monitoring.MessageType, any) error { return nil }

type nopObserver struct{}

func (nopObserver) SetLifecycleState(string)                      {}
func (nopObserver) ObserveTraining(string, string, time.Duration) {}
func (nopObserver) ObserveClassification(string, string, string)  {}
func (nopObserver) ObserveClassifyDuration(string, time.Duration) {}
