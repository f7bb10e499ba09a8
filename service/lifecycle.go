package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pubclass/db"
	"pubclass/ml"
	"pubclass/monitoring"
	"pubclass/pipeline"
	"pubclass/vectorize"
)

// State is the service lifecycle: Uninitialized -> Initializing -> Ready or
// Failed. Failed may be retried; Ready is terminal.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// StartResult tells the caller what Start did.
type StartResult int

const (
	Started StartResult = iota
	AlreadyInitializing
	AlreadyReady
)

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError is the cause of the most recent failed initialization.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// claim moves to Initializing unless a run is in flight or finished.
func (s *Service) claim() (StartResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady:
		return AlreadyReady, false
	case StateInitializing:
		return AlreadyInitializing, false
	}
	s.setStateLocked(StateInitializing, "")
	return Started, true
}

func (s *Service) setStateLocked(state State, message string) {
	s.state = state
	s.observer.SetLifecycleState(string(state))
	_ = s.notifier.Publish(monitoring.LifecycleEvent, monitoring.LifecycleData{State: string(state), Message: message})
}

// Start launches initialization in the background and returns at once.
// The run is detached from ctx cancellation.
func (s *Service) Start(ctx context.Context) StartResult {
	res, ok := s.claim()
	if !ok {
		return res
	}
	go func() {
		_ = s.run(context.WithoutCancel(ctx))
	}()
	return Started
}

// Initialize runs initialization in the caller's goroutine. It is a no-op
// once Ready and fails with ErrInitializing while another run is active.
func (s *Service) Initialize(ctx context.Context) error {
	res, ok := s.claim()
	switch {
	case ok:
		return s.run(ctx)
	case res == AlreadyReady:
		return nil
	default:
		return ErrInitializing
	}
}

func (s *Service) run(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("starting classification service initialization",
		zap.String("source", s.source.Name()), zap.Int("data.samples", s.cfg.SampleSize))

	m, err := s.build(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		s.setStateLocked(StateFailed, err.Error())
		s.logger.Error("failed to initialize classification service", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	s.ready.Store(m)
	s.lastErr = nil
	s.setStateLocked(StateReady, "")
	s.logger.Info("classification service initialized",
		zap.Int("models.trained", len(m.report.Models)-len(m.report.Failures)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (s *Service) step(step, message string) {
	s.logger.Info(message, zap.String("step", step))
	_ = s.notifier.Publish(monitoring.LifecycleEvent, monitoring.LifecycleData{
		State: string(StateInitializing), Step: step, Message: message,
	})
}

// build runs the pipeline: collect, normalize, split, fit, train.
func (s *Service) build(ctx context.Context) (*trained, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := s.logger.With(zap.String("run.id", runID))

	s.step("load", "Loading dataset...")
	records, err := pipeline.Collect(ctx, s.source, s.catalog, s.cfg.SampleSize)
	if err != nil {
		return nil, err
	}

	s.step("preprocess", fmt.Sprintf("Preprocessing %d samples...", len(records)))
	samples, err := pipeline.Prepare(records, s.catalog)
	if err != nil {
		return nil, err
	}
	texts, labels := pipeline.Split(samples)

	trainIdx, testIdx, err := ml.StratifiedSplit(labels, s.cfg.TestRatio, s.cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	trainTexts, trainLabels := pick(texts, labels, trainIdx)
	testTexts, testLabels := pick(texts, labels, testIdx)
	log.Info("dataset split", zap.Int("data.samples", len(samples)),
		zap.Int("data.train", len(trainIdx)), zap.Int("data.test", len(testIdx)))

	s.step("fit", "Fitting vectorizers...")
	set := vectorize.NewSet(s.encoder, s.cfg.Embedding)
	if err := set.Fit(trainTexts); err != nil {
		return nil, err
	}

	s.step("train", "Training models...")
	bank := ml.NewBank(s.catalog.Names(), s.cfg.Classifier)
	report := Report{
		RunID:     runID,
		Samples:   len(samples),
		TrainSize: len(trainIdx),
		TestSize:  len(testIdx),
		Features:  make(map[string]int),
		Models:    make(map[string]ModelReport),
		Failures:  make(map[string]string),
	}

	for _, method := range vectorize.Methods() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mlog := log.With(zap.String("ml.method", string(method)))
		if !set.IsFitted(method) {
			mlog.Warn("vectorizer unavailable, skipping its models")
			s.failMethod(&report, method, "vectorizer not fitted")
			continue
		}
		s.step("train", fmt.Sprintf("Training models with %s...", method))

		x, err := set.TransformBatch(ctx, trainTexts, method)
		if err != nil {
			mlog.Error("transform training split failed", zap.Error(err))
			s.failMethod(&report, method, err.Error())
			continue
		}
		dim, _ := set.Dimension(method)
		report.Features[string(method)] = dim

		var xTest [][]float64
		if s.cfg.Evaluate {
			if xTest, err = set.TransformBatch(ctx, testTexts, method); err != nil {
				mlog.Warn("transform test split failed; skipping evaluation", zap.Error(err))
				xTest = nil
			}
		}

		for _, kind := range ml.Kinds() {
			key := ml.Key{Kind: kind, Method: method}
			mr := s.trainSlot(ctx, mlog, bank, key, x, trainLabels, xTest, testLabels)
			report.Models[key.String()] = mr
			if mr.Error != "" {
				report.Failures[key.String()] = mr.Error
			}
			s.journalTraining(ctx, mlog, runID, key, dim, mr)
		}
	}

	if len(report.Failures) == len(report.Models) {
		return nil, errors.New("no model could be trained")
	}
	report.Duration = time.Since(started)
	report.CompletedAt = time.Now().UTC()
	return &trained{vectorizers: set, bank: bank, report: report}, nil
}

func (s *Service) trainSlot(ctx context.Context, log *zap.Logger, bank *ml.Bank, key ml.Key,
	x [][]float64, y []int, xTest [][]float64, yTest []int) ModelReport {
	log = log.With(zap.String("model.key", key.String()), zap.String("ml.model", string(key.Kind)))
	start := time.Now()
	err := bank.Train(key, x, y)
	elapsed := time.Since(start)
	mr := ModelReport{Samples: len(y), Duration: elapsed}
	training := monitoring.TrainingData{ModelKey: key.String(), Seconds: elapsed.Seconds()}

	if err != nil {
		log.Error("model training failed", zap.Error(err))
		mr.Error = err.Error()
		training.Error = mr.Error
		_ = s.notifier.Publish(monitoring.TrainingEvent, training)
		return mr
	}
	s.observer.ObserveTraining(string(key.Kind), string(key.Method), elapsed)
	log.Info("model trained", zap.Int("data.samples", len(y)), zap.Int("data.features", len(x[0])), zap.Duration("duration", elapsed))

	if xTest != nil && ctx.Err() == nil {
		preds, _, err := bank.Predict(key, xTest)
		if err == nil {
			var scores ml.Scores
			scores, err = ml.Evaluate(yTest, preds)
			if err == nil {
				mr.Scores = &scores
				log.Info("model evaluated", zap.Float64("accuracy", scores.Accuracy),
					zap.Float64("precision", scores.Precision), zap.Float64("recall", scores.Recall))
			}
		}
		if err != nil {
			log.Warn("model evaluation failed", zap.Error(err))
		}
	}
	_ = s.notifier.Publish(monitoring.TrainingEvent, training)
	return mr
}

func (s *Service) failMethod(report *Report, method vectorize.Method, reason string) {
	for _, kind := range ml.Kinds() {
		key := ml.Key{Kind: kind, Method: method}
		report.Models[key.String()] = ModelReport{Error: reason}
		report.Failures[key.String()] = reason
	}
}

func (s *Service) journalTraining(ctx context.Context, log *zap.Logger, runID string, key ml.Key, dim int, mr ModelReport) {
	if s.journal == nil {
		return
	}
	entry := db.TrainingLog{
		RunID:      runID,
		ModelKey:   key.String(),
		ModelName:  string(key.Kind),
		Method:     string(key.Method),
		DataPoints: mr.Samples,
		Features:   dim,
		Duration:   mr.Duration,
		Error:      mr.Error,
	}
	if mr.Scores != nil {
		entry.Evaluated = true
		entry.Accuracy = mr.Scores.Accuracy
		entry.Precision = mr.Scores.Precision
		entry.Recall = mr.Scores.Recall
	}
	if _, err := s.journal.SaveTrainingLog(ctx, entry); err != nil {
		log.Warn("journal training failed", zap.Error(err))
	}
}

func pick(texts []string, labels []int, idx []int) ([]string, []int) {
	outTexts := make([]string, len(idx))
	outLabels := make([]int, len(idx))
	for k, i := range idx {
		outTexts[k] = texts[i]
		outLabels[k] = labels[i]
	}
	return outTexts, outLabels
}
