package ml

import (
	"fmt"
	"sync"

	"pubclass/vectorize"
)

// Config holds classifier hyper-parameters shared by every slot.
type Config struct {
	// Clusters defaults to the number of categories.
	Clusters      int
	Neighbors     int
	Seed          int64
	MaxDepth      int
	KMeansMaxIter int
}

type slot struct {
	model Classifier
	// proba is set for kinds that report a posterior.
	proba  ProbabilisticClassifier
	kmeans *KMeans

	clusterLabels map[int]int
	trained       bool
}

// Bank owns one slot per (classifier, method) key. Training a key replaces
// its slot; the previous model is discarded.
type Bank struct {
	mu         sync.RWMutex
	categories []string
	cfg        Config
	slots      map[Key]*slot
}

// NewBank registers an untrained slot for every key in AllKeys.
func NewBank(categories []string, cfg Config) *Bank {
	if cfg.Clusters <= 0 {
		cfg.Clusters = len(categories)
	}
	if cfg.Neighbors <= 0 {
		cfg.Neighbors = 5
	}
	b := &Bank{
		categories: append([]string(nil), categories...),
		cfg:        cfg,
		slots:      make(map[Key]*slot),
	}
	for _, key := range AllKeys() {
		b.slots[key] = b.newSlot(key)
	}
	return b
}

func (b *Bank) newSlot(key Key) *slot {
	switch key.Kind {
	case KindKMeans:
		km := NewKMeans(b.cfg.Clusters, b.cfg.Seed)
		if b.cfg.KMeansMaxIter > 0 {
			km.MaxIter = b.cfg.KMeansMaxIter
		}
		return &slot{model: km, kmeans: km}
	case KindKNN:
		m := NewKNN(b.cfg.Neighbors)
		return &slot{model: m, proba: m}
	case KindDecisionTree:
		m := NewDecisionTree()
		m.MaxDepth = b.cfg.MaxDepth
		return &slot{model: m, proba: m}
	default:
		m := NewGaussianNB()
		return &slot{model: m, proba: m}
	}
}

// Register installs a fresh untrained slot under key.
func (b *Bank) Register(key Key) error {
	if _, err := ParseKind(string(key.Kind)); err != nil {
		return err
	}
	if _, err := vectorize.ParseMethod(string(key.Method)); err != nil {
		return err
	}
	b.mu.Lock()
	b.slots[key] = b.newSlot(key)
	b.mu.Unlock()
	return nil
}

// Train fits the slot at key. For k-means the training assignments are
// turned into a cluster to majority-label map.
func (b *Bank) Train(key Key, features [][]float64, labels []int) error {
	b.mu.RLock()
	_, ok := b.slots[key]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModelKey, key)
	}
	if _, err := validate(features, labels); err != nil {
		return err
	}
	for _, l := range labels {
		if l >= len(b.categories) {
			return fmt.Errorf("label %d outside %d categories", l, len(b.categories))
		}
	}

	s := b.newSlot(key)
	if s.kmeans != nil {
		assign, err := s.kmeans.FitPredict(features)
		if err != nil {
			return err
		}
		s.clusterLabels = majorityLabels(assign, labels, s.kmeans.K)
	} else if err := s.model.Fit(features, labels); err != nil {
		return err
	}
	s.trained = true

	b.mu.Lock()
	b.slots[key] = s
	b.mu.Unlock()
	return nil
}

func (b *Bank) trainedSlot(key Key) (*slot, error) {
	b.mu.RLock()
	s, ok := b.slots[key]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModelKey, key)
	}
	if !s.trained {
		return nil, fmt.Errorf("%w: %s", ErrNotTrained, key)
	}
	return s, nil
}

// Predict returns a label id and a confidence in [0,1] per row.
func (b *Bank) Predict(key Key, features [][]float64) ([]int, []float64, error) {
	s, err := b.trainedSlot(key)
	if err != nil {
		return nil, nil, err
	}
	conf := make([]float64, len(features))
	switch {
	case s.kmeans != nil:
		clusters, err := s.kmeans.Predict(features)
		if err != nil {
			return nil, nil, err
		}
		preds := make([]int, len(clusters))
		for i, c := range clusters {
			preds[i] = s.clusterLabels[c]
			conf[i] = ClusterConfidence
		}
		return preds, conf, nil
	case s.proba != nil:
		probas, err := s.proba.PredictProba(features)
		if err != nil {
			return nil, nil, err
		}
		preds := make([]int, len(probas))
		for i, p := range probas {
			preds[i] = argmax(p)
			conf[i] = p[preds[i]]
		}
		return preds, conf, nil
	default:
		preds, err := s.model.Predict(features)
		if err != nil {
			return nil, nil, err
		}
		for i := range conf {
			conf[i] = DefaultConfidence
		}
		return preds, conf, nil
	}
}

// PredictSingle classifies one row and resolves the category name.
func (b *Bank) PredictSingle(key Key, row []float64) (string, float64, error) {
	preds, conf, err := b.Predict(key, [][]float64{row})
	if err != nil {
		return "", 0, err
	}
	if len(preds) == 0 {
		return "", 0, ErrEmptyPrediction
	}
	id := preds[0]
	if id < 0 || id >= len(b.categories) {
		return "", 0, fmt.Errorf("predicted label %d outside %d categories", id, len(b.categories))
	}
	return b.categories[id], conf[0], nil
}

// Classify is PredictSingle folded into a Result.
func (b *Bank) Classify(key Key, row []float64) Result {
	label, confidence, err := b.PredictSingle(key, row)
	if err != nil {
		return Result{Confidence: ErrorConfidence, Err: err}
	}
	return Result{Label: label, Confidence: confidence}
}

// Trained reports whether key has a trained slot.
func (b *Bank) Trained(key Key) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.slots[key]
	return ok && s.trained
}

// Status returns the trained flag of every registered key.
func (b *Bank) Status() map[Key]bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Key]bool, len(b.slots))
	for key, s := range b.slots {
		out[key] = s.trained
	}
	return out
}

// ClusterLabels returns the cluster to label-id map of a trained k-means slot.
func (b *Bank) ClusterLabels(key Key) (map[int]int, error) {
	s, err := b.trainedSlot(key)
	if err != nil {
		return nil, err
	}
	if s.kmeans == nil {
		return nil, fmt.Errorf("%s is not a clustering model", key)
	}
	out := make(map[int]int, len(s.clusterLabels))
	for c, l := range s.clusterLabels {
		out[c] = l
	}
	return out, nil
}

// Categories returns label names indexed by id.
func (b *Bank) Categories() []string {
	return append([]string(nil), b.categories...)
}
