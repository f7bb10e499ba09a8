package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubclass/vectorize"
)

var abc = []string{"A", "B", "C"}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "decision_tree_tfidf", Key{Kind: KindDecisionTree, Method: vectorize.MethodTFIDF}.String())
	assert.Len(t, AllKeys(), 12)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("naive_bayes")
	require.NoError(t, err)
	assert.Equal(t, KindNaiveBayes, k)
	assert.True(t, k.Probabilistic())
	assert.False(t, KindKMeans.Probabilistic())

	_, err = ParseKind("svm")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestBankTrainsEverySlot(t *testing.T) {
	x, y := blobs(threeCentres, 5)
	bank := NewBank(abc, Config{Seed: 42})

	for key, trained := range bank.Status() {
		assert.False(t, trained, key.String())
	}
	for _, key := range AllKeys() {
		require.NoError(t, bank.Train(key, x, y), key.String())
	}

	queries := [][]float64{{0, 0.1}, {10, 10}, {-10, 10}, {5, 5}}
	for _, key := range AllKeys() {
		assert.True(t, bank.Trained(key))
		preds, conf, err := bank.Predict(key, queries)
		require.NoError(t, err, key.String())
		assert.Len(t, preds, len(queries))
		assert.Len(t, conf, len(queries))
		for _, c := range conf {
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 1.0)
		}
		assert.Equal(t, []int{0, 1, 2}, preds[:3], key.String())
	}
}

func TestBankClusterMajority(t *testing.T) {
	// Three well separated groups of four. The group at the origin carries
	// three A and one B, so its cluster must map to A.
	x := [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1}, {0.1, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1}, {10.1, 10.1},
		{-10, 10}, {-10.1, 10}, {-10, 10.1}, {-10.1, 10.1},
	}
	y := []int{0, 0, 0, 1, 1, 1, 1, 1, 2, 2, 2, 2}
	key := Key{Kind: KindKMeans, Method: vectorize.MethodBoW}

	bank := NewBank(abc, Config{Seed: 42})
	require.NoError(t, bank.Train(key, x, y))

	clusters, err := bank.ClusterLabels(key)
	require.NoError(t, err)
	require.Len(t, clusters, 3)
	for c := 0; c < 3; c++ {
		assert.Contains(t, clusters, c)
	}

	label, conf, err := bank.PredictSingle(key, []float64{0.05, 0.05})
	require.NoError(t, err)
	assert.Equal(t, "A", label)
	assert.Equal(t, ClusterConfidence, conf)

	label, _, err = bank.PredictSingle(key, []float64{10, 10})
	require.NoError(t, err)
	assert.Equal(t, "B", label)
}

func TestBankErrors(t *testing.T) {
	bank := NewBank(abc, Config{})
	key := Key{Kind: KindKNN, Method: vectorize.MethodTFIDF}

	_, _, err := bank.Predict(key, [][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotTrained)

	unknown := Key{Kind: "svm", Method: vectorize.MethodBoW}
	_, _, err = bank.Predict(unknown, [][]float64{{1}})
	assert.ErrorIs(t, err, ErrUnknownModelKey)
	assert.ErrorIs(t, bank.Train(unknown, [][]float64{{1}}, []int{0}), ErrUnknownModelKey)
	assert.ErrorIs(t, bank.Register(unknown), ErrUnknownModel)

	res := bank.Classify(key, []float64{1})
	assert.ErrorIs(t, res.Err, ErrNotTrained)
	assert.Equal(t, ErrorConfidence, res.Confidence)

	_, err = bank.ClusterLabels(key)
	assert.ErrorIs(t, err, ErrNotTrained)

	// Too few rows for k=5 leaves the slot untrained.
	assert.ErrorIs(t, bank.Train(key, [][]float64{{1}, {2}}, []int{0, 1}), ErrTooFewSamples)
	assert.False(t, bank.Trained(key))

	assert.Error(t, bank.Train(key, [][]float64{{1}}, []int{7}))
}

func TestBankRegisterResetsSlot(t *testing.T) {
	x, y := blobs(threeCentres, 3)
	bank := NewBank(abc, Config{})
	key := Key{Kind: KindNaiveBayes, Method: vectorize.MethodEmbeddings}
	require.NoError(t, bank.Train(key, x, y))
	assert.True(t, bank.Trained(key))

	require.NoError(t, bank.Register(key))
	assert.False(t, bank.Trained(key))
}

func TestBankClassifyResult(t *testing.T) {
	x, y := blobs(threeCentres, 4)
	bank := NewBank(abc, Config{})
	key := Key{Kind: KindDecisionTree, Method: vectorize.MethodBoW}
	require.NoError(t, bank.Train(key, x, y))

	res := bank.Classify(key, []float64{-10, 10})
	require.NoError(t, res.Err)
	assert.Equal(t, "C", res.Label)
	assert.Equal(t, 1.0, res.Confidence)
}
