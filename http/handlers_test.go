package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubclass/db"
	"pubclass/monitoring"
	"pubclass/service"
	"pubclass/vectorize"
)

type fakeService struct {
	state  service.State
	start  service.StartResult
	resp   *service.Response
	err    error
	report *service.Report
	panic  bool

	gotText   string
	gotMethod vectorize.Method
	gotModel  string
	calls     int
}

func (f *fakeService) Classify(_ context.Context, text string, method vectorize.Method, model string) (*service.Response, error) {
	f.calls++
	f.gotText, f.gotMethod, f.gotModel = text, method, model
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeService) Status() service.Status {
	if f.panic {
		panic("status exploded")
	}
	return service.Status{
		ModelsTrained:       map[string]bool{"knn_bow": true},
		VectorizersFitted:   map[string]bool{"bow": true},
		AvailableCategories: []string{"cs", "math"},
	}
}

func (f *fakeService) State() service.State                    { return f.state }
func (f *fakeService) Start(context.Context) service.StartResult { return f.start }

func (f *fakeService) Evaluation() (service.Report, error) {
	if f.report == nil {
		return service.Report{}, service.ErrNotInitialized
	}
	return *f.report, nil
}

type fakeJournal struct {
	training    []db.TrainingLog
	predictions []db.Prediction
	limit       int
	err         error
}

func (f *fakeJournal) LoadTrainingLog(_ context.Context, limit int) ([]db.TrainingLog, error) {
	f.limit = limit
	return f.training, f.err
}

func (f *fakeJournal) RecentPredictions(_ context.Context, limit int) ([]db.Prediction, error) {
	f.limit = limit
	return f.predictions, f.err
}

func newHandler(t *testing.T, svc ClassificationService, deps ...func(*Deps)) http.Handler {
	t.Helper()
	d := Deps{Service: svc}
	for _, fn := range deps {
		fn(&d)
	}
	return NewServer(DefaultServerConfig(), d).Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestRootHandler(t *testing.T) {
	rr := do(newHandler(t, &fakeService{}), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	body := decode[HealthResponse](t, rr)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "Publication Classification API is running", body.Message)
	assert.NotEmpty(t, body.Timestamp)
}

func TestUnknownPathIsNotFound(t *testing.T) {
	rr := do(newHandler(t, &fakeService{}), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		state   service.State
		status  string
		message string
	}{
		{service.StateReady, "ready", "Service is ready to accept requests"},
		{service.StateInitializing, "initializing", "Service is still initializing, please wait..."},
		{service.StateUninitialized, "not_ready", "Service initialization failed or not started"},
		{service.StateFailed, "not_ready", "Service initialization failed or not started"},
	}
	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			rr := do(newHandler(t, &fakeService{state: tc.state}), http.MethodGet, "/health", "")
			require.Equal(t, http.StatusOK, rr.Code)
			body := decode[HealthResponse](t, rr)
			assert.Equal(t, tc.status, body.Status)
			assert.Equal(t, tc.message, body.Message)
		})
	}
}

func TestStatusHandler(t *testing.T) {
	rr := do(newHandler(t, &fakeService{}), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, map[string]any{"knn_bow": true}, body["models_trained"])
	assert.Equal(t, map[string]any{"bow": true}, body["vectorizers_fitted"])
	assert.Equal(t, []any{"cs", "math"}, body["available_categories"])
}

func TestClassifyNotReady(t *testing.T) {
	svc := &fakeService{state: service.StateInitializing}
	rr := do(newHandler(t, svc), http.MethodPost, "/classify", `{"text":"x"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode[ErrorResponse](t, rr)
	assert.Equal(t, "Service Unavailable", body.Error)
	assert.Equal(t, "Service is still initializing, please wait and try again", body.Message)
	assert.NotEmpty(t, body.Timestamp)
	assert.Zero(t, svc.calls)
}

func TestClassifyDefaultsToEmbeddings(t *testing.T) {
	svc := &fakeService{state: service.StateReady, resp: &service.Response{
		InputText:           "quantum groups",
		VectorizationMethod: "embeddings",
		Predictions: map[string]service.Prediction{
			"knn": {Prediction: "math", Confidence: 0.8},
		},
		ProcessingTime: 0.01,
	}}
	rr := do(newHandler(t, svc), http.MethodPost, "/classify", `{"text":"quantum groups","model_name":null}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, vectorize.MethodEmbeddings, svc.gotMethod)
	assert.Equal(t, "", svc.gotModel)
	assert.Equal(t, "quantum groups", svc.gotText)

	body := decode[service.Response](t, rr)
	assert.Equal(t, "math", body.Predictions["knn"].Prediction)
	assert.Equal(t, 0.8, body.Predictions["knn"].Confidence)
}

func TestClassifyPassesMethodAndModel(t *testing.T) {
	svc := &fakeService{state: service.StateReady, resp: &service.Response{}}
	rr := do(newHandler(t, svc), http.MethodPost, "/classify",
		`{"text":"t","vectorization_method":"tfidf","model_name":"decision_tree"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, vectorize.MethodTFIDF, svc.gotMethod)
	assert.Equal(t, "decision_tree", svc.gotModel)
}

func TestClassifyRejectsBadNames(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"method", `{"text":"t","vectorization_method":"word2vec"}`,
			"Invalid vectorization method. Must be one of: [bow tfidf embeddings]"},
		{"empty method", `{"text":"t","vectorization_method":""}`,
			"Invalid vectorization method. Must be one of: [bow tfidf embeddings]"},
		{"model", `{"text":"t","model_name":"svm"}`,
			"Invalid model name. Must be one of: [kmeans knn decision_tree naive_bayes]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{state: service.StateReady}
			rr := do(newHandler(t, svc), http.MethodPost, "/classify", tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tc.message, decode[ErrorResponse](t, rr).Message)
			assert.Zero(t, svc.calls)
		})
	}
}

func TestClassifyRejectsInvalidBodies(t *testing.T) {
	for _, body := range []string{`{}`, `{"text":5}`, `not json`, `["text"]`, `{"text":"t","model_name":3}`} {
		svc := &fakeService{state: service.StateReady}
		rr := do(newHandler(t, svc), http.MethodPost, "/classify", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, body)
		assert.Equal(t, "Unprocessable Entity", decode[ErrorResponse](t, rr).Error)
		assert.Zero(t, svc.calls)
	}
}

func TestClassifyBodyTooLarge(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 16
	h := NewServer(cfg, Deps{Service: &fakeService{state: service.StateReady}}).Handler()
	rr := do(h, http.MethodPost, "/classify", `{"text":"`+strings.Repeat("a", 64)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestClassifyErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: %w", service.ErrVectorization, errors.New("encoder offline")), http.StatusUnprocessableEntity},
		{service.ErrNotInitialized, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &fakeService{state: service.StateReady, err: tc.err}
		rr := do(newHandler(t, svc), http.MethodPost, "/classify", `{"text":"t","vectorization_method":"bow"}`)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
	}

	svc := &fakeService{state: service.StateReady, err: errors.New("boom")}
	rr := do(newHandler(t, svc), http.MethodPost, "/classify", `{"text":"t"}`)
	body := decode[ErrorResponse](t, rr)
	assert.Equal(t, "Internal Server Error", body.Error)
	assert.Equal(t, "boom", body.Message)
}

func TestInitializeMessages(t *testing.T) {
	cases := map[service.StartResult]string{
		service.Started:             "Initialization started in background",
		service.AlreadyInitializing: "Service is already initializing",
		service.AlreadyReady:        "Service already initialized",
	}
	for result, message := range cases {
		rr := do(newHandler(t, &fakeService{start: result}), http.MethodPost, "/initialize", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, message, decode[MessageResponse](t, rr).Message)
	}

	rr := do(newHandler(t, &fakeService{}), http.MethodGet, "/initialize", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestTrainingHandler(t *testing.T) {
	journal := &fakeJournal{training: []db.TrainingLog{{ModelKey: "knn_bow", DataPoints: 80}}}
	report := &service.Report{RunID: "run-1", Samples: 100}
	svc := &fakeService{state: service.StateReady, report: report}
	h := newHandler(t, svc, func(d *Deps) { d.Journal = journal })

	rr := do(h, http.MethodGet, "/training?limit=3", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[TrainingResponse](t, rr)
	assert.Equal(t, "ready", body.State)
	require.NotNil(t, body.Evaluation)
	assert.Equal(t, "run-1", body.Evaluation.RunID)
	require.Len(t, body.History, 1)
	assert.Equal(t, "knn_bow", body.History[0].ModelKey)
	assert.Equal(t, 3, journal.limit)

	rr = do(newHandler(t, &fakeService{}), http.MethodGet, "/training", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode[TrainingResponse](t, rr)
	assert.Nil(t, body.Evaluation)
	assert.Empty(t, body.History)
}

func TestHistoryHandler(t *testing.T) {
	rr := do(newHandler(t, &fakeService{}), http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, []any{}, body["predictions"])
	assert.Equal(t, float64(0), body["count"])

	journal := &fakeJournal{predictions: []db.Prediction{{ModelName: "knn", Label: "cs"}}}
	h := newHandler(t, &fakeService{}, func(d *Deps) { d.Journal = journal })
	rr = do(h, http.MethodGet, "/history?limit=9999", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, maxHistoryLimit, journal.limit)
	assert.Equal(t, float64(1), decode[map[string]any](t, rr)["count"])

	rr = do(h, http.MethodGet, "/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	journal.err = errors.New("disk full")
	rr = do(h, http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	rr := do(newHandler(t, &fakeService{panic: true}), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode[ErrorResponse](t, rr)
	assert.Equal(t, "Internal Server Error", body.Error)
}

func TestRequestIDHeader(t *testing.T) {
	h := newHandler(t, &fakeService{})
	rr := do(h, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	h := newHandler(t, &fakeService{})

	req := httptest.NewRequest(http.MethodOptions, "/classify", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "content-type", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := monitoring.NewMetrics()
	h := newHandler(t, &fakeService{state: service.StateReady}, func(d *Deps) { d.Metrics = metrics })

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", "").Code)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/", "").Code)

	rr := do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `pubclass_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, body, `pubclass_http_requests_total{method="GET",route="/",status="200"} 1`)

	rr = do(newHandler(t, &fakeService{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
