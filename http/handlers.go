package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pubclass/db"
	"pubclass/logger"
	"pubclass/monitoring"
	"pubclass/service"
	"pubclass/vectorize"
)

// ClassificationService is the part of service.Service the handlers use.
type ClassificationService interface {
	Classify(ctx context.Context, text string, method vectorize.Method, modelName string) (*service.Response, error)
	Status() service.Status
	State() service.State
	Start(ctx context.Context) service.StartResult
	Evaluation() (service.Report, error)
}

// Journal reads the persisted training and prediction history.
type Journal interface {
	LoadTrainingLog(ctx context.Context, limit int) ([]db.TrainingLog, error)
	RecentPredictions(ctx context.Context, limit int) ([]db.Prediction, error)
}

// HealthResponse is returned by / and /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// MessageResponse is returned by /initialize.
type MessageResponse struct {
	Message string `json:"message"`
}

// TrainingResponse is returned by /training.
type TrainingResponse struct {
	State      string           `json:"state"`
	Evaluation *service.Report  `json:"evaluation,omitempty"`
	History    []db.TrainingLog `json:"history"`
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type api struct {
	svc     ClassificationService
	journal Journal
	metrics *monitoring.Metrics
	hub     *monitoring.Hub
	logger  *zap.Logger
}

// registerHandlers 注册所有处理器
func registerHandlers(mux *http.ServeMux, a *api) {
	a.handle(mux, "GET /{$}", a.handleRoot)
	a.handle(mux, "GET /health", a.handleHealth)
	a.handle(mux, "GET /status", a.handleStatus)
	a.handle(mux, "POST /classify", a.handleClassify)
	a.handle(mux, "POST /initialize", a.handleInitialize)
	a.handle(mux, "GET /training", a.handleTraining)
	a.handle(mux, "GET /history", a.handleHistory)

	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
	if a.hub != nil {
		mux.Handle("GET /ws/status", a.hub)
	}
}

// handle registers h and records its latency under the route path.
func (a *api) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	route := pattern[strings.IndexByte(pattern, ' ')+1:]
	route = strings.TrimSuffix(route, "{$}")
	mux.Handle(pattern, a.instrument(route, h))
}

func (a *api) instrument(route string, next http.Handler) http.Handler {
	if a.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		a.metrics.ObserveHTTP(r.Method, route, wrapped.statusCode, time.Since(start))
	})
}

func (a *api) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Message:   "Publication Classification API is running",
		Timestamp: timestamp(),
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Timestamp: timestamp()}
	switch a.svc.State() {
	case service.StateReady:
		resp.Status = "ready"
		resp.Message = "Service is ready to accept requests"
	case service.StateInitializing:
		resp.Status = "initializing"
		resp.Message = "Service is still initializing, please wait..."
	default:
		resp.Status = "not_ready"
		resp.Message = "Service initialization failed or not started"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.svc.Status())
}

func (a *api) handleClassify(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	req, err := decodeClassifyRequest(raw)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if a.svc.State() != service.StateReady {
		respondError(w, http.StatusServiceUnavailable, notReadyMessage)
		return
	}
	method, err := req.method()
	if err != nil {
		respondError(w, http.StatusBadRequest, invalidMethodMessage())
		return
	}
	model, err := req.model()
	if err != nil {
		respondError(w, http.StatusBadRequest, invalidModelMessage())
		return
	}

	resp, err := a.svc.Classify(r.Context(), req.Text, method, model)
	if err != nil {
		status, message := statusForError(err)
		a.logger.Error("classification error",
			zap.String("request_id", logger.RequestID(r.Context())),
			zap.String("ml.method", string(method)),
			zap.Int("status", status),
			zap.Error(err))
		respondError(w, status, message)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *api) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var message string
	switch a.svc.Start(context.WithoutCancel(r.Context())) {
	case service.AlreadyReady:
		message = "Service already initialized"
	case service.AlreadyInitializing:
		message = "Service is already initializing"
	default:
		message = "Initialization started in background"
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: message})
}

func (a *api) handleTraining(w http.ResponseWriter, r *http.Request) {
	resp := TrainingResponse{State: string(a.svc.State()), History: []db.TrainingLog{}}
	if report, err := a.svc.Evaluation(); err == nil {
		resp.Evaluation = &report
	}
	if a.journal != nil {
		limit, err := parseLimit(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		history, err := a.journal.LoadTrainingLog(r.Context(), limit)
		if err != nil {
			a.logger.Error("load training log failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if history != nil {
			resp.History = history
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	predictions := []db.Prediction{}
	if a.journal != nil {
		rows, err := a.journal.RecentPredictions(r.Context(), limit)
		if err != nil {
			a.logger.Error("load predictions failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rows != nil {
			predictions = rows
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"predictions": predictions,
		"count":       len(predictions),
		"timestamp":   timestamp(),
	})
}

func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(limit, maxHistoryLimit), nil
}
