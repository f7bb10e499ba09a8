// Package db journals training runs and served predictions in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrClosed = errors.New("database not initialized")

const schema = `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        model_key VARCHAR(50) NOT NULL,
        model_name VARCHAR(30) NOT NULL,
        method VARCHAR(20) NOT NULL,
        data_points INTEGER,
        features INTEGER,
        duration_ms INTEGER,
        accuracy REAL,
        precision REAL,
        recall REAL,
        error TEXT DEFAULT '',
        trained_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_training_log_run ON training_log(run_id);
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT DEFAULT '',
        method VARCHAR(20) NOT NULL,
        model_name VARCHAR(30) NOT NULL,
        predicted_label VARCHAR(30) NOT NULL,
        confidence REAL,
        error TEXT DEFAULT '',
        input_length INTEGER,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
`

// Store wraps a SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection also keeps :memory: shared.
	database.SetMaxOpenConns(1)
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// TrainingLog is one trained model slot. Scores are zero unless Evaluated.
type TrainingLog struct {
	ID         int64         `json:"id"`
	RunID      string        `json:"run_id"`
	ModelKey   string        `json:"model_key"`
	ModelName  string        `json:"model_name"`
	Method     string        `json:"method"`
	DataPoints int           `json:"data_points"`
	Features   int           `json:"features"`
	Duration   time.Duration `json:"duration"`
	Evaluated  bool          `json:"evaluated"`
	Accuracy   float64       `json:"accuracy"`
	Precision  float64       `json:"precision"`
	Recall     float64       `json:"recall"`
	Error      string        `json:"error,omitempty"`
	TrainedAt  time.Time     `json:"trained_at"`
}

func (s *Store) SaveTrainingLog(ctx context.Context, entry TrainingLog) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now().UTC()
	}
	var accuracy, precision, recall sql.NullFloat64
	if entry.Evaluated {
		accuracy = sql.NullFloat64{Float64: entry.Accuracy, Valid: true}
		precision = sql.NullFloat64{Float64: entry.Precision, Valid: true}
		recall = sql.NullFloat64{Float64: entry.Recall, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            run_id, model_key, model_name, method, data_points, features,
            duration_ms, accuracy, precision, recall, error, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		entry.RunID, entry.ModelKey, entry.ModelName, entry.Method, entry.DataPoints, entry.Features,
		entry.Duration.Milliseconds(), accuracy, precision, recall, entry.Error, entry.TrainedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LoadTrainingLog returns the newest entries first. limit <= 0 means all.
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, run_id, model_key, model_name, method, data_points, features,
               duration_ms, accuracy, precision, recall, error, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var (
			log                         TrainingLog
			durationMs                  int64
			accuracy, precision, recall sql.NullFloat64
		)
		if err := rows.Scan(&log.ID, &log.RunID, &log.ModelKey, &log.ModelName, &log.Method, &log.DataPoints,
			&log.Features, &durationMs, &accuracy, &precision, &recall, &log.Error, &log.TrainedAt); err != nil {
			return nil, err
		}
		log.Duration = time.Duration(durationMs) * time.Millisecond
		log.Evaluated = accuracy.Valid
		log.Accuracy, log.Precision, log.Recall = accuracy.Float64, precision.Float64, recall.Float64
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// Prediction is one served model prediction.
type Prediction struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id,omitempty"`
	Method      string    `json:"method"`
	ModelName   string    `json:"model_name"`
	Label       string    `json:"prediction"`
	Confidence  float64   `json:"confidence"`
	Error       string    `json:"error,omitempty"`
	InputLength int       `json:"input_length"`
	CreatedAt   time.Time `json:"created_at"`
}

// SavePredictions writes a batch in one transaction.
func (s *Store) SavePredictions(ctx context.Context, predictions []Prediction) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if len(predictions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO predictions (
            request_id, method, model_name, predicted_label, confidence, error, input_length, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range predictions {
		created := p.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, p.RequestID, p.Method, p.ModelName, p.Label, p.Confidence, p.Error, p.InputLength, created); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]Prediction, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, request_id, method, model_name, predicted_label, confidence, error, input_length, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.ID, &p.RequestID, &p.Method, &p.ModelName, &p.Label, &p.Confidence, &p.Error, &p.InputLength, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
