package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/decode/internal/evaluation"
)

// Evaluation is a persisted match between an output and a target emitter
// set. Undefined metrics are NaN in memory and NULL in the table.
type Evaluation struct {
	EvaluationID string             `json:"evaluation_id"`
	Name         string             `json:"name"`
	OutputPath   string             `json:"output_path"`
	TargetPath   string             `json:"target_path"`
	Method       string             `json:"method"`
	XYUnit       string             `json:"xy_unit"`
	Metrics      evaluation.Metrics `json:"metrics"`
	ParamsJSON   json.RawMessage    `json:"params_json,omitempty"`
	CreatedAt    int64              `json:"created_at"`
}

// EvaluationStore provides persistence for evaluation results.
type EvaluationStore struct {
	db *sql.DB
}

// NewEvaluationStore creates a new EvaluationStore.
func NewEvaluationStore(db *sql.DB) *EvaluationStore {
	return &EvaluationStore{db: db}
}

const evaluationColumns = `evaluation_id, name, output_path, target_path, method, xy_unit,
	tp, fp, fn, precision, recall, jaccard, f1,
	rmse_lat, rmse_ax, rmse_vol, mad_lat, mad_ax, mad_vol, eff_lat, eff_ax,
	params_json, created_at`

// nullable maps NaN onto SQL NULL.
func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// Insert persists a new evaluation. If EvaluationID is empty, a UUID is generated.
func (s *EvaluationStore) Insert(eval *Evaluation) error {
	if eval.EvaluationID == "" {
		eval.EvaluationID = uuid.New().String()
	}
	if eval.CreatedAt == 0 {
		eval.CreatedAt = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(eval.ParamsJSON) > 0 {
		paramsStr = string(eval.ParamsJSON)
	}

	m := eval.Metrics
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`INSERT INTO evaluations (`+evaluationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			eval.EvaluationID, eval.Name, eval.OutputPath, eval.TargetPath, eval.Method, eval.XYUnit,
			m.TP, m.FP, m.FN,
			nullable(m.Precision), nullable(m.Recall), nullable(m.Jaccard), nullable(m.F1),
			nullable(m.RMSELat), nullable(m.RMSEAx), nullable(m.RMSEVol),
			nullable(m.MADLat), nullable(m.MADAx), nullable(m.MADVol),
			nullable(m.EffLat), nullable(m.EffAx),
			paramsStr, eval.CreatedAt,
		)
		return err
	})
}

// List returns evaluations ordered by creation time descending. A non-empty
// name restricts the result to that name.
func (s *EvaluationStore) List(name string) ([]*Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations`
	var args []interface{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var evals []*Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// Get returns a single evaluation by ID.
func (s *EvaluationStore) Get(evaluationID string) (*Evaluation, error) {
	row := s.db.QueryRow(`SELECT `+evaluationColumns+` FROM evaluations WHERE evaluation_id = ?`, evaluationID)
	e, err := scanEvaluation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("evaluation %s not found", evaluationID)
		}
		return nil, fmt.Errorf("scan evaluation: %w", err)
	}
	return e, nil
}

// Delete removes an evaluation by ID.
func (s *EvaluationStore) Delete(evaluationID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM evaluations WHERE evaluation_id = ?`, evaluationID)
		if err != nil {
			return fmt.Errorf("delete evaluation: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("evaluation %s not found", evaluationID)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvaluation(row scanner) (*Evaluation, error) {
	var e Evaluation
	var paramsStr sql.NullString
	var precision, recall, jaccard, f1 sql.NullFloat64
	var rmseLat, rmseAx, rmseVol, madLat, madAx, madVol sql.NullFloat64
	var effLat, effAx sql.NullFloat64
	err := row.Scan(
		&e.EvaluationID, &e.Name, &e.OutputPath, &e.TargetPath, &e.Method, &e.XYUnit,
		&e.Metrics.TP, &e.Metrics.FP, &e.Metrics.FN,
		&precision, &recall, &jaccard, &f1,
		&rmseLat, &rmseAx, &rmseVol, &madLat, &madAx, &madVol,
		&effLat, &effAx,
		&paramsStr, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Metrics.Precision = orNaN(precision)
	e.Metrics.Recall = orNaN(recall)
	e.Metrics.Jaccard = orNaN(jaccard)
	e.Metrics.F1 = orNaN(f1)
	e.Metrics.RMSELat = orNaN(rmseLat)
	e.Metrics.RMSEAx = orNaN(rmseAx)
	e.Metrics.RMSEVol = orNaN(rmseVol)
	e.Metrics.MADLat = orNaN(madLat)
	e.Metrics.MADAx = orNaN(madAx)
	e.Metrics.MADVol = orNaN(madVol)
	e.Metrics.EffLat = orNaN(effLat)
	e.Metrics.EffAx = orNaN(effAx)
	if paramsStr.Valid {
		e.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &e, nil
}
