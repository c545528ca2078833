package predlog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"auditrisk/ml"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the log in a SQLite table; Export renders it as a workbook.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	// one connection serialises writers the same way the workbook store does
	db.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS prediction_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        audit_risk REAL,
        inherent_risk REAL,
        score REAL,
        total REAL,
        money_value REAL,
        predicted_risk TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &SQLiteStore{path: path, db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f := rec.Features
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO prediction_log (audit_risk, inherent_risk, score, total, money_value, predicted_risk)
        VALUES (?, ?, ?, ?, ?, ?)`,
		f.AuditRisk, f.InherentRisk, f.Score, f.Total, f.MoneyValue, rec.PredictedRisk)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT audit_risk, inherent_risk, score, total, money_value, predicted_risk
        FROM prediction_log
        ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		// SQLite stores NaN as NULL
		values := make([]sql.NullFloat64, len(ml.FeatureNames()))
		dest := make([]interface{}, 0, len(values)+1)
		for i := range values {
			dest = append(dest, &values[i])
		}
		var rec Record
		dest = append(dest, &rec.PredictedRisk)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		vector := make([]float64, len(values))
		for i, v := range values {
			vector[i] = math.NaN()
			if v.Valid {
				vector[i] = v.Float64
			}
		}
		features, err := ml.FeaturesFromVector(vector)
		if err != nil {
			return nil, err
		}
		rec.Features = features
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Exists reports whether at least one prediction has been logged.
func (s *SQLiteStore) Exists() bool {
	var present bool
	err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM prediction_log)`).Scan(&present)
	return err == nil && present
}

func (s *SQLiteStore) Export(ctx context.Context, w io.Writer) error {
	records, err := s.ReadAll(ctx)
	if err != nil {
		return err
	}
	return writeWorkbook(w, records)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
