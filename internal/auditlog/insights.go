package auditlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// InsightsSink appends run summaries to a SQLite table. The sink is
// best-effort by contract: a failure to record an insight is logged and
// swallowed, never surfaced to the pipeline.
type InsightsSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenInsights opens (and if needed initializes) the insights database at
// the given path.
func OpenInsights(path string, logger *zap.Logger) (*InsightsSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create insights directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open insights database: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		category TEXT NOT NULL,
		count INTEGER NOT NULL,
		details TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_insights_category ON insights(category);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize insights schema: %w", err)
	}
	return &InsightsSink{db: db, logger: logger}, nil
}

// Record appends one insight row. Errors are logged, not returned.
func (s *InsightsSink) Record(category string, count int, details any) {
	blob, err := json.Marshal(details)
	if err != nil {
		s.logger.Warn("insights: marshal details failed", zap.Error(err))
		blob = []byte("{}")
	}
	_, err = s.db.Exec(
		`INSERT INTO insights (timestamp, category, count, details) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), category, count, string(blob),
	)
	if err != nil {
		s.logger.Warn("insights: append failed", zap.String("category", category), zap.Error(err))
	}
}

// Close releases the underlying database handle.
func (s *InsightsSink) Close() error {
	return s.db.Close()
}
