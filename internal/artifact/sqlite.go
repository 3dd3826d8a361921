package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"uplift/internal/logging"
	"uplift/internal/pipeline"
)

// SQLiteStore persists artifacts to a local SQLite database, one table
// per artifact kind with the decoded record kept as a JSON payload.
// Saves are batched in a single transaction so a pipeline stage either
// lands completely or not at all.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

var _ Store = (*SQLiteStore)(nil)

// artifactTables lists every table the store manages, in pipeline order.
var artifactTables = []string{"insights", "themes", "hypotheses", "experiments"}

const tableSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	analysis_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_analysis ON %[1]s(analysis_id);
CREATE INDEX IF NOT EXISTS idx_%[1]s_project ON %[1]s(project_id);
`

// NewSQLiteStore opens (or creates) the artifact database at dbPath and
// ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer. SQLite serializes writes anyway; a second
	// connection would only buy us "database is locked" errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed (%s): %v", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("artifact store ready at %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	for _, table := range artifactTables {
		if _, err := s.db.Exec(fmt.Sprintf(tableSchema, table)); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table, err)
		}
	}
	return nil
}

// record is one row ready for insertion, independent of artifact kind.
type record struct {
	id         string
	analysisID string
	projectID  string
	payload    []byte
}

func (s *SQLiteStore) saveRecords(ctx context.Context, table string, records []record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (id, analysis_id, project_id, payload) VALUES (?, ?, ?, ?)`, table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.id, rec.analysisID, rec.projectID, string(rec.payload)); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s batch: %w", table, err)
	}

	logging.StoreDebug("saved %d records to %s", len(records), table)
	return nil
}

// SaveInsights writes a batch of insights in one transaction.
func (s *SQLiteStore) SaveInsights(ctx context.Context, insights []pipeline.Insight) error {
	records := make([]record, 0, len(insights))
	for _, ins := range insights {
		payload, err := json.Marshal(ins)
		if err != nil {
			return fmt.Errorf("failed to marshal insight %s: %w", ins.ID, err)
		}
		records = append(records, record{ins.ID, ins.AnalysisID, ins.ProjectID, payload})
	}
	return s.saveRecords(ctx, "insights", records)
}

// SaveThemes writes a batch of themes in one transaction.
func (s *SQLiteStore) SaveThemes(ctx context.Context, themes []pipeline.Theme) error {
	records := make([]record, 0, len(themes))
	for _, th := range themes {
		payload, err := json.Marshal(th)
		if err != nil {
			return fmt.Errorf("failed to marshal theme %s: %w", th.ID, err)
		}
		records = append(records, record{th.ID, th.AnalysisID, th.ProjectID, payload})
	}
	return s.saveRecords(ctx, "themes", records)
}

// SaveHypotheses writes a batch of hypotheses in one transaction.
func (s *SQLiteStore) SaveHypotheses(ctx context.Context, hypotheses []pipeline.Hypothesis) error {
	records := make([]record, 0, len(hypotheses))
	for _, hyp := range hypotheses {
		payload, err := json.Marshal(hyp)
		if err != nil {
			return fmt.Errorf("failed to marshal hypothesis %s: %w", hyp.ID, err)
		}
		records = append(records, record{hyp.ID, hyp.AnalysisID, hyp.ProjectID, payload})
	}
	return s.saveRecords(ctx, "hypotheses", records)
}

// SaveExperiments writes a batch of experiments in one transaction.
func (s *SQLiteStore) SaveExperiments(ctx context.Context, experiments []pipeline.Experiment) error {
	records := make([]record, 0, len(experiments))
	for _, exp := range experiments {
		payload, err := json.Marshal(exp)
		if err != nil {
			return fmt.Errorf("failed to marshal experiment %s: %w", exp.ID, err)
		}
		records = append(records, record{exp.ID, exp.AnalysisID, exp.ProjectID, payload})
	}
	return s.saveRecords(ctx, "experiments", records)
}

func (s *SQLiteStore) payloads(ctx context.Context, table, analysisID string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT payload FROM %s WHERE analysis_id = ? ORDER BY rowid`, table), analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		out = append(out, payload)
	}
	return out, rows.Err()
}

// InsightsByAnalysis reads back the insights saved for one analysis, in
// insertion order.
func (s *SQLiteStore) InsightsByAnalysis(ctx context.Context, analysisID string) ([]pipeline.Insight, error) {
	payloads, err := s.payloads(ctx, "insights", analysisID)
	if err != nil {
		return nil, err
	}
	out := make([]pipeline.Insight, 0, len(payloads))
	for _, p := range payloads {
		var ins pipeline.Insight
		if err := json.Unmarshal(p, &ins); err != nil {
			return nil, fmt.Errorf("failed to decode insight: %w", err)
		}
		out = append(out, ins)
	}
	return out, nil
}

// ThemesByAnalysis reads back the themes saved for one analysis.
func (s *SQLiteStore) ThemesByAnalysis(ctx context.Context, analysisID string) ([]pipeline.Theme, error) {
	payloads, err := s.payloads(ctx, "themes", analysisID)
	if err != nil {
		return nil, err
	}
	out := make([]pipeline.Theme, 0, len(payloads))
	for _, p := range payloads {
		var th pipeline.Theme
		if err := json.Unmarshal(p, &th); err != nil {
			return nil, fmt.Errorf("failed to decode theme: %w", err)
		}
		out = append(out, th)
	}
	return out, nil
}

// HypothesesByAnalysis reads back the hypotheses saved for one analysis.
func (s *SQLiteStore) HypothesesByAnalysis(ctx context.Context, analysisID string) ([]pipeline.Hypothesis, error) {
	payloads, err := s.payloads(ctx, "hypotheses", analysisID)
	if err != nil {
		return nil, err
	}
	out := make([]pipeline.Hypothesis, 0, len(payloads))
	for _, p := range payloads {
		var hyp pipeline.Hypothesis
		if err := json.Unmarshal(p, &hyp); err != nil {
			return nil, fmt.Errorf("failed to decode hypothesis: %w", err)
		}
		out = append(out, hyp)
	}
	return out, nil
}

// ExperimentsByAnalysis reads back the experiments saved for one analysis.
func (s *SQLiteStore) ExperimentsByAnalysis(ctx context.Context, analysisID string) ([]pipeline.Experiment, error) {
	payloads, err := s.payloads(ctx, "experiments", analysisID)
	if err != nil {
		return nil, err
	}
	out := make([]pipeline.Experiment, 0, len(payloads))
	for _, p := range payloads {
		var exp pipeline.Experiment
		if err := json.Unmarshal(p, &exp); err != nil {
			return nil, fmt.Errorf("failed to decode experiment: %w", err)
		}
		out = append(out, exp)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
