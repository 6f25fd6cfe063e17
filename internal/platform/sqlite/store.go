// Package sqlite implements the tabular store on an embedded SQLite
// database. Every uploaded dataset gets its own typed data table; the
// active projection is a view re-pointed transactionally, so generated code
// always reads one conventional relation regardless of which dataset is
// active.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vitalstat/vitalstat/internal/domain"
	"github.com/vitalstat/vitalstat/internal/frame"
)

// activeView is the relation the executor binds; it always resolves to the
// currently active dataset's rows.
const activeView = "active_dataset"

// TabularStore is a durable multi-dataset store with a single active
// projection. A write lock serializes registration and activation against
// projection reads: a read started after Activate returns always sees the
// new dataset, never a mix.
type TabularStore struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ domain.DatasetStore = (*TabularStore)(nil)

// Open initializes the store at path, creating the schema if needed.
func Open(path string) (*TabularStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY churn under concurrent projection reads.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		slog.Debug("Failed to set sqlite busy_timeout", "error", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		slog.Debug("Failed to set sqlite journal_mode", "error", err)
	}

	s := &TabularStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("Tabular store ready", "path", path)
	return s, nil
}

// Close releases the underlying database.
func (s *TabularStore) Close() error { return s.db.Close() }

func (s *TabularStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			dataset_id TEXT UNIQUE NOT NULL,
			name       TEXT NOT NULL,
			n_rows     INTEGER NOT NULL,
			n_cols     INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dataset_columns (
			dataset_id TEXT NOT NULL,
			position   INTEGER NOT NULL,
			name       TEXT NOT NULL,
			kind       TEXT NOT NULL,
			PRIMARY KEY (dataset_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS active_state (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			dataset_id TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	return nil
}

// Register persists rows as a new immutable dataset and activates it in the
// same call: uploading is the common path to "what the AI sees next".
func (s *TabularStore) Register(ctx context.Context, name string, rows []map[string]any) (domain.Dataset, error) {
	fr, err := frame.FromRecords(rows)
	if err != nil {
		return domain.Dataset{}, domain.NewError(domain.KindInvalidInput, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	createdAt := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("failed to begin registration: %w", err)
	}
	defer tx.Rollback()

	specs := fr.Schema()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (dataset_id, name, n_rows, n_cols, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, fr.NumRows(), fr.NumCols(), createdAt.Format(time.RFC3339)); err != nil {
		return domain.Dataset{}, fmt.Errorf("failed to insert dataset: %w", err)
	}
	for pos, spec := range specs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dataset_columns (dataset_id, position, name, kind) VALUES (?, ?, ?, ?)`,
			id, pos, spec.Name, spec.Kind.String()); err != nil {
			return domain.Dataset{}, fmt.Errorf("failed to insert column metadata: %w", err)
		}
	}

	if err := createDataTable(ctx, tx, id, fr); err != nil {
		return domain.Dataset{}, err
	}
	// Upload auto-activates inside the same transaction: no window where
	// the dataset exists but a stale projection is readable.
	if err := activateTx(ctx, tx, id); err != nil {
		return domain.Dataset{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Dataset{}, fmt.Errorf("failed to commit registration: %w", err)
	}

	slog.Info("Dataset registered and activated",
		"datasetID", id, "name", name, "rows", fr.NumRows(), "cols", fr.NumCols())
	return domain.Dataset{
		ID:        id,
		Name:      name,
		Columns:   specs,
		NRows:     fr.NumRows(),
		NCols:     fr.NumCols(),
		CreatedAt: createdAt,
		IsActive:  true,
	}, nil
}

// Activate re-points the active projection. Idempotent; strongly ordered
// with projection reads via the store's write lock.
func (s *TabularStore) Activate(ctx context.Context, datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM datasets WHERE dataset_id = ?`, datasetID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up dataset: %w", err)
	}
	if exists == 0 {
		return domain.NewError(domain.KindNotFound, fmt.Sprintf("dataset %q not found", datasetID))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin activation: %w", err)
	}
	defer tx.Rollback()
	if err := activateTx(ctx, tx, datasetID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}
	slog.Info("Dataset activated", "datasetID", datasetID)
	return nil
}

// activateTx swaps the active pointer and the projection view atomically
// with whatever transaction it joins.
func activateTx(ctx context.Context, tx *sql.Tx, datasetID string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO active_state (id, dataset_id) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET dataset_id = excluded.dataset_id`, datasetID); err != nil {
		return fmt.Errorf("failed to set active dataset: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP VIEW IF EXISTS `+activeView); err != nil {
		return fmt.Errorf("failed to drop projection view: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`CREATE VIEW %s AS SELECT * FROM %s`, activeView, quoteIdent(dataTable(datasetID)))); err != nil {
		return fmt.Errorf("failed to create projection view: %w", err)
	}
	return nil
}

// ListWithStatus returns every dataset in registration order with its
// activation flag.
func (s *TabularStore) ListWithStatus(ctx context.Context) ([]domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	activeID, err := s.activeID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, name, n_rows, n_cols, created_at FROM datasets ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var out []domain.Dataset
	for rows.Next() {
		var d domain.Dataset
		var created string
		if err := rows.Scan(&d.ID, &d.Name, &d.NRows, &d.NCols, &created); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		if ts, perr := time.Parse(time.RFC3339, created); perr == nil {
			d.CreatedAt = ts
		} else {
			slog.Warn("Invalid dataset timestamp", "datasetID", d.ID, "created_at", created, "error", perr)
		}
		d.IsActive = d.ID == activeID
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	for i := range out {
		cols, err := s.columnSpecs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Columns = cols
	}
	return out, nil
}

// ActiveProjection materializes the active dataset as a frame, with numeric
// columns in numeric storage no matter how the upload spelled them.
func (s *TabularStore) ActiveProjection(ctx context.Context) (*frame.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	activeID, err := s.activeID(ctx)
	if err != nil {
		return nil, err
	}
	if activeID == "" {
		return nil, domain.NewError(domain.KindDataUnavailable, "no active dataset")
	}
	specs, err := s.columnSpecs(ctx, activeID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+activeView)
	if err != nil {
		return nil, fmt.Errorf("failed to read projection: %w", err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read projection columns: %w", err)
	}
	kinds := make(map[string]frame.Kind, len(specs))
	for _, spec := range specs {
		kinds[spec.Name] = spec.Kind
	}

	var records []map[string]any
	for rows.Next() {
		cells := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan projection row: %w", err)
		}
		record := make(map[string]any, len(colNames))
		for i, name := range colNames {
			record[name] = fromSQL(cells[i], kinds[name])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read projection: %w", err)
	}
	if len(records) == 0 {
		return nil, domain.NewError(domain.KindDataUnavailable, "active dataset has no rows")
	}
	return frame.FromRecordsWithSchema(records, specs)
}

func (s *TabularStore) activeID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT dataset_id FROM active_state WHERE id = 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active dataset: %w", err)
	}
	return id, nil
}

func (s *TabularStore) columnSpecs(ctx context.Context, datasetID string) ([]frame.Spec, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind FROM dataset_columns WHERE dataset_id = ? ORDER BY position`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to read column metadata: %w", err)
	}
	defer rows.Close()

	var specs []frame.Spec
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		specs = append(specs, frame.Spec{Name: name, Kind: frame.KindFromString(kind)})
	}
	return specs, rows.Err()
}

func createDataTable(ctx context.Context, tx *sql.Tx, datasetID string, fr *frame.Frame) error {
	specs := fr.Schema()
	defs := make([]string, len(specs))
	names := make([]string, len(specs))
	marks := make([]string, len(specs))
	for i, spec := range specs {
		defs[i] = quoteIdent(spec.Name) + " " + sqlType(spec.Kind)
		names[i] = quoteIdent(spec.Name)
		marks[i] = "?"
	}
	table := quoteIdent(dataTable(datasetID))

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`CREATE TABLE %s (%s)`, table, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create data table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			table, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < fr.NumRows(); i++ {
		args := make([]any, len(specs))
		for j, spec := range specs {
			args[j] = toSQL(fr.Col(spec.Name).Value(i))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	return nil
}

func sqlType(k frame.Kind) string {
	switch k {
	case frame.Numeric:
		return "REAL"
	case frame.Boolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func toSQL(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		if x {
			return 1
		}
		return 0
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return v
	}
}

// fromSQL converts a scanned cell back into the native value the frame
// builder expects for the column's kind.
func fromSQL(v any, kind frame.Kind) any {
	if v == nil {
		return nil
	}
	switch kind {
	case frame.Numeric:
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		case []byte:
			return string(x)
		}
	case frame.Boolean:
		switch x := v.(type) {
		case int64:
			return x != 0
		case bool:
			return x
		}
	default:
		switch x := v.(type) {
		case []byte:
			return string(x)
		case string:
			return x
		}
	}
	return fmt.Sprint(v)
}

func dataTable(datasetID string) string {
	return "ds_" + strings.ReplaceAll(datasetID, "-", "_")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
