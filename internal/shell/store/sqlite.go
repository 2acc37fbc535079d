package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/d2c/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// Every connection to :memory: is a separate database.
	if strings.HasPrefix(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID              string  `db:"id"`
	Trigger         string  `db:"trigger_source"`
	StartedAt       string  `db:"started_at"`
	FinishedAt      *string `db:"finished_at"`
	Success         bool    `db:"success"`
	Message         string  `db:"message"`
	OutputDir       string  `db:"output_dir"`
	ContainerCount  int     `db:"container_count"`
	SkippedCount    int     `db:"skipped_count"`
	DocumentCount   int     `db:"document_count"`
	FailedDocuments int     `db:"failed_documents"`
	Files           string  `db:"files"`
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.db, run)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.db, run)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.db, id)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	return listRuns(ctx, s.db, opts)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*domain.Run, error) {
	return latestRun(ctx, s.db)
}

func (s *SQLiteStore) PruneRuns(ctx context.Context, keep int) (int, error) {
	return pruneRuns(ctx, s.db, keep)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	return listRuns(ctx, s.tx, opts)
}

func (s *txSQLiteStore) LatestRun(ctx context.Context) (*domain.Run, error) {
	return latestRun(ctx, s.tx)
}

func (s *txSQLiteStore) PruneRuns(ctx context.Context, keep int) (int, error) {
	return pruneRuns(ctx, s.tx, keep)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func runToRow(op string, run *domain.Run) (map[string]any, error) {
	files := run.Files
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, NewStoreError(op, "run", run.ID, "failed to serialize files", ErrInvalidData)
	}

	var finishedAt *string
	if run.FinishedAt != nil {
		f := run.FinishedAt.UTC().Format(timeLayout)
		finishedAt = &f
	}

	return map[string]any{
		"id":               run.ID,
		"trigger_source":   string(run.Trigger),
		"started_at":       run.StartedAt.UTC().Format(timeLayout),
		"finished_at":      finishedAt,
		"success":          run.Success,
		"message":          run.Message,
		"output_dir":       run.OutputDir,
		"container_count":  run.ContainerCount,
		"skipped_count":    run.SkippedCount,
		"document_count":   run.DocumentCount,
		"failed_documents": run.FailedDocuments,
		"files":            string(filesJSON),
	}, nil
}

func createRun(ctx context.Context, exec executor, run *domain.Run) error {
	row, err := runToRow("CreateRun", run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (
			id, trigger_source, started_at, finished_at, success, message,
			output_dir, container_count, skipped_count, document_count,
			failed_documents, files
		) VALUES (
			:id, :trigger_source, :started_at, :finished_at, :success, :message,
			:output_dir, :container_count, :skipped_count, :document_count,
			:failed_documents, :files
		)`

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewStoreError("CreateRun", "run", run.ID, "run with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}
	return nil
}

func updateRun(ctx context.Context, exec executor, run *domain.Run) error {
	row, err := runToRow("UpdateRun", run)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs SET
			finished_at = :finished_at,
			success = :success,
			message = :message,
			output_dir = :output_dir,
			container_count = :container_count,
			skipped_count = :skipped_count,
			document_count = :document_count,
			failed_documents = :failed_documents,
			files = :files
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}
	if affected == 0 {
		return NewStoreError("UpdateRun", "run", run.ID, "run not found", ErrNotFound)
	}
	return nil
}

func getRun(ctx context.Context, exec executor, id string) (*domain.Run, error) {
	var row runRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", "run", id, "run not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}
	return rowToRun(&row)
}

func listRuns(ctx context.Context, exec executor, opts ListOptions) ([]domain.Run, error) {
	opts = opts.Normalize()

	var rows []runRow
	query := `SELECT * FROM runs ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]domain.Run, 0, len(rows))
	for i := range rows {
		run, err := rowToRun(&rows[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func latestRun(ctx context.Context, exec executor) (*domain.Run, error) {
	runs, err := listRuns(ctx, exec, ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, NewStoreError("LatestRun", "run", "", "no runs recorded", ErrNotFound)
	}
	return &runs[0], nil
}

// pruneRuns is a no-op when keep is not positive.
func pruneRuns(ctx context.Context, exec executor, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		)`
	result, err := exec.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, NewStoreError("PruneRuns", "run", "", err.Error(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, NewStoreError("PruneRuns", "run", "", err.Error(), err)
	}
	return int(affected), nil
}

func rowToRun(row *runRow) (*domain.Run, error) {
	startedAt, err := time.Parse(timeLayout, row.StartedAt)
	if err != nil {
		return nil, NewStoreError("rowToRun", "run", row.ID, "failed to parse started_at", ErrInvalidData)
	}

	run := &domain.Run{
		ID:              row.ID,
		Trigger:         domain.RunTrigger(row.Trigger),
		StartedAt:       startedAt,
		Success:         row.Success,
		Message:         row.Message,
		OutputDir:       row.OutputDir,
		ContainerCount:  row.ContainerCount,
		SkippedCount:    row.SkippedCount,
		DocumentCount:   row.DocumentCount,
		FailedDocuments: row.FailedDocuments,
	}

	if row.FinishedAt != nil {
		finishedAt, err := time.Parse(timeLayout, *row.FinishedAt)
		if err != nil {
			return nil, NewStoreError("rowToRun", "run", row.ID, "failed to parse finished_at", ErrInvalidData)
		}
		run.FinishedAt = &finishedAt
	}

	if err := json.Unmarshal([]byte(row.Files), &run.Files); err != nil {
		return nil, NewStoreError("rowToRun", "run", row.ID, "failed to parse files", ErrInvalidData)
	}
	if len(run.Files) == 0 {
		run.Files = nil
	}

	return run, nil
}
