package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps execution state, checkpoints, and breakpoints in a single-file
// database. Designed for:
//   - Development and testing with zero setup
//   - Single-process workflows
//   - Local workflows requiring persistence
//   - Prototyping before migrating to a networked store
//
// SQLiteStore uses WAL mode for concurrent reads and transactional writes.
//
// Schema:
//   - execution_states: versioned state records, inline payload or blob pointer
//   - execution_checkpoints: checkpoint markers referencing state versions
//   - execution_breakpoints: persisted debugger breakpoints
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed store.
//
// The path parameter specifies the database file location:
//   - "./dev.db" - file in current directory
//   - "/tmp/graph.db" - absolute path
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically:
//   - Creates the database file if it doesn't exist
//   - Creates required tables
//   - Enables WAL mode for concurrent reads
//   - Configures appropriate timeouts
//
// Example:
//
//	st, err := store.NewSQLiteStore("./dev.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close() // Ignore close error when returning pragma error
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close() // Ignore close error when returning table creation error
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required database schema if it doesn't exist.
func (s *SQLiteStore) createTables(ctx context.Context) error {
	statesTable := `
		CREATE TABLE IF NOT EXISTS execution_states (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			payload BLOB,
			blob_key TEXT,
			blob_size INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(execution_id, version)
		)
	`
	if _, err := s.db.ExecContext(ctx, statesTable); err != nil {
		return fmt.Errorf("failed to create execution_states table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_states_execution ON execution_states(execution_id, version)"); err != nil {
		return fmt.Errorf("failed to create idx_states_execution: %w", err)
	}

	checkpointsTable := `
		CREATE TABLE IF NOT EXISTS execution_checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			checkpoint_id TEXT NOT NULL UNIQUE,
			execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			state_version INTEGER NOT NULL,
			kind TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, checkpointsTable); err != nil {
		return fmt.Errorf("failed to create execution_checkpoints table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_checkpoints_execution ON execution_checkpoints(execution_id)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_execution: %w", err)
	}

	breakpointsTable := `
		CREATE TABLE IF NOT EXISTS execution_breakpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			breakpoint_id TEXT NOT NULL UNIQUE,
			execution_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			location TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, breakpointsTable); err != nil {
		return fmt.Errorf("failed to create execution_breakpoints table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_breakpoints_execution ON execution_breakpoints(execution_id)"); err != nil {
		return fmt.Errorf("failed to create idx_breakpoints_execution: %w", err)
	}

	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// SaveState persists a versioned state record (implements Store).
//
// If a record with the same execution ID and version already exists, it is
// replaced. Thread-safe for concurrent writes.
func (s *SQLiteStore) SaveState(ctx context.Context, rec StateRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	var blobKey sql.NullString
	var blobSize int64
	if rec.Blob != nil {
		blobKey = sql.NullString{String: rec.Blob.Key, Valid: true}
		blobSize = rec.Blob.Size
	}

	query := `
		INSERT INTO execution_states (execution_id, version, node_id, payload, blob_key, blob_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, version) DO UPDATE SET
			node_id = excluded.node_id,
			payload = excluded.payload,
			blob_key = excluded.blob_key,
			blob_size = excluded.blob_size
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ExecutionID, rec.Version, rec.NodeID, rec.Payload,
		blobKey, blobSize, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState retrieves a state record by execution ID and version (implements Store).
//
// Returns ErrNotFound if no matching record exists.
func (s *SQLiteStore) LoadState(ctx context.Context, executionID string, version int) (StateRecord, error) {
	if err := s.checkOpen(); err != nil {
		return StateRecord{}, err
	}

	query := `
		SELECT execution_id, version, node_id, payload, blob_key, blob_size, created_at
		FROM execution_states
		WHERE execution_id = ? AND version = ?
	`
	return s.scanState(s.db.QueryRowContext(ctx, query, executionID, version))
}

// LoadLatest retrieves the highest-version state record for an execution
// (implements Store).
//
// Returns ErrNotFound if no records exist for the execution ID.
func (s *SQLiteStore) LoadLatest(ctx context.Context, executionID string) (StateRecord, error) {
	if err := s.checkOpen(); err != nil {
		return StateRecord{}, err
	}

	query := `
		SELECT execution_id, version, node_id, payload, blob_key, blob_size, created_at
		FROM execution_states
		WHERE execution_id = ?
		ORDER BY version DESC
		LIMIT 1
	`
	return s.scanState(s.db.QueryRowContext(ctx, query, executionID))
}

func (s *SQLiteStore) scanState(row *sql.Row) (StateRecord, error) {
	var (
		rec       StateRecord
		blobKey   sql.NullString
		blobSize  int64
		createdAt string
	)

	err := row.Scan(&rec.ExecutionID, &rec.Version, &rec.NodeID, &rec.Payload, &blobKey, &blobSize, &createdAt)
	if err == sql.ErrNoRows {
		return StateRecord{}, ErrNotFound
	}
	if err != nil {
		return StateRecord{}, fmt.Errorf("failed to load state: %w", err)
	}

	if blobKey.Valid {
		rec.Blob = &BlobRef{Key: blobKey.String, Size: blobSize}
	}
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return StateRecord{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return rec, nil
}

// SaveCheckpoint persists a checkpoint marker (implements Store).
//
// If a checkpoint with the same ID exists, it is updated.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := `
		INSERT INTO execution_checkpoints (checkpoint_id, execution_id, node_id, state_version, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			node_id = excluded.node_id,
			state_version = excluded.state_version,
			kind = excluded.kind
	`

	_, err := s.db.ExecContext(ctx, query,
		cp.ID, cp.ExecutionID, cp.NodeID, cp.StateVersion, string(cp.Type),
		cp.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint retrieves a checkpoint by ID (implements Store).
//
// Returns ErrNotFound if the checkpoint ID doesn't exist.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, id string) (Checkpoint, error) {
	if err := s.checkOpen(); err != nil {
		return Checkpoint{}, err
	}

	query := `
		SELECT checkpoint_id, execution_id, node_id, state_version, kind, created_at
		FROM execution_checkpoints
		WHERE checkpoint_id = ?
	`

	var (
		cp        Checkpoint
		kind      string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&cp.ID, &cp.ExecutionID, &cp.NodeID, &cp.StateVersion, &kind, &createdAt)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	cp.Type = CheckpointType(kind)
	cp.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return cp, nil
}

// ListCheckpoints returns all checkpoints for an execution, oldest first
// (implements Store).
func (s *SQLiteStore) ListCheckpoints(ctx context.Context, executionID string) ([]Checkpoint, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT checkpoint_id, execution_id, node_id, state_version, kind, created_at
		FROM execution_checkpoints
		WHERE execution_id = ?
		ORDER BY created_at ASC, state_version ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var checkpoints []Checkpoint
	for rows.Next() {
		var (
			cp        Checkpoint
			kind      string
			createdAt string
		)
		if err := rows.Scan(&cp.ID, &cp.ExecutionID, &cp.NodeID, &cp.StateVersion, &kind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		cp.Type = CheckpointType(kind)
		cp.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return checkpoints, nil
}

// SaveBreakpoint persists a debugger breakpoint (implements Store).
func (s *SQLiteStore) SaveBreakpoint(ctx context.Context, bp BreakpointRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := `
		INSERT INTO execution_breakpoints (breakpoint_id, execution_id, kind, location, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(breakpoint_id) DO UPDATE SET
			kind = excluded.kind,
			location = excluded.location,
			enabled = excluded.enabled
	`

	enabled := 0
	if bp.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, query,
		bp.ID, bp.ExecutionID, bp.Kind, bp.Location, enabled,
		bp.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save breakpoint: %w", err)
	}
	return nil
}

// ListBreakpoints returns breakpoints for an execution plus workflow-wide
// breakpoints saved with an empty execution ID (implements Store).
func (s *SQLiteStore) ListBreakpoints(ctx context.Context, executionID string) ([]BreakpointRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT breakpoint_id, execution_id, kind, location, enabled, created_at
		FROM execution_breakpoints
		WHERE execution_id = ? OR execution_id = ''
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query breakpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var breakpoints []BreakpointRecord
	for rows.Next() {
		var (
			bp        BreakpointRecord
			enabled   int
			createdAt string
		)
		if err := rows.Scan(&bp.ID, &bp.ExecutionID, &bp.Kind, &bp.Location, &enabled, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan breakpoint row: %w", err)
		}
		bp.Enabled = enabled != 0
		bp.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		breakpoints = append(breakpoints, bp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating breakpoint rows: %w", err)
	}
	return breakpoints, nil
}

// DeleteBreakpoint removes a breakpoint by ID (implements Store).
//
// Deleting a missing breakpoint is a no-op.
func (s *SQLiteStore) DeleteBreakpoint(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM execution_breakpoints WHERE breakpoint_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete breakpoint: %w", err)
	}
	return nil
}

// DeleteExecution removes all records for an execution (implements Store).
//
// The delete runs in a transaction so partial cleanup is never visible.
func (s *SQLiteStore) DeleteExecution(ctx context.Context, executionID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Ignore rollback error when already returning error
		}
	}()

	for _, query := range []string{
		"DELETE FROM execution_states WHERE execution_id = ?",
		"DELETE FROM execution_checkpoints WHERE execution_id = ?",
		"DELETE FROM execution_breakpoints WHERE execution_id = ?",
	} {
		if _, err = tx.ExecContext(ctx, query, executionID); err != nil {
			return fmt.Errorf("failed to delete execution records: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
//
// After Close, all operations will return an error.
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil // Double-close is a no-op
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
//
// Useful for health checks and connection validation.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}
