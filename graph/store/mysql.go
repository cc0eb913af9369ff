package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// It keeps execution state, checkpoints, and breakpoints in a relational
// database. Designed for:
//   - Production workflows requiring persistence
//   - Distributed systems with multiple workers
//   - Long-running workflows that survive process restarts
//   - Audit trails and compliance requirements
//
// MySQLStore uses connection pooling and transactions for reliability.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// The DSN must include parseTime=true so timestamps scan into time.Time:
//
//	user:password@tcp(localhost:3306)/agentgraph?parseTime=true
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use environment variables:
//	    dsn := os.Getenv("MYSQL_DSN")
//	    if dsn == "" {
//	        log.Fatal("MYSQL_DSN environment variable not set")
//	    }
//	    st, err := store.NewMySQLStore(dsn)
//
// The store automatically creates required tables if they don't exist and
// configures connection pooling.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() // Ignore close error when returning ping error
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close() // Ignore close error when returning table creation error
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required database schema if it doesn't exist.
func (s *MySQLStore) createTables(ctx context.Context) error {
	statesTable := `
		CREATE TABLE IF NOT EXISTS execution_states (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			execution_id VARCHAR(255) NOT NULL,
			version INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			payload MEDIUMBLOB,
			blob_key VARCHAR(512),
			blob_size BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP(6) NOT NULL,
			UNIQUE KEY uniq_execution_version (execution_id, version),
			INDEX idx_states_execution (execution_id, version)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, statesTable); err != nil {
		return fmt.Errorf("failed to create execution_states table: %w", err)
	}

	checkpointsTable := `
		CREATE TABLE IF NOT EXISTS execution_checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			checkpoint_id VARCHAR(255) NOT NULL UNIQUE,
			execution_id VARCHAR(255) NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			state_version INT NOT NULL,
			kind VARCHAR(32) NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			INDEX idx_checkpoints_execution (execution_id)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, checkpointsTable); err != nil {
		return fmt.Errorf("failed to create execution_checkpoints table: %w", err)
	}

	breakpointsTable := `
		CREATE TABLE IF NOT EXISTS execution_breakpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			breakpoint_id VARCHAR(255) NOT NULL UNIQUE,
			execution_id VARCHAR(255) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			location VARCHAR(512) NOT NULL,
			enabled TINYINT(1) NOT NULL DEFAULT 1,
			created_at TIMESTAMP(6) NOT NULL,
			INDEX idx_breakpoints_execution (execution_id)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, breakpointsTable); err != nil {
		return fmt.Errorf("failed to create execution_breakpoints table: %w", err)
	}

	return nil
}

func (s *MySQLStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// SaveState persists a versioned state record (implements Store).
func (s *MySQLStore) SaveState(ctx context.Context, rec StateRecord) error {
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
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			payload = VALUES(payload),
			blob_key = VALUES(blob_key),
			blob_size = VALUES(blob_size)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ExecutionID, rec.Version, rec.NodeID, rec.Payload,
		blobKey, blobSize, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState retrieves a state record by execution ID and version (implements Store).
func (s *MySQLStore) LoadState(ctx context.Context, executionID string, version int) (StateRecord, error) {
	if err := s.checkOpen(); err != nil {
		return StateRecord{}, err
	}

	query := `
		SELECT execution_id, version, node_id, payload, blob_key, blob_size, created_at
		FROM execution_states
		WHERE execution_id = ? AND version = ?
	`
	return scanStateRow(s.db.QueryRowContext(ctx, query, executionID, version))
}

// LoadLatest retrieves the highest-version state record for an execution
// (implements Store).
func (s *MySQLStore) LoadLatest(ctx context.Context, executionID string) (StateRecord, error) {
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
	return scanStateRow(s.db.QueryRowContext(ctx, query, executionID))
}

// scanStateRow scans a state row where created_at is a native timestamp.
// Shared by the MySQL and Postgres stores.
func scanStateRow(row *sql.Row) (StateRecord, error) {
	var (
		rec      StateRecord
		blobKey  sql.NullString
		blobSize int64
	)

	err := row.Scan(&rec.ExecutionID, &rec.Version, &rec.NodeID, &rec.Payload, &blobKey, &blobSize, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return StateRecord{}, ErrNotFound
	}
	if err != nil {
		return StateRecord{}, fmt.Errorf("failed to load state: %w", err)
	}

	if blobKey.Valid {
		rec.Blob = &BlobRef{Key: blobKey.String, Size: blobSize}
	}
	return rec, nil
}

// SaveCheckpoint persists a checkpoint marker (implements Store).
func (s *MySQLStore) SaveCheckpoint(ctx context.Context, cp Checkpoint) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := `
		INSERT INTO execution_checkpoints (checkpoint_id, execution_id, node_id, state_version, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			state_version = VALUES(state_version),
			kind = VALUES(kind)
	`

	_, err := s.db.ExecContext(ctx, query,
		cp.ID, cp.ExecutionID, cp.NodeID, cp.StateVersion, string(cp.Type), cp.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint retrieves a checkpoint by ID (implements Store).
func (s *MySQLStore) LoadCheckpoint(ctx context.Context, id string) (Checkpoint, error) {
	if err := s.checkOpen(); err != nil {
		return Checkpoint{}, err
	}

	query := `
		SELECT checkpoint_id, execution_id, node_id, state_version, kind, created_at
		FROM execution_checkpoints
		WHERE checkpoint_id = ?
	`

	var (
		cp   Checkpoint
		kind string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&cp.ID, &cp.ExecutionID, &cp.NodeID, &cp.StateVersion, &kind, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.Type = CheckpointType(kind)
	return cp, nil
}

// ListCheckpoints returns all checkpoints for an execution, oldest first
// (implements Store).
func (s *MySQLStore) ListCheckpoints(ctx context.Context, executionID string) ([]Checkpoint, error) {
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
			cp   Checkpoint
			kind string
		)
		if err := rows.Scan(&cp.ID, &cp.ExecutionID, &cp.NodeID, &cp.StateVersion, &kind, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		cp.Type = CheckpointType(kind)
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return checkpoints, nil
}

// SaveBreakpoint persists a debugger breakpoint (implements Store).
func (s *MySQLStore) SaveBreakpoint(ctx context.Context, bp BreakpointRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	query := `
		INSERT INTO execution_breakpoints (breakpoint_id, execution_id, kind, location, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			kind = VALUES(kind),
			location = VALUES(location),
			enabled = VALUES(enabled)
	`

	_, err := s.db.ExecContext(ctx, query,
		bp.ID, bp.ExecutionID, bp.Kind, bp.Location, bp.Enabled, bp.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save breakpoint: %w", err)
	}
	return nil
}

// ListBreakpoints returns breakpoints for an execution plus workflow-wide
// breakpoints saved with an empty execution ID (implements Store).
func (s *MySQLStore) ListBreakpoints(ctx context.Context, executionID string) ([]BreakpointRecord, error) {
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
		var bp BreakpointRecord
		if err := rows.Scan(&bp.ID, &bp.ExecutionID, &bp.Kind, &bp.Location, &bp.Enabled, &bp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan breakpoint row: %w", err)
		}
		breakpoints = append(breakpoints, bp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating breakpoint rows: %w", err)
	}
	return breakpoints, nil
}

// DeleteBreakpoint removes a breakpoint by ID (implements Store).
func (s *MySQLStore) DeleteBreakpoint(ctx context.Context, id string) error {
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
func (s *MySQLStore) DeleteExecution(ctx context.Context, executionID string) error {
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

// Close closes the database connection pool.
//
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil // Double-close is a no-op
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *MySQLStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}
