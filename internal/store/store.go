// Package store provides the typed SQLite persistence layer for all TBCV
// entities. Writes are transactional and only permitted from an RPC context
// (see internal/rpc/rpcctx).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tbcv/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns all persistent entities: validations, recommendations,
// enhancement records, workflows, checkpoints, the L2 cache tier and the
// audit log.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Store initialized (validations, recommendations, enhancements, workflows, cache, audit)")
	return s, nil
}

// initialize creates the required tables and indexes.
func (s *Store) initialize() error {
	validationsTable := `
	CREATE TABLE IF NOT EXISTS validations (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		family TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		severity TEXT NOT NULL,
		rules_applied TEXT,
		report TEXT,
		original_content TEXT,
		enhanced_content TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_validations_path_created ON validations(file_path, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_validations_status ON validations(status);
	CREATE INDEX IF NOT EXISTS idx_validations_family ON validations(family);
	`

	recommendationsTable := `
	CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		validation_id TEXT NOT NULL,
		type TEXT NOT NULL,
		target TEXT NOT NULL,
		suggested_change TEXT,
		rationale TEXT,
		status TEXT NOT NULL,
		severity_score INTEGER DEFAULT 0,
		critique_score REAL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (validation_id) REFERENCES validations(id)
	);
	CREATE INDEX IF NOT EXISTS idx_recommendations_validation ON recommendations(validation_id);
	CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status);
	`

	enhancementsTable := `
	CREATE TABLE IF NOT EXISTS enhancements (
		id TEXT PRIMARY KEY,
		validation_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		original_hash TEXT NOT NULL,
		enhanced_hash TEXT NOT NULL,
		recommendation_ids TEXT,
		safety TEXT,
		preservation TEXT,
		applied_by TEXT,
		applied_at DATETIME NOT NULL,
		rollback_point BLOB NOT NULL,
		rollback_meta TEXT,
		pending_commit INTEGER DEFAULT 0,
		rolled_back INTEGER DEFAULT 0,
		rolled_back_at DATETIME,
		rollback_expires_at DATETIME NOT NULL,
		UNIQUE(original_hash, file_path, applied_at)
	);
	CREATE INDEX IF NOT EXISTS idx_enhancements_validation ON enhancements(validation_id);
	CREATE INDEX IF NOT EXISTS idx_enhancements_path ON enhancements(file_path);
	CREATE INDEX IF NOT EXISTS idx_enhancements_pending ON enhancements(pending_commit);
	`

	workflowsTable := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		state TEXT NOT NULL,
		progress REAL DEFAULT 0,
		parameters TEXT,
		summary TEXT,
		error TEXT,
		last_checkpoint_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workflows_state ON workflows(state);
	CREATE INDEX IF NOT EXISTS idx_workflows_type ON workflows(type);
	`

	checkpointsTable := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		step_number INTEGER NOT NULL,
		name TEXT,
		state_data BLOB,
		can_resume_from INTEGER DEFAULT 1,
		created_at DATETIME NOT NULL,
		UNIQUE(workflow_id, step_number)
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow ON checkpoints(workflow_id, step_number);
	`

	cacheTable := `
	CREATE TABLE IF NOT EXISTS cache_l2 (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		tags TEXT,
		created_at DATETIME NOT NULL,
		expires_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_l2(expires_at);
	`

	auditTable := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		method TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		entity_id TEXT,
		action TEXT NOT NULL,
		correlation_id TEXT,
		detail TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_method ON audit_log(method);
	`

	for _, table := range []string{
		validationsTable,
		recommendationsTable,
		enhancementsTable,
		workflowsTable,
		checkpointsTable,
		cacheTable,
		auditTable,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.Store("Closing store database connection")
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDB returns the underlying SQL database connection.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// GetStats returns row counts per table.
func (s *Store) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"validations", "recommendations", "enhancements", "workflows", "checkpoints", "cache_l2", "audit_log"} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			logging.StoreDebug("Table %s count failed: %v", table, err)
			continue
		}
		stats[table] = count
	}
	return stats, nil
}
