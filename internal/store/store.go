package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is the current schema version recorded in the meta table.
// Migrate refuses to open a store whose recorded version is higher than this.
const SchemaVersion = 1

// ErrIncompatible is returned by Migrate when the store was built by a
// newer schema version than this binary understands (§6, §7 StoreIncompatible).
var ErrIncompatible = errors.New("store: schema version incompatible, rebuild required")

// execer is satisfied by both *sql.DB and *sql.Tx. Store methods execute
// against s.conn rather than s.db directly so the same method bodies work
// unmodified whether a Store is the top-level handle or the tx-scoped view
// a Scan hands out (see BeginScan).
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store is the SQLite data access layer backing the dependency graph.
type Store struct {
	db   *sql.DB
	conn execer
}

// NewStore opens (or creates) a SQLite database at dbPath with WAL mode and
// a busy timeout, matching the §4.1 sub-10ms interactive query budget and
// the §5 bounded-retry policy on transient store-locked errors.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &Store{db: db, conn: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct queries (used by the Query API).
func (s *Store) DB() *sql.DB {
	return s.db
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT
);

CREATE TABLE IF NOT EXISTS scripts (
  id           INTEGER PRIMARY KEY,
  path         TEXT NOT NULL UNIQUE,
  basename     TEXT NOT NULL,
  size         INTEGER NOT NULL,
  mod_time     TIMESTAMP,
  line_count   INTEGER NOT NULL DEFAULT 0,
  language     TEXT NOT NULL,
  stale        BOOLEAN NOT NULL DEFAULT 0,
  last_scanned TIMESTAMP
);

CREATE TABLE IF NOT EXISTS control_files (
  id       INTEGER PRIMARY KEY,
  path     TEXT NOT NULL UNIQUE,
  basename TEXT NOT NULL,
  size     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS procedures (
  id               INTEGER PRIMARY KEY,
  qualified        TEXT NOT NULL UNIQUE,
  qualified_lower  TEXT NOT NULL,
  schema_part      TEXT,
  package_part     TEXT,
  name_part        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS edges (
  id               INTEGER PRIMARY KEY,
  source_script_id INTEGER NOT NULL REFERENCES scripts(id),
  target_kind      TEXT NOT NULL,
  target_id        INTEGER NOT NULL DEFAULT 0,
  line             INTEGER NOT NULL,
  raw_text         TEXT,
  written_path     TEXT,
  basename         TEXT,
  style            TEXT NOT NULL,
  background       BOOLEAN NOT NULL DEFAULT 0,
  status           TEXT NOT NULL,
  inactive         BOOLEAN NOT NULL DEFAULT 0,
  UNIQUE(source_script_id, target_kind, target_id, line, style)
);

CREATE TABLE IF NOT EXISTS edge_candidates (
  id            INTEGER PRIMARY KEY,
  edge_id       INTEGER NOT NULL REFERENCES edges(id),
  candidate_id  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scripts_basename ON scripts(basename);
CREATE INDEX IF NOT EXISTS idx_control_files_basename ON control_files(basename);
CREATE INDEX IF NOT EXISTS idx_procedures_qualified_lower ON procedures(qualified_lower);
CREATE INDEX IF NOT EXISTS idx_procedures_name_part ON procedures(name_part);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_script_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_kind, target_id);
CREATE INDEX IF NOT EXISTS idx_edge_candidates_edge ON edge_candidates(edge_id);
`

// Migrate creates the schema if absent and checks schema compatibility.
// Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return fmt.Errorf("store: create meta table: %w", err)
	}

	existing, err := s.GetMetadata("schema_version")
	if err != nil {
		return fmt.Errorf("store: check schema version: %w", err)
	}
	if existing != "" {
		var version int
		fmt.Sscanf(existing, "%d", &version)
		if version > SchemaVersion {
			return ErrIncompatible
		}
	}

	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	if err := s.SetMetadata("schema_version", fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}
	return nil
}

// GetMetadata reads a key from the meta table. Returns "" if absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMetadata upserts a key in the meta table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("store: set metadata %q: %w", key, err)
	}
	return nil
}

// Scan brackets a single analyzer run (§4.1 begin_scan/commit_scan/abort_scan,
// §5 "a scan accepts a cancellation signal ... rolls back the current scan's
// uncommitted writes"). It wraps a single SQLite transaction: every read and
// write issued through Scan.Store are visible to each other inside the
// transaction and to the rest of the database atomically on Commit, or
// discarded entirely on Abort.
type Scan struct {
	tx    *sql.Tx
	store *Store
	RunID string
	Start time.Time
}

// BeginScan starts a new Scan transaction tagged with runID (a caller-supplied
// identifier, conventionally a UUID — see Engine.Analyze). The Store returned
// by Scan.Store routes every call through the scan's transaction instead of
// the pooled connection, so phase A's identity upserts are visible to phase
// B's lookups before the scan commits.
func (s *Store) BeginScan(runID string) (*Scan, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin scan: %w", err)
	}
	return &Scan{
		tx:    tx,
		store: &Store{db: s.db, conn: tx},
		RunID: runID,
		Start: time.Now(),
	}, nil
}

// Store returns the tx-scoped Store view for this scan. All reads and writes
// made through it participate in the scan's transaction.
func (sc *Scan) Store() *Store {
	return sc.store
}

// Commit finalizes the scan's writes.
func (sc *Scan) Commit() error {
	if err := sc.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit scan: %w", err)
	}
	return nil
}

// Abort rolls back all writes made within the scan.
func (sc *Scan) Abort() error {
	return sc.tx.Rollback()
}
