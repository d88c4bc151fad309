package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

const createObjectsTable = `
CREATE TABLE IF NOT EXISTS objects (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    type_name TEXT NOT NULL,
    data      BLOB NOT NULL,
    stored_at DATETIME NOT NULL
)`

const createRootsTable = `
CREATE TABLE IF NOT EXISTS roots (
    name      TEXT PRIMARY KEY,
    object_id INTEGER NOT NULL REFERENCES objects(id)
)`

const defaultRootName = "root"

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// tracked pins a stored reference value so its address cannot be reused by
// another object while the store maps it to a record.
type tracked struct {
	id  int64
	ref any
}

// SQLiteStore implements Store on top of SQLite. Objects are encoded as JSON
// documents; the object graph reachable from a stored value is persisted with it.
type SQLiteStore struct {
	cfg    Config
	logger *slog.Logger

	db      *sql.DB
	running atomic.Bool

	root    Root
	rootID  int64
	objects map[uintptr]tracked

	stopHousekeeping context.CancelFunc
	housekeepingDone sync.WaitGroup
}

// NewSQLiteStore creates a store for cfg. Nothing is opened until Start.
func NewSQLiteStore(cfg Config, logger *slog.Logger) (*SQLiteStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{
		cfg:     cfg,
		logger:  logger,
		objects: make(map[uintptr]tracked),
	}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return filepath.Join(s.cfg.StorageDirectory, s.cfg.DatabaseFile)
}

// Start opens the database, runs migrations and loads the persisted root.
// Starting a running store is a no-op.
func (s *SQLiteStore) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}

	if err := os.MkdirAll(s.cfg.StorageDirectory, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.Path())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(s.cfg.ChannelCount)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		createObjectsTable,
		createRootsTable,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return fmt.Errorf("prepare database: %w", err)
		}
	}

	root, rootID, err := loadRoot(ctx, db)
	if err != nil {
		db.Close()
		return err
	}

	s.db = db
	s.root = root
	s.rootID = rootID
	s.objects = make(map[uintptr]tracked)
	s.running.Store(true)
	s.startHousekeeping()

	s.logger.Info("store started", "path", s.Path(), "root_id", rootID)
	if len(s.cfg.Extra) > 0 {
		s.logger.Debug("ignoring unsupported storage settings", "settings", s.cfg.Extra)
	}
	return nil
}

func loadRoot(ctx context.Context, db *sql.DB) (Root, int64, error) {
	var (
		id   int64
		data []byte
	)
	err := db.QueryRowContext(ctx,
		`SELECT o.id, o.data FROM roots r JOIN objects o ON o.id = r.object_id WHERE r.name = ?`,
		defaultRootName,
	).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return EmptyRoot(), 0, nil
	}
	if err != nil {
		return Root{}, 0, fmt.Errorf("load root: %w", err)
	}
	return encodedRoot(data), id, nil
}

// Shutdown stops housekeeping and closes the database. It is idempotent.
func (s *SQLiteStore) Shutdown(_ context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.stopHousekeeping != nil {
		s.stopHousekeeping()
		s.housekeepingDone.Wait()
	}

	s.objects = make(map[uintptr]tracked)
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	s.logger.Info("store stopped", "path", s.Path())
	return nil
}

// IsRunning reports whether the store has been started and not shut down.
// It is safe for concurrent use.
func (s *SQLiteStore) IsRunning() bool {
	return s.running.Load()
}

// Root returns the current root.
func (s *SQLiteStore) Root() Root {
	return s.root
}

// SetRoot replaces the root. When the previous root was still encoded, the new
// value takes over its record.
func (s *SQLiteStore) SetRoot(v any) any {
	prevEncoded := s.root.Encoded()
	s.root = RootOf(v)

	switch {
	case s.root.IsEmpty():
		s.rootID = 0
	case prevEncoded && s.rootID != 0:
		s.track(v, s.rootID)
	default:
		if t, ok := s.lookup(v); ok {
			s.rootID = t.id
		} else {
			s.rootID = 0
		}
	}
	return v
}

// Store persists v. Reference values (pointers, maps) keep their id across
// stores; other values get a new record each time.
func (s *SQLiteStore) Store(ctx context.Context, v any) (int64, error) {
	if !s.running.Load() {
		return 0, ErrNotRunning
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin store tx: %w", err)
	}
	defer tx.Rollback()

	id, err := s.storeTx(ctx, tx, v)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit store tx: %w", err)
	}
	return id, nil
}

// StoreRoot persists the root object and points the root record at it.
func (s *SQLiteStore) StoreRoot(ctx context.Context) (int64, error) {
	if !s.running.Load() {
		return 0, ErrNotRunning
	}
	if s.root.IsEmpty() {
		return 0, ErrEmptyRoot
	}
	if s.root.Encoded() {
		return s.rootID, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin store root tx: %w", err)
	}
	defer tx.Rollback()

	id, err := s.storeTx(ctx, tx, s.root.Value())
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO roots (name, object_id) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET object_id = excluded.object_id`,
		defaultRootName, id,
	); err != nil {
		return 0, fmt.Errorf("update root record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit store root tx: %w", err)
	}

	s.rootID = id
	return id, nil
}

func (s *SQLiteStore) storeTx(ctx context.Context, tx *sql.Tx, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %T: %w", v, err)
	}
	typeName := fmt.Sprintf("%T", v)
	now := time.Now().UTC()

	if t, ok := s.lookup(v); ok {
		result, err := tx.ExecContext(ctx,
			"UPDATE objects SET type_name = ?, data = ?, stored_at = ? WHERE id = ?",
			typeName, data, now, t.id,
		)
		if err != nil {
			return 0, fmt.Errorf("update object %d: %w", t.id, err)
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			return t.id, nil
		}
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO objects (type_name, data, stored_at) VALUES (?, ?, ?)",
		typeName, data, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert object: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("object id: %w", err)
	}
	s.track(v, id)
	return id, nil
}

func (s *SQLiteStore) lookup(v any) (tracked, bool) {
	addr, ok := identity(v)
	if !ok {
		return tracked{}, false
	}
	t, ok := s.objects[addr]
	return t, ok
}

func (s *SQLiteStore) track(v any, id int64) {
	if addr, ok := identity(v); ok {
		s.objects[addr] = tracked{id: id, ref: v}
	}
}

// Statistics reports the number of files in the storage directory, the size
// of the stored object data and the size of the database.
func (s *SQLiteStore) Statistics(ctx context.Context) (Statistics, error) {
	if !s.running.Load() {
		return Statistics{}, ErrNotRunning
	}

	var stats Statistics
	entries, err := os.ReadDir(s.cfg.StorageDirectory)
	if err != nil {
		return Statistics{}, fmt.Errorf("read storage directory: %w", err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			stats.FileCount++
		}
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(LENGTH(data)), 0) FROM objects",
	).Scan(&stats.LiveDataLength); err != nil {
		return Statistics{}, fmt.Errorf("live data length: %w", err)
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return Statistics{}, fmt.Errorf("page count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return Statistics{}, fmt.Errorf("page size: %w", err)
	}
	stats.TotalDataLength = pageCount * pageSize

	return stats, nil
}

// startHousekeeping periodically checkpoints the write-ahead log.
func (s *SQLiteStore) startHousekeeping() {
	if s.cfg.HousekeepingInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopHousekeeping = cancel

	s.housekeepingDone.Go(func() {
		ticker := time.NewTicker(s.cfg.HousekeepingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checkpoint(ctx)
			}
		}
	})
}

func (s *SQLiteStore) checkpoint(ctx context.Context) {
	budget := s.cfg.HousekeepingTimeBudget
	if budget <= 0 {
		budget = DefaultHousekeepingTimeBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil && ctx.Err() == nil {
		s.logger.Warn("housekeeping checkpoint failed", "path", s.Path(), "error", err)
	}
}
