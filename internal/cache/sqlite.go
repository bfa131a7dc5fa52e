package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"thumbnail-engine/internal/config"
	"thumbnail-engine/internal/decoder"
	"thumbnail-engine/internal/filesystem"
	"thumbnail-engine/internal/fingerprint"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

const schemaVersion = "2"

// DBStore keeps thumbnails in a single SQLite database.
type DBStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewDBStore opens (creating if needed) the database at dbPath.
func NewDBStore(ctx context.Context, dbPath string) (*DBStore, error) {
	if dbPath == "" {
		return nil, backendErr(config.BackendDatabase, "open", errors.New("database path is empty"))
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, backendErr(config.BackendDatabase, "open", err)
	}

	logging.Info("Thumbnail database path: %s", dbPath)
	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, backendErr(config.BackendDatabase, "open", fmt.Errorf("failed to open database: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, backendErr(config.BackendDatabase, "open", fmt.Errorf("failed to connect to database: %w", err))
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &DBStore{db: db, dbPath: dbPath}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, backendErr(config.BackendDatabase, "open", fmt.Errorf("failed to initialize database schema: %w", err))
	}

	logging.Info("Thumbnail database initialized successfully at %s", dbPath)
	return s, nil
}

func (s *DBStore) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS thumbnails (
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		file_size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		format TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (path, size)
	);

	CREATE INDEX IF NOT EXISTS idx_thumbnails_mod_time ON thumbnails(mod_time);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err = s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	err = s.runMigrations(ctx)
	return err
}

// runMigrations applies schema migrations to databases created by older versions.
func (s *DBStore) runMigrations(ctx context.Context) error {
	// Migration 1: content digest column
	var digestExists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('thumbnails')
		WHERE name='digest'
	`).Scan(&digestExists)
	if err != nil {
		return fmt.Errorf("failed to check for digest column: %w", err)
	}

	if !digestExists {
		logging.Info("Migrating thumbnail database: adding digest column")
		if _, err := s.db.ExecContext(ctx, `
			ALTER TABLE thumbnails ADD COLUMN digest TEXT NOT NULL DEFAULT ''
		`); err != nil {
			return fmt.Errorf("failed to add digest column: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, schemaVersion)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// Name implements Store.
func (s *DBStore) Name() string { return config.BackendDatabase }

// Path returns the database file path.
func (s *DBStore) Path() string { return s.dbPath }

// Close implements Store.
func (s *DBStore) Close() error {
	return s.db.Close()
}

// Lookup implements Store.
func (s *DBStore) Lookup(ctx context.Context, fp fingerprint.Fingerprint, size int) (*Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("lookup", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		e       Entry
		stored  fingerprint.Fingerprint
		created int64
	)
	s.mu.RLock()
	err = s.db.QueryRowContext(ctx, `
		SELECT file_size, mod_time, digest, width, height, format, payload, created_at
		FROM thumbnails WHERE path = ? AND size = ?
	`, fp.Path, size).Scan(
		&stored.Size, &stored.ModTime, &stored.Digest,
		&e.Width, &e.Height, &e.Format, &e.Payload, &created,
	)
	s.mu.RUnlock()

	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		recordMiss(s.Name())
		return nil, ErrMiss
	}
	if err != nil {
		return nil, backendErr(s.Name(), "lookup", err)
	}

	stored.Path = fp.Path
	if !stored.Equal(fp) {
		recordInvalidation(s.Name(), fp)
		if delErr := s.deleteStale(ctx, fp); delErr != nil {
			logging.Warn("Failed to delete stale thumbnails for %s: %v", fp.Path, delErr)
		}
		recordMiss(s.Name())
		return nil, ErrMiss
	}

	recordHit(s.Name())
	e.Fingerprint = fp
	e.Size = size
	e.CreatedAt = time.Unix(created, 0)
	return &e, nil
}

// staleCondition matches rows for a path whose fingerprint differs from
// the arguments (file_size, mod_time, digest, digest).
const staleCondition = `path = ? AND (file_size != ? OR mod_time != ?
	OR (digest != '' AND ? != '' AND digest != ?))`

func staleArgs(fp fingerprint.Fingerprint) []any {
	return []any{fp.Path, fp.Size, fp.ModTime, fp.Digest, fp.Digest}
}

func (s *DBStore) deleteStale(ctx context.Context, fp fingerprint.Fingerprint) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_stale", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, "DELETE FROM thumbnails WHERE "+staleCondition, staleArgs(fp)...)
	return err
}

// Store implements Store. Rows of older versions of the same path are
// replaced in the same transaction, so no reader sees both versions.
func (s *DBStore) Store(ctx context.Context, fp fingerprint.Fingerprint, size int, bmp decoder.Bitmap) error {
	if bmp.Image == nil {
		return backendErr(s.Name(), "store", errors.New("empty bitmap"))
	}
	payload, format, err := decoder.Encode(bmp.Image)
	if err != nil {
		return backendErr(s.Name(), "store", err)
	}

	start := time.Now()
	defer func() { recordQuery("store", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return backendErr(s.Name(), "store", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM thumbnails WHERE "+staleCondition, staleArgs(fp)...)
	if err == nil {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO thumbnails (path, size, file_size, mod_time, digest, width, height, format, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, size) DO UPDATE SET
			file_size = excluded.file_size,
			mod_time = excluded.mod_time,
			digest = excluded.digest,
			width = excluded.width,
			height = excluded.height,
			format = excluded.format,
			payload = excluded.payload,
			created_at = strftime('%s', 'now')
		WHERE thumbnails.file_size != excluded.file_size
		   OR thumbnails.mod_time != excluded.mod_time
		   OR thumbnails.digest != excluded.digest
		`, fp.Path, size, fp.Size, fp.ModTime, fp.Digest, bmp.Width(), bmp.Height(), format, payload)
	}

	err = endTx(tx, err)
	return backendErr(s.Name(), "store", err)
}

func (s *DBStore) beginTx(ctx context.Context) (*sql.Tx, error) {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	recordQuery("begin_transaction", start, err)
	return tx, err
}

// endTx commits tx, or rolls it back when err is set.
func endTx(tx *sql.Tx, err error) error {
	start := time.Now()
	if err != nil {
		rbErr := tx.Rollback()
		recordQuery("rollback", start, rbErr)
		if rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}
	err = tx.Commit()
	recordQuery("commit", start, err)
	return err
}

// Remove implements Store.
func (s *DBStore) Remove(ctx context.Context, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove_path", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, "DELETE FROM thumbnails WHERE path = ?", path)
	return backendErr(s.Name(), "remove", err)
}

type sourceVersion struct {
	path    string
	size    int64
	modTime int64
}

// Clean implements Store. Sources are checked outside any transaction; the
// obsolete rows are then deleted in one transaction so concurrent readers
// see the cache either before or after the pass.
func (s *DBStore) Clean(ctx context.Context) (CleanStats, error) {
	var stats CleanStats

	versions, err := s.sourceVersions(ctx)
	if err != nil {
		return stats, backendErr(s.Name(), "clean", err)
	}
	stats.Scanned = len(versions)

	var obsolete []sourceVersion
	for _, v := range versions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		info, statErr := filesystem.Stat(ctx, v.path)
		switch {
		case errors.Is(statErr, fs.ErrNotExist):
			obsolete = append(obsolete, v)
		case statErr != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			logging.Debug("Clean: cannot stat %s: %v", v.path, statErr)
			stats.Errors++
		case info.Size() != v.size || info.ModTime().Unix() != v.modTime:
			obsolete = append(obsolete, v)
		}
	}

	if len(obsolete) == 0 {
		return stats, nil
	}

	removed, err := s.deleteVersions(ctx, obsolete)
	if err != nil {
		return stats, backendErr(s.Name(), "clean", err)
	}
	stats.Removed = int(removed)
	return stats, nil
}

func (s *DBStore) sourceVersions(ctx context.Context) ([]sourceVersion, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("clean_scan", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT path, file_size, mod_time FROM thumbnails`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []sourceVersion
	for rows.Next() {
		var v sourceVersion
		if err = rows.Scan(&v.path, &v.size, &v.modTime); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	err = rows.Err()
	return versions, err
}

func (s *DBStore) deleteVersions(ctx context.Context, versions []sourceVersion) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("clean_delete", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}

	var removed int64
	stmt, err := tx.PrepareContext(ctx, "DELETE FROM thumbnails WHERE path = ? AND file_size = ? AND mod_time = ?")
	if err == nil {
		for _, v := range versions {
			var res sql.Result
			res, err = stmt.ExecContext(ctx, v.path, v.size, v.modTime)
			if err != nil {
				break
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		if closeErr := stmt.Close(); err == nil {
			err = closeErr
		}
	}

	err = endTx(tx, err)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// EraseAll implements Store. The database file is compacted afterwards.
func (s *DBStore) EraseAll(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("erase", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err = s.db.ExecContext(ctx, "DELETE FROM thumbnails"); err != nil {
		return backendErr(s.Name(), "erase", err)
	}
	metrics.CacheEntries.WithLabelValues(s.Name()).Set(0)

	vacuumStart := time.Now()
	_, vacErr := s.db.ExecContext(ctx, "VACUUM")
	recordQuery("vacuum", vacuumStart, vacErr)
	if vacErr != nil {
		logging.Warn("Failed to vacuum thumbnail database: %v", vacErr)
	}
	return nil
}

// Stats implements Store. Bytes is the on-disk size of the database
// including its WAL and shared-memory files.
func (s *DBStore) Stats(ctx context.Context) (Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := Stats{Backend: s.Name(), Location: s.dbPath}

	s.mu.RLock()
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM thumbnails").Scan(&stats.Entries)
	s.mu.RUnlock()
	if err != nil {
		return stats, backendErr(s.Name(), "stats", err)
	}

	for file, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		var size int64
		if info, statErr := os.Stat(s.dbPath + suffix); statErr == nil {
			size = info.Size()
		}
		metrics.DBSizeBytes.WithLabelValues(file).Set(float64(size))
		stats.Bytes += size
	}
	return stats, nil
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(dbPath + suffix)
		if err != nil {
			continue
		}
		logging.Debug("Database file %s (mode: %v, size: %d bytes)", dbPath+suffix, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file %s is read-only (mode %v); thumbnail writes will fail", dbPath+suffix, info.Mode())
		}
	}
	return nil
}
