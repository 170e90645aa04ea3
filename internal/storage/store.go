package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/arachne-crawler/arachne/internal/model"
)

// dbFileName is the single database file holding every store.
const dbFileName = "arachne.db"

// opTimeout bounds individual storage operations issued without a
// caller context.
const opTimeout = 30 * time.Second

// ErrStoreNotFound is returned when opening an existing store that is
// not there.
var ErrStoreNotFound = errors.New("storage: database not found")

// Store is the SQLite-backed persistence layer.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when
	// missing. When false, a missing file is ErrStoreNotFound.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging. Recommended: the crawl
	// appends from many workers while reports read.
	EnableWAL bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the store under dir.
func Open(dir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dir, dbFileName)

	var dsn string
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("check database path: %w", err)
		}
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports one writer; extra connections only contend.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) createTables() error {
	schema := `
	-- Output records, append-only, one per terminal visit.
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset TEXT NOT NULL,
		visit_id TEXT NOT NULL,
		url TEXT NOT NULL,
		unique_key TEXT NOT NULL,
		payload TEXT,
		error_messages TEXT,
		is_error INTEGER NOT NULL DEFAULT 0,
		depth INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_dataset ON records(dataset);
	CREATE INDEX IF NOT EXISTS idx_records_unique_key ON records(dataset, unique_key);

	-- Handled dedup keys per queue, for resuming a crawl.
	CREATE TABLE IF NOT EXISTS handled_keys (
		queue TEXT NOT NULL,
		unique_key TEXT NOT NULL,
		handled_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(queue, unique_key)
	);

	-- Key-value store exposed to extraction routines.
	CREATE TABLE IF NOT EXISTS kv (
		store TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(store, key)
	);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Dataset returns the named append-only record store.
func (s *Store) Dataset(name string) *Dataset {
	return &Dataset{store: s, name: name}
}

// Queue returns the named handled-key store.
func (s *Store) Queue(name string) *Queue {
	return &Queue{store: s, name: name}
}

// KeyValueStore returns the named key-value store.
func (s *Store) KeyValueStore(name string) *KeyValueStore {
	return &KeyValueStore{store: s, name: name}
}

// Dataset is one named append-only record store.
type Dataset struct {
	store *Store
	name  string
}

// Append persists one output record.
func (d *Dataset) Append(record model.OutputRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var payload []byte
	if record.PageFunctionResult != nil {
		var err error
		payload, err = json.Marshal(record.PageFunctionResult)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}
	var errMsgs []byte
	if len(record.ErrorMessages) > 0 {
		var err error
		errMsgs, err = json.Marshal(record.ErrorMessages)
		if err != nil {
			return fmt.Errorf("marshal error messages: %w", err)
		}
	}

	_, err := d.store.db.ExecContext(ctx, `
		INSERT INTO records (dataset, visit_id, url, unique_key, payload, error_messages, is_error, depth, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.name, record.VisitID, record.URL, record.UniqueKey,
		nullableText(payload), nullableText(errMsgs),
		boolToInt(record.IsError), record.Depth,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Count returns the number of persisted records, used as the resumed
// output base.
func (d *Dataset) Count(ctx context.Context) (int64, error) {
	var n int64
	err := d.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE dataset = ?`, d.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// SucceededCount returns the number of persisted non-error records.
// The result cap of a resumed crawl is seeded with it, since failures
// never count toward the cap.
func (d *Dataset) SucceededCount(ctx context.Context) (int64, error) {
	var n int64
	err := d.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE dataset = ? AND is_error = 0`, d.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count succeeded records: %w", err)
	}
	return n, nil
}

// Records returns all persisted records in insertion order.
func (d *Dataset) Records(ctx context.Context) ([]model.OutputRecord, error) {
	rows, err := d.store.db.QueryContext(ctx, `
		SELECT visit_id, url, unique_key, payload, error_messages, is_error, depth, created_at
		FROM records WHERE dataset = ? ORDER BY id`, d.name)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.OutputRecord
	for rows.Next() {
		var (
			r         model.OutputRecord
			payload   sql.NullString
			errMsgs   sql.NullString
			isError   int
			createdAt string
		)
		if err := rows.Scan(&r.VisitID, &r.URL, &r.UniqueKey, &payload, &errMsgs, &isError, &r.Depth, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if payload.Valid && payload.String != "" {
			var v any
			if err := json.Unmarshal([]byte(payload.String), &v); err == nil {
				r.PageFunctionResult = v
			}
		}
		if errMsgs.Valid && errMsgs.String != "" {
			_ = json.Unmarshal([]byte(errMsgs.String), &r.ErrorMessages)
		}
		r.IsError = isError != 0
		r.CreatedAt = parseTimestamp(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Queue is one named handled-key store.
type Queue struct {
	store *Store
	name  string
}

// MarkHandled records a unique key as terminally processed. Marking a
// key twice is a no-op.
func (q *Queue) MarkHandled(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := q.store.db.ExecContext(ctx, `
		INSERT INTO handled_keys (queue, unique_key) VALUES (?, ?)
		ON CONFLICT(queue, unique_key) DO NOTHING`,
		q.name, key)
	if err != nil {
		return fmt.Errorf("mark handled: %w", err)
	}
	return nil
}

// HandledKeys returns every handled key, used to preseed the frontier
// on resume.
func (q *Queue) HandledKeys(ctx context.Context) ([]string, error) {
	rows, err := q.store.db.QueryContext(ctx,
		`SELECT unique_key FROM handled_keys WHERE queue = ?`, q.name)
	if err != nil {
		return nil, fmt.Errorf("query handled keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan handled key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// KeyValueStore is one named key-value store. Values are stored as
// JSON.
type KeyValueStore struct {
	store *Store
	name  string
}

// Set stores value under key, replacing any previous value.
func (kv *KeyValueStore) Set(key string, value any) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	_, err = kv.store.db.ExecContext(ctx, `
		INSERT INTO kv (store, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(store, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		kv.name, key, string(data))
	if err != nil {
		return fmt.Errorf("set key %s: %w", key, err)
	}
	return nil
}

// Get loads the value stored under key into out. The second return is
// false when the key is absent.
func (kv *KeyValueStore) Get(key string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var data string
	err := kv.store.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE store = ? AND key = ?`, kv.name, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("unmarshal key %s: %w", key, err)
	}
	return true, nil
}

// timestampFormats are the layouts SQLite may hand back depending on
// how the value was written.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
}

// parseTimestamp tries each known layout, returning the zero time when
// none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
