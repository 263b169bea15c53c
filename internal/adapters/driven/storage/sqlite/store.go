package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

// Default queue timings.
const (
	DefaultVisibilityTimeout = 5 * time.Minute
	DefaultRetryDelay        = 10 * time.Second
)

// Option configures a Store.
type Option func(*Store)

// WithBucket sets the account and bucket reported in notifications.
func WithBucket(account, bucket string) Option {
	return func(s *Store) {
		s.account = account
		s.bucket = bucket
	}
}

// WithVisibilityTimeout sets how long a received message stays hidden
// before it is redelivered without an acknowledgement.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(s *Store) { s.visibility = d }
}

// WithRetryDelay sets how long a retried message waits before redelivery.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) { s.retryDelay = d }
}

// Store is a SQLite-backed document store with a notification outbox.
type Store struct {
	db         *sql.DB
	path       string
	account    string
	bucket     string
	visibility time.Duration
	retryDelay time.Duration
	now        func() time.Time
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.knowledge/data/knowledge.db.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".knowledge", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "knowledge.db")

	// WAL lets the indexer read while sync writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:         db,
		path:       dbPath,
		account:    "local",
		bucket:     "knowledge",
		visibility: DefaultVisibilityTimeout,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// Queue returns the change queue fed by this store's mutations.
func (s *Store) Queue() *Queue {
	return &Queue{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// enqueue writes a change notification into the outbox within tx.
func (s *Store) enqueue(ctx context.Context, tx *sql.Tx, key string, size int64, etag string, event domain.EventType) error {
	now := s.now()
	n := domain.NewChangeNotification(s.account, s.bucket, key, size, etag, event, now)
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (id, body, attempts, available_at, created_at)
		VALUES (?, ?, 0, ?, ?)
	`, uuid.NewString(), string(body), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueueing notification: %w", err)
	}
	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// Get retrieves the document at key.
func (d *documentStore) Get(ctx context.Context, key string) (*domain.Document, error) {
	var body string
	err := d.store.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE key = ?", key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", key, err)
	}

	var doc domain.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling document %s: %w", key, err)
	}
	return &doc, nil
}

// Head reports whether key exists.
func (d *documentStore) Head(ctx context.Context, key string) (bool, error) {
	var one int
	err := d.store.db.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking document %s: %w", key, err)
	}
	return true, nil
}

// Put stores or replaces the document at key and records a create
// notification atomically.
func (d *documentStore) Put(ctx context.Context, key string, doc *domain.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling document %s: %w", key, err)
	}
	sum := sha256.Sum256(raw)
	etag := hex.EncodeToString(sum[:16])

	tx, err := d.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (key, body, etag, size, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			etag = excluded.etag,
			size = excluded.size,
			updated_at = excluded.updated_at
	`, key, string(raw), etag, len(raw), d.store.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving document %s: %w", key, err)
	}

	if err := d.store.enqueue(ctx, tx, key, int64(len(raw)), etag, domain.EventObjectCreate); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes key. A delete notification is recorded only when the
// key existed.
func (d *documentStore) Delete(ctx context.Context, key string) error {
	tx, err := d.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var etag string
	err = tx.QueryRowContext(ctx, "DELETE FROM documents WHERE key = ? RETURNING etag", key).Scan(&etag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", key, err)
	}

	if err := d.store.enqueue(ctx, tx, key, 0, etag, domain.EventObjectDelete); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns keys under opts.Prefix in lexical order, starting after
// opts.Cursor.
func (d *documentStore) List(ctx context.Context, opts driven.ListOptions) (*driven.ListPage, error) {
	limit := driven.ClampLimit(opts.Limit)

	rows, err := d.store.db.QueryContext(ctx, `
		SELECT key FROM documents
		WHERE substr(key, 1, ?) = ? AND key > ?
		ORDER BY key
		LIMIT ?
	`, utf8.RuneCountInString(opts.Prefix), opts.Prefix, opts.Cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", opts.Prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0, limit)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keys: %w", err)
	}

	page := &driven.ListPage{Keys: keys}
	if len(keys) > limit {
		page.Keys = keys[:limit]
		page.Truncated = true
		page.Cursor = page.Keys[limit-1]
	}
	return page, nil
}
