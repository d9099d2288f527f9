package snapstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/didi/gendry/builder"
	_ "modernc.org/sqlite"

	"github.com/xxxsen/docmem/internal/config"
	"github.com/xxxsen/docmem/internal/db"
	"github.com/xxxsen/docmem/internal/pkg/dbutil"
)

const snapshotTable = "memory_snapshots"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_snapshots (
	scope_key TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	mtime INTEGER NOT NULL
)`

const upsertSnapshot = `
	INSERT INTO memory_snapshots (scope_key, data, mtime)
	VALUES (?, ?, ?)
	ON CONFLICT (scope_key) DO UPDATE SET
		data = EXCLUDED.data,
		mtime = EXCLUDED.mtime
`

type sqliteConfig struct {
	Path string `json:"path"`
}

// sqlStore keeps snapshots in one table of a sqlite or postgres database.
type sqlStore struct {
	db     *sql.DB
	driver string
}

func init() {
	Register("sqlite", createSQLiteStore)
	Register("postgres", createPostgresStore)
}

func createSQLiteStore(args interface{}) (Store, error) {
	config := &sqliteConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	return NewSQLite(config.Path)
}

func NewSQLite(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init sqlite snapshot table: %w", err)
	}
	return &sqlStore{db: conn, driver: "sqlite"}, nil
}

func createPostgresStore(args interface{}) (Store, error) {
	cfg := config.DatabaseConfig{}
	if err := decodeConfig(args, &cfg); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("postgres store requires dsn or host")
	}
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewPostgres(conn), nil
}

// NewPostgres wraps an open postgres connection whose schema is migrated.
func NewPostgres(conn *sql.DB) Store {
	return &sqlStore{db: conn, driver: "postgres"}
}

func (s *sqlStore) Type() string {
	return s.driver
}

func (s *sqlStore) Load(ctx context.Context, key string) ([]byte, error) {
	sqlStr, args, err := builder.BuildSelect(snapshotTable, map[string]interface{}{"scope_key": key}, []string{"data"})
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := s.db.QueryRowContext(ctx, dbutil.Rebind(s.driver, sqlStr), args...).Scan(&data); err != nil {
		if dbutil.IsNoRows(err) {
			return nil, notFound(key)
		}
		return nil, err
	}
	return data, nil
}

func (s *sqlStore) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("snapshot key is required")
	}
	_, err := s.db.ExecContext(ctx, dbutil.Rebind(s.driver, upsertSnapshot), key, data, time.Now().UnixMilli())
	return err
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	sqlStr, args, err := builder.BuildDelete(snapshotTable, map[string]interface{}{"scope_key": key})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, dbutil.Rebind(s.driver, sqlStr), args...)
	return err
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
