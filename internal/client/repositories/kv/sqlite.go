package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/geopresence/internal/client/migrations"
	"github.com/dmitrijs2005/geopresence/internal/dbx"
	"github.com/dmitrijs2005/geopresence/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

// SQLiteRepository stores pairs in the "storage" table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// OpenSQLite opens (creating if needed) the SQLite file at path and migrates
// it. Several processes may share the file; writers wait on the busy timeout.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != MemoryDSN {
		if err := filex.EnsureParentDir(path); err != nil {
			return nil, err
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers inside this process.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM storage`)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan storage row: %w", err)
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate storage rows: %w", err)
	}

	return result, nil
}

func upsert(ctx context.Context, tx dbx.DBTX, values map[string][]byte) error {
	for key, value := range values {
		if value == nil {
			value = []byte{}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO storage (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to set storage[%s]: %w", key, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) SetMany(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return upsert(ctx, tx, values)
	})
	if err != nil {
		return fmt.Errorf("failed to write storage: %w", err)
	}
	return nil
}

// SetIfPresent checks guard and writes inside one transaction. Another
// process committing in between makes SQLite report a busy snapshot, which
// dbx.WithTx retries from the check.
func (r *SQLiteRepository) SetIfPresent(ctx context.Context, guard string, values map[string][]byte) (bool, error) {
	var wrote bool
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		wrote = false
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM storage WHERE key = ?`, guard).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check storage[%s]: %w", guard, err)
		}
		if err := upsert(ctx, tx, values); err != nil {
			return err
		}
		wrote = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to write storage: %w", err)
	}
	return wrote, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM storage WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete storage%v: %w", keys, err)
	}
	return nil
}
