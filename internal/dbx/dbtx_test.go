package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// openFile opens path with the given busy timeout in milliseconds; 0 makes
// lock conflicts fail immediately.
func openFile(t *testing.T, path string, busyMillis int) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, busyMillis))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db := openFile(t, filepath.Join(t.TempDir(), "dbx.db"), 0)
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, v TEXT);`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	return n
}

func insert(ctx context.Context, tx DBTX) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('x')`)
	return err
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := setupDB(t)

	require.NoError(t, WithTx(context.Background(), db, nil, insert))
	require.Equal(t, 1, countRows(t, db), "must commit on success")
}

func TestWithTx_RollbackOnFnError(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, insert(ctx, tx))
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.Equal(t, 0, countRows(t, db), "must rollback when fn returns error")
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupDB(t)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
		require.Equal(t, 0, countRows(t, db), "must rollback on panic")
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, insert(ctx, tx))
		panic("kaput")
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	require.ErrorContains(t, err, "begin:")
	assert.False(t, IsBusy(err))
}

func TestWithTx_RollbackErrorIsJoined(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("conn lost"))

	err = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error {
		return errors.New("boom")
	})
	assert.ErrorContains(t, err, "boom")
	assert.ErrorContains(t, err, "rollback: conn lost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RetriesWhileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	holder := openFile(t, path, 5000)
	_, err := holder.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);`)
	require.NoError(t, err)
	writer := openFile(t, path, 0)

	lock, err := holder.Begin()
	require.NoError(t, err)
	require.NoError(t, insert(context.Background(), lock))

	var attempts atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- WithTx(context.Background(), writer, nil, func(ctx context.Context, tx DBTX) error {
			attempts.Add(1)
			return insert(ctx, tx)
		})
	}()

	require.Eventually(t, func() bool { return attempts.Load() >= 1 }, time.Second, time.Millisecond)
	require.NoError(t, lock.Commit())

	require.NoError(t, <-done)
	assert.Greater(t, attempts.Load(), int32(1))
	assert.Equal(t, 2, countRows(t, holder))
}

func TestWithTx_GivesUpWhenLockIsHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	holder := openFile(t, path, 5000)
	_, err := holder.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);`)
	require.NoError(t, err)
	writer := openFile(t, path, 0)

	lock, err := holder.Begin()
	require.NoError(t, err)
	defer lock.Rollback()
	require.NoError(t, insert(context.Background(), lock))

	orig := busyBackoff
	busyBackoff = time.Millisecond
	t.Cleanup(func() { busyBackoff = orig })

	var attempts int
	err = WithTx(context.Background(), writer, nil, func(ctx context.Context, tx DBTX) error {
		attempts++
		return insert(ctx, tx)
	})
	require.Error(t, err)
	assert.True(t, IsBusy(err))
	assert.Equal(t, BusyRetries+1, attempts)
}

func TestIsBusy_OtherErrors(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.False(t, IsBusy(errors.New("database is locked")))
	assert.False(t, IsBusy(sql.ErrNoRows))
}
