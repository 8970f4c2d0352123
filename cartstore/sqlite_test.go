package cartstore

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susutoys/storefront/cart"
)

func openTestSQLite(t *testing.T) *SQLiteKV {
	t.Helper()
	db, err := OpenSQLite("sqlite", filepath.Join(t.TempDir(), "data", "cart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	return NewSQLiteKV(db)
}

func TestSQLiteKV_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := openTestSQLite(t)

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "k", []byte(`[1]`)))
	require.NoError(t, kv.Set(ctx, "k", []byte(`[2]`)))
	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[2]`), v)

	require.NoError(t, kv.Delete(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteKV_MigrateIsIdempotent(t *testing.T) {
	db, err := OpenSQLite("sqlite", filepath.Join(t.TempDir(), "cart.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
}

func TestSQLiteKV_BacksStore(t *testing.T) {
	ctx := context.Background()
	s := New(openTestSQLite(t), zerolog.Nop())

	_, err := s.Add(ctx, "visitor", cart.Entry{ID: 5, Name: "Robot", Price: 320000})
	require.NoError(t, err)
	_, err = s.Add(ctx, "visitor", cart.Entry{ID: 5, Name: "Robot", Price: 320000})
	require.NoError(t, err)

	entries, err := s.Load(ctx, "visitor")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Quantity)
}

func TestOpenSQLite_UnknownDriver(t *testing.T) {
	_, err := OpenSQLite("postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, err)
}

func TestSQLiteKV_QueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kv := NewSQLiteKV(db)
	kv.now = func() time.Time { return time.Unix(1700000000, 0) }
	boom := errors.New("disk I/O error")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM cart_kv WHERE key = ?`)).
		WithArgs("k").
		WillReturnError(boom)
	_, err = kv.Get(context.Background(), "k")
	assert.ErrorIs(t, err, boom)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cart_kv(key, value, updated_unix)`)).
		WithArgs("k", sqlmock.AnyArg(), int64(1700000000)).
		WillReturnError(boom)
	assert.ErrorIs(t, kv.Set(context.Background(), "k", []byte(`[]`)), boom)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_kv WHERE key = ?`)).
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, kv.Delete(context.Background(), "k"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
