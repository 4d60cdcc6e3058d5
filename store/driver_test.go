package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebindPostgresOrdinals(t *testing.T) {
	db := &DB{Type: DBTypePostgres}
	got := db.rebind(`INSERT INTO users (id, email) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET email = ?`)
	require.Equal(t, `INSERT INTO users (id, email) VALUES ($1, $2) ON CONFLICT(id) DO UPDATE SET email = $3`, got)
}

func TestRebindSQLitePassthrough(t *testing.T) {
	db := &DB{Type: DBTypeSQLite}
	q := `SELECT * FROM closed_orders WHERE user_id = ? AND bookmarked = ?`
	require.Equal(t, q, db.rebind(q))
}

func TestDDLDialectTranslation(t *testing.T) {
	db := &DB{Type: DBTypePostgres}

	got := db.ddl(`CREATE TABLE t (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		opened_at INTEGER NOT NULL,
		pnl REAL NOT NULL DEFAULT 0,
		bookmarked BOOLEAN DEFAULT 0,
		enabled BOOLEAN DEFAULT 1
	)`)

	require.Contains(t, got, "id BIGSERIAL PRIMARY KEY")
	require.Contains(t, got, "opened_at BIGINT NOT NULL")
	require.Contains(t, got, "pnl DOUBLE PRECISION NOT NULL DEFAULT 0")
	require.Contains(t, got, "bookmarked BOOLEAN DEFAULT FALSE")
	require.Contains(t, got, "enabled BOOLEAN DEFAULT TRUE")
	require.NotContains(t, got, "AUTOINCREMENT")
}

func TestDDLSQLitePassthrough(t *testing.T) {
	db := &DB{Type: DBTypeSQLite}
	q := `CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT)`
	require.Equal(t, q, db.ddl(q))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: closed_orders.exchange (2067)")))
	require.True(t, isUniqueViolation(errors.New(`pq: duplicate key value violates unique constraint "closed_orders_key"`)))
	require.False(t, isUniqueViolation(errors.New("no such table: closed_orders")))
	require.False(t, isUniqueViolation(nil))
}
