package store

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DBType database backend type
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
)

// DBConfig database connection configuration
type DBConfig struct {
	Type DBType

	// SQLite
	Path string

	// PostgreSQL
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DB wraps the connection with backend-aware statement handling. Queries are
// written once in sqlite form (? placeholders, sqlite DDL); the wrapper
// rewrites them for postgres.
type DB struct {
	conn *sql.DB
	Type DBType
}

// Exec runs a statement after placeholder rebinding
func (d *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return d.conn.Exec(d.rebind(query), args...)
}

// Query runs a query after placeholder rebinding
func (d *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return d.conn.Query(d.rebind(query), args...)
}

// QueryRow runs a single-row query after placeholder rebinding
func (d *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return d.conn.QueryRow(d.rebind(query), args...)
}

// ExecDDL runs a schema statement after dialect translation
func (d *DB) ExecDDL(query string) (sql.Result, error) {
	return d.conn.Exec(d.ddl(query))
}

// Begin starts a transaction whose statements are rebound the same way
func (d *DB) Begin() (*Tx, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, db: d}, nil
}

// Close closes the connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Tx a transaction with backend-aware placeholder rebinding
type Tx struct {
	tx *sql.Tx
	db *DB
}

func (t *Tx) Exec(query string, args ...interface{}) (sql.Result, error) {
	return t.tx.Exec(t.db.rebind(query), args...)
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// rebind converts ? placeholders into $N ordinals for postgres.
// None of the statements here embed a literal question mark.
func (d *DB) rebind(query string) string {
	if d.Type != DBTypePostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ddl translates the sqlite schema dialect for postgres
func (d *DB) ddl(query string) string {
	if d.Type != DBTypePostgres {
		return query
	}
	replacements := [][2]string{
		{"INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY"},
		{"INTEGER", "BIGINT"},
		{"REAL", "DOUBLE PRECISION"},
		{"BOOLEAN DEFAULT 0", "BOOLEAN DEFAULT FALSE"},
		{"BOOLEAN DEFAULT 1", "BOOLEAN DEFAULT TRUE"},
	}
	for _, r := range replacements {
		query = strings.ReplaceAll(query, r[0], r[1])
	}
	return query
}

// DBDriver wraps the database connection with its backend type
type DBDriver struct {
	Type DBType
	db   *DB
}

// NewDBDriver opens a database connection for the given configuration
func NewDBDriver(cfg DBConfig) (*DBDriver, error) {
	switch cfg.Type {
	case DBTypeSQLite, "":
		path := cfg.Path
		if path == "" {
			path = "data/data.db"
		}
		if dir := dirOf(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// modernc sqlite serializes writes; a single connection avoids lock churn
		db.SetMaxOpenConns(1)
		return &DBDriver{Type: DBTypeSQLite, db: &DB{conn: db, Type: DBTypeSQLite}}, nil

	case DBTypePostgres:
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslMode)
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &DBDriver{Type: DBTypePostgres, db: &DB{conn: db, Type: DBTypePostgres}}, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// NewDBDriverFromEnv opens a database using DB_TYPE and related variables.
// DB_TYPE: sqlite (default) or postgres.
func NewDBDriverFromEnv() (*DBDriver, error) {
	dbType := DBType(strings.ToLower(os.Getenv("DB_TYPE")))
	if dbType == "" {
		dbType = DBTypeSQLite
	}

	switch dbType {
	case DBTypeSQLite:
		return NewDBDriver(DBConfig{Type: DBTypeSQLite, Path: os.Getenv("DB_PATH")})
	case DBTypePostgres:
		return NewDBDriver(DBConfig{
			Type:     DBTypePostgres,
			Host:     envOr("DB_HOST", "localhost"),
			Port:     envOr("DB_PORT", "5432"),
			User:     envOr("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     envOr("DB_NAME", "tradesync"),
			SSLMode:  os.Getenv("DB_SSLMODE"),
		})
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE: %s", dbType)
	}
}

// DB returns the wrapped connection
func (d *DBDriver) DB() *DB {
	return d.db
}

// Close closes the connection
func (d *DBDriver) Close() error {
	return d.db.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

// isUniqueViolation reports whether err is a uniqueness constraint failure.
// Both backends surface it in the error text; there is no portable code.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}
