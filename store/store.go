// Package store provides the unified database storage layer.
// All database operations go through this package.
package store

import (
	"fmt"
	"sync"

	"tradesync/logger"
)

// Store unified data storage facade
type Store struct {
	db     *DB
	driver *DBDriver

	// Sub-stores (lazy initialization)
	user        *UserStore
	exchange    *ExchangeStore
	order       *OrderStore
	transaction *TransactionStore

	// Credential encryption functions
	encryptFunc func(string) string
	decryptFunc func(string) string

	mu sync.RWMutex
}

// New creates a new Store instance backed by SQLite
func New(dbPath string) (*Store, error) {
	driver, err := NewDBDriver(DBConfig{Type: DBTypeSQLite, Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStore(driver)
}

// NewFromEnv creates a new Store instance from environment variables.
// DB_TYPE: sqlite (default) or postgres.
func NewFromEnv() (*Store, error) {
	driver, err := NewDBDriverFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStore(driver)
}

func newStore(driver *DBDriver) (*Store, error) {
	s := &Store{db: driver.DB(), driver: driver}

	if err := s.initTables(); err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("✅ Database initialized (type: %s)", driver.Type)
	return s, nil
}

// SetCryptoFuncs sets the credential encryption/decryption functions
func (s *Store) SetCryptoFuncs(encrypt, decrypt func(string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptFunc = encrypt
	s.decryptFunc = decrypt

	if s.exchange != nil {
		s.exchange.encryptFunc = encrypt
		s.exchange.decryptFunc = decrypt
	}
}

// initTables initializes all database tables in dependency order
func (s *Store) initTables() error {
	if err := s.User().initTables(); err != nil {
		return fmt.Errorf("failed to initialize user tables: %w", err)
	}
	if err := s.Exchange().initTables(); err != nil {
		return fmt.Errorf("failed to initialize exchange tables: %w", err)
	}
	if err := s.Order().initTables(); err != nil {
		return fmt.Errorf("failed to initialize order tables: %w", err)
	}
	if err := s.Transaction().initTables(); err != nil {
		return fmt.Errorf("failed to initialize transaction tables: %w", err)
	}
	return nil
}

// User gets user storage
func (s *Store) User() *UserStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		s.user = &UserStore{db: s.db}
	}
	return s.user
}

// Exchange gets exchange account storage
func (s *Store) Exchange() *ExchangeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exchange == nil {
		s.exchange = &ExchangeStore{
			db:          s.db,
			encryptFunc: s.encryptFunc,
			decryptFunc: s.decryptFunc,
		}
	}
	return s.exchange
}

// Order gets closed-position storage
func (s *Store) Order() *OrderStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil {
		s.order = &OrderStore{db: s.db}
	}
	return s.order
}

// Transaction gets ledger transaction storage
func (s *Store) Transaction() *TransactionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transaction == nil {
		s.transaction = &TransactionStore{db: s.db}
	}
	return s.transaction
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.driver != nil {
		return s.driver.Close()
	}
	return s.db.Close()
}

// DBType returns the current database backend type
func (s *Store) DBType() DBType {
	if s.driver != nil {
		return s.driver.Type
	}
	return DBTypeSQLite
}

// InTx executes fn inside a transaction
func (s *Store) InTx(fn func(tx *Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
