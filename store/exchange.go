package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ExchangeStore exchange account storage.
// API credentials are encrypted at rest via the injected crypto functions.
type ExchangeStore struct {
	db          *DB
	encryptFunc func(string) string
	decryptFunc func(string) string
}

// ExchangeAccount per-user exchange API credentials
type ExchangeAccount struct {
	ID        string    `json:"id"` // UUID
	UserID    string    `json:"user_id"`
	Exchange  string    `json:"exchange"` // "bybit", "binance"
	Label     string    `json:"label"`    // user-defined account name
	APIKey    string    `json:"apiKey"`
	SecretKey string    `json:"secretKey"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *ExchangeStore) initTables() error {
	_, err := s.db.ExecDDL(`
		CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT 'Default',
			api_key TEXT DEFAULT '',
			secret_key TEXT DEFAULT '',
			enabled BOOLEAN DEFAULT 1,
			created_at TEXT DEFAULT '',
			updated_at TEXT DEFAULT '',
			UNIQUE(user_id, exchange)
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.ExecDDL(`CREATE INDEX IF NOT EXISTS idx_exchanges_user ON exchanges(user_id)`)
	return err
}

func (s *ExchangeStore) encrypt(v string) string {
	if s.encryptFunc == nil {
		return v
	}
	return s.encryptFunc(v)
}

func (s *ExchangeStore) decrypt(v string) string {
	if s.decryptFunc == nil {
		return v
	}
	return s.decryptFunc(v)
}

// Upsert creates or updates an exchange account for a user.
// Empty credential fields never overwrite stored values.
func (s *ExchangeStore) Upsert(acct *ExchangeAccount) error {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}

	existing, err := s.Get(acct.UserID, acct.Exchange)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	apiKey := acct.APIKey
	secretKey := acct.SecretKey
	if existing != nil {
		acct.ID = existing.ID
		if apiKey == "" {
			apiKey = existing.APIKey
		}
		if secretKey == "" {
			secretKey = existing.SecretKey
		}
	}

	now := time.Now().Format(time.RFC3339)
	_, err = s.db.Exec(`
		INSERT INTO exchanges (id, user_id, exchange, label, api_key, secret_key, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, exchange) DO UPDATE SET
			label = excluded.label,
			api_key = excluded.api_key,
			secret_key = excluded.secret_key,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, acct.ID, acct.UserID, acct.Exchange, acct.Label,
		s.encrypt(apiKey), s.encrypt(secretKey), acct.Enabled, now, now)
	return err
}

// Get fetches one exchange account with decrypted credentials
func (s *ExchangeStore) Get(userID, exchange string) (*ExchangeAccount, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, exchange, label, api_key, secret_key, enabled, created_at, updated_at
		FROM exchanges WHERE user_id = ? AND exchange = ?
	`, userID, exchange)
	return s.scanOne(row)
}

// List fetches all exchange accounts for a user with decrypted credentials
func (s *ExchangeStore) List(userID string) ([]*ExchangeAccount, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, exchange, label, api_key, secret_key, enabled, created_at, updated_at
		FROM exchanges WHERE user_id = ? ORDER BY exchange
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*ExchangeAccount
	for rows.Next() {
		acct, err := s.scan(rows)
		if err != nil {
			continue
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// Delete removes an exchange account
func (s *ExchangeStore) Delete(userID, exchange string) error {
	_, err := s.db.Exec(`DELETE FROM exchanges WHERE user_id = ? AND exchange = ?`, userID, exchange)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *ExchangeStore) scanOne(row *sql.Row) (*ExchangeAccount, error) {
	return s.scan(row)
}

func (s *ExchangeStore) scan(row rowScanner) (*ExchangeAccount, error) {
	var acct ExchangeAccount
	var createdAt, updatedAt sql.NullString
	err := row.Scan(&acct.ID, &acct.UserID, &acct.Exchange, &acct.Label,
		&acct.APIKey, &acct.SecretKey, &acct.Enabled, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	acct.APIKey = s.decrypt(acct.APIKey)
	acct.SecretKey = s.decrypt(acct.SecretKey)

	if createdAt.Valid {
		acct.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}
	if updatedAt.Valid {
		acct.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt.String)
	}
	return &acct, nil
}
