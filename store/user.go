package store

import (
	"database/sql"
	"time"
)

// UserStore user storage
type UserStore struct {
	db *DB
}

// User account on whose behalf records are synchronized
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *UserStore) initTables() error {
	_, err := s.db.ExecDDL(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TEXT DEFAULT '',
			updated_at TEXT DEFAULT ''
		)
	`)
	return err
}

// Create creates a user
func (s *UserStore) Create(user *User) error {
	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.PasswordHash, now, now)
	return err
}

// GetByEmail fetches a user by email
func (s *UserStore) GetByEmail(email string) (*User, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, email))
}

// GetByID fetches a user by id
func (s *UserStore) GetByID(id string) (*User, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE id = ?
	`, id))
}

func (s *UserStore) scanOne(row *sql.Row) (*User, error) {
	var user User
	var createdAt, updatedAt sql.NullString
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if createdAt.Valid {
		user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}
	if updatedAt.Valid {
		user.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt.String)
	}
	return &user, nil
}
