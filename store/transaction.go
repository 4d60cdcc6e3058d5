package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// LedgerTransaction a wallet ledger entry synchronized from an exchange.
// Uniqueness is enforced on (exchange, occurred_at, tx_type, user_id).
type LedgerTransaction struct {
	ID          int64   `json:"id"`
	UserID      string  `json:"user_id"`
	Exchange    string  `json:"exchange"`
	OccurredAt  int64   `json:"occurred_at"` // unix ms
	Symbol      string  `json:"symbol"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
	Side        string  `json:"side"`
	TxType      string  `json:"type"` // TRADE, SETTLEMENT, TRANSFER_IN, ...
	Change      float64 `json:"change"`
	CashFlow    float64 `json:"cash_flow"`
	CashBalance float64 `json:"cash_balance"`
	Funding     float64 `json:"funding"`
	Fee         float64 `json:"fee"`
	Bookmarked  bool    `json:"bookmarked"`
	SyncedAt    int64   `json:"synced_at"` // unix ms
}

// DedupKey returns the composite duplicate-suppression key
func (t *LedgerTransaction) DedupKey() string {
	return fmt.Sprintf("%s|%d|%s|%s", t.Exchange, t.OccurredAt, t.TxType, t.UserID)
}

// TransactionFilter narrows ledger queries. Start/End of 0 mean unbounded.
type TransactionFilter struct {
	UserID        string
	Exchange      string
	Start         int64
	End           int64
	Search        string
	BookmarksOnly bool
}

// TransactionStore ledger transaction storage
type TransactionStore struct {
	db *DB
}

func (s *TransactionStore) initTables() error {
	_, err := s.db.ExecDDL(`
		CREATE TABLE IF NOT EXISTS ledger_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			occurred_at INTEGER NOT NULL,
			symbol TEXT DEFAULT '',
			currency TEXT DEFAULT '',
			category TEXT DEFAULT '',
			side TEXT DEFAULT '',
			tx_type TEXT NOT NULL,
			change REAL DEFAULT 0,
			cash_flow REAL DEFAULT 0,
			cash_balance REAL DEFAULT 0,
			funding REAL DEFAULT 0,
			fee REAL DEFAULT 0,
			bookmarked BOOLEAN DEFAULT 0,
			synced_at INTEGER NOT NULL,
			UNIQUE(exchange, occurred_at, tx_type, user_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ledger_transactions table: %w", err)
	}

	indices := []string{
		`CREATE INDEX IF NOT EXISTS idx_ledger_owner ON ledger_transactions(user_id, exchange)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_occurred ON ledger_transactions(user_id, exchange, occurred_at DESC)`,
	}
	for _, idx := range indices {
		if _, err := s.db.ExecDDL(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// ExistingKeys returns the dedup keys of rows already persisted for this owner
// and exchange whose occurred_at falls in [minOccurredAt, maxOccurredAt].
func (s *TransactionStore) ExistingKeys(userID, exchange string, minOccurredAt, maxOccurredAt int64) (map[string]struct{}, error) {
	rows, err := s.db.Query(`
		SELECT occurred_at, tx_type FROM ledger_transactions
		WHERE user_id = ? AND exchange = ? AND occurred_at BETWEEN ? AND ?
	`, userID, exchange, minOccurredAt, maxOccurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing transaction keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var occurredAt int64
		var txType string
		if err := rows.Scan(&occurredAt, &txType); err != nil {
			continue
		}
		keys[fmt.Sprintf("%s|%d|%s|%s", exchange, occurredAt, txType, userID)] = struct{}{}
	}
	return keys, rows.Err()
}

// InsertBatch persists transactions with the same conflict handling as orders:
// one multi-row insert first, row-by-row fallback skipping duplicates.
func (s *TransactionStore) InsertBatch(txs []*LedgerTransaction) (inserted, skipped int, err error) {
	if len(txs) == 0 {
		return 0, 0, nil
	}

	if err := s.insertAll(txs); err == nil {
		return len(txs), 0, nil
	} else if !isUniqueViolation(err) {
		return 0, 0, err
	}

	for _, t := range txs {
		if err := s.insertOne(t); err != nil {
			if isUniqueViolation(err) {
				skipped++
				continue
			}
			return inserted, skipped, err
		}
		inserted++
	}
	return inserted, skipped, nil
}

func (s *TransactionStore) insertAll(txs []*LedgerTransaction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, t := range txs {
		if _, err := tx.Exec(insertTxSQL, txArgs(t)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *TransactionStore) insertOne(t *LedgerTransaction) error {
	_, err := s.db.Exec(insertTxSQL, txArgs(t)...)
	return err
}

const insertTxSQL = `
	INSERT INTO ledger_transactions (
		user_id, exchange, occurred_at, symbol, currency, category, side,
		tx_type, change, cash_flow, cash_balance, funding, fee, bookmarked, synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func txArgs(t *LedgerTransaction) []interface{} {
	return []interface{}{
		t.UserID, t.Exchange, t.OccurredAt, t.Symbol, t.Currency, t.Category, t.Side,
		t.TxType, t.Change, t.CashFlow, t.CashBalance, t.Funding, t.Fee, t.Bookmarked, t.SyncedAt,
	}
}

var txSorts = map[string]string{
	"":              "occurred_at DESC",
	"occurred_desc": "occurred_at DESC",
	"occurred_asc":  "occurred_at ASC",
	"change_desc":   "change DESC",
	"change_asc":    "change ASC",
}

func (f *TransactionFilter) where() (string, []interface{}) {
	clauses := []string{"user_id = ?", "exchange = ?"}
	args := []interface{}{f.UserID, f.Exchange}
	if f.Start > 0 {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, f.Start)
	}
	if f.End > 0 {
		clauses = append(clauses, "occurred_at <= ?")
		args = append(args, f.End)
	}
	if f.Search != "" {
		search := "%" + strings.ToUpper(f.Search) + "%"
		clauses = append(clauses, "(symbol LIKE ? OR currency LIKE ?)")
		args = append(args, search, search)
	}
	if f.BookmarksOnly {
		clauses = append(clauses, "bookmarked = ?")
		args = append(args, true)
	}
	return strings.Join(clauses, " AND "), args
}

// List returns one page of matching transactions plus the total page count
func (s *TransactionStore) List(f TransactionFilter, sort string, page, limit int) ([]*LedgerTransaction, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	orderBy, ok := txSorts[sort]
	if !ok {
		orderBy = txSorts[""]
	}

	where, args := f.where()

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ledger_transactions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	totalPages := (total + limit - 1) / limit

	query := fmt.Sprintf(`
		SELECT id, user_id, exchange, occurred_at, symbol, currency, category, side,
			tx_type, change, cash_flow, cash_balance, funding, fee, bookmarked, synced_at
		FROM ledger_transactions WHERE %s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*LedgerTransaction
	for rows.Next() {
		var t LedgerTransaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Exchange, &t.OccurredAt, &t.Symbol, &t.Currency, &t.Category, &t.Side,
			&t.TxType, &t.Change, &t.CashFlow, &t.CashBalance, &t.Funding, &t.Fee, &t.Bookmarked, &t.SyncedAt,
		); err != nil {
			continue
		}
		txs = append(txs, &t)
	}
	return txs, totalPages, rows.Err()
}

// CountInRange counts persisted transactions covering the requested range
func (s *TransactionStore) CountInRange(userID, exchange string, start, end int64) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM ledger_transactions
		WHERE user_id = ? AND exchange = ? AND occurred_at BETWEEN ? AND ?
	`, userID, exchange, start, end).Scan(&count)
	return count, err
}

// Watermark returns the timestamp of the most recently synchronized
// transaction in range, or 0 when the range holds no rows.
func (s *TransactionStore) Watermark(userID, exchange string, start, end int64) (int64, error) {
	var watermark sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(occurred_at) FROM ledger_transactions
		WHERE user_id = ? AND exchange = ? AND occurred_at BETWEEN ? AND ?
	`, userID, exchange, start, end).Scan(&watermark)
	if err != nil {
		return 0, err
	}
	return watermark.Int64, nil
}

// SetBookmark toggles the bookmark flag on one owned transaction
func (s *TransactionStore) SetBookmark(userID string, id int64, bookmarked bool) error {
	res, err := s.db.Exec(`
		UPDATE ledger_transactions SET bookmarked = ? WHERE id = ? AND user_id = ?
	`, bookmarked, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
