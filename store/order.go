package store

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
)

// ClosedOrder a closed position synchronized from an exchange.
// Uniqueness is enforced on (exchange, user_id, symbol, opened_at): external
// ids are not guaranteed stable across replays, the open timestamp is.
type ClosedOrder struct {
	ID            int64   `json:"id"`
	UserID        string  `json:"user_id"`
	Exchange      string  `json:"exchange"`
	ExternalID    string  `json:"external_id"`
	Symbol        string  `json:"symbol"`
	OpenedAt      int64   `json:"opened_at"` // unix ms
	ClosedAt      int64   `json:"closed_at"` // unix ms
	Direction     string  `json:"direction"` // Buy/Sell
	Leverage      float64 `json:"leverage"`
	Quantity      float64 `json:"quantity"`
	Margin        float64 `json:"margin"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	OpenFee       float64 `json:"open_fee"`
	CloseFee      float64 `json:"close_fee"`
	PnL           float64 `json:"pnl"`
	ROI           float64 `json:"roi"` // percent
	Bookmarked    bool    `json:"bookmarked"`
	SyncedAt      int64   `json:"synced_at"` // unix ms
}

// DedupKey returns the composite duplicate-suppression key
func (o *ClosedOrder) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%d", o.Exchange, o.UserID, o.Symbol, o.OpenedAt)
}

// OrderFilter narrows closed-order queries. Start/End of 0 mean unbounded.
type OrderFilter struct {
	UserID        string
	Exchange      string
	Start         int64 // closed_at lower bound, unix ms
	End           int64 // closed_at upper bound, unix ms
	Search        string
	BookmarksOnly bool
}

// Totals profit/loss aggregates over closed orders
type Totals struct {
	Profit      float64 `json:"profit"`
	Loss        float64 `json:"loss"`
	ProfitCount int     `json:"profit_count"`
	LossCount   int     `json:"loss_count"`
}

// OrderStore closed-position storage
type OrderStore struct {
	db *DB
}

func (s *OrderStore) initTables() error {
	_, err := s.db.ExecDDL(`
		CREATE TABLE IF NOT EXISTS closed_orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			exchange TEXT NOT NULL,
			external_id TEXT DEFAULT '',
			symbol TEXT NOT NULL,
			opened_at INTEGER NOT NULL,
			closed_at INTEGER NOT NULL,
			direction TEXT DEFAULT '',
			leverage REAL DEFAULT 0,
			quantity REAL DEFAULT 0,
			margin REAL DEFAULT 0,
			avg_entry_price REAL DEFAULT 0,
			open_fee REAL DEFAULT 0,
			close_fee REAL DEFAULT 0,
			pnl REAL DEFAULT 0,
			roi REAL DEFAULT 0,
			bookmarked BOOLEAN DEFAULT 0,
			synced_at INTEGER NOT NULL,
			UNIQUE(exchange, user_id, symbol, opened_at)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create closed_orders table: %w", err)
	}

	indices := []string{
		`CREATE INDEX IF NOT EXISTS idx_closed_orders_owner ON closed_orders(user_id, exchange)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_orders_closed ON closed_orders(user_id, exchange, closed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_orders_symbol ON closed_orders(user_id, exchange, symbol)`,
	}
	for _, idx := range indices {
		if _, err := s.db.ExecDDL(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// ExistingKeys returns the dedup keys of rows already persisted for this owner
// and exchange whose opened_at falls in [minOpenedAt, maxOpenedAt].
func (s *OrderStore) ExistingKeys(userID, exchange string, minOpenedAt, maxOpenedAt int64) (map[string]struct{}, error) {
	rows, err := s.db.Query(`
		SELECT symbol, opened_at FROM closed_orders
		WHERE user_id = ? AND exchange = ? AND opened_at BETWEEN ? AND ?
	`, userID, exchange, minOpenedAt, maxOpenedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing order keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var symbol string
		var openedAt int64
		if err := rows.Scan(&symbol, &openedAt); err != nil {
			continue
		}
		keys[fmt.Sprintf("%s|%s|%s|%d", exchange, userID, symbol, openedAt)] = struct{}{}
	}
	return keys, rows.Err()
}

// InsertBatch persists orders, preferring a single multi-row insert.
// On a uniqueness conflict the batch falls back to row-by-row inserts so one
// duplicate does not discard the whole batch; conflicting rows are skipped.
func (s *OrderStore) InsertBatch(orders []*ClosedOrder) (inserted, skipped int, err error) {
	if len(orders) == 0 {
		return 0, 0, nil
	}

	if err := s.insertAll(orders); err == nil {
		return len(orders), 0, nil
	} else if !isUniqueViolation(err) {
		return 0, 0, err
	}

	for _, o := range orders {
		if err := s.insertOne(o); err != nil {
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

func (s *OrderStore) insertAll(orders []*ClosedOrder) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, o := range orders {
		if _, err := tx.Exec(insertOrderSQL, orderArgs(o)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *OrderStore) insertOne(o *ClosedOrder) error {
	_, err := s.db.Exec(insertOrderSQL, orderArgs(o)...)
	return err
}

const insertOrderSQL = `
	INSERT INTO closed_orders (
		user_id, exchange, external_id, symbol, opened_at, closed_at,
		direction, leverage, quantity, margin, avg_entry_price,
		open_fee, close_fee, pnl, roi, bookmarked, synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func orderArgs(o *ClosedOrder) []interface{} {
	return []interface{}{
		o.UserID, o.Exchange, o.ExternalID, o.Symbol, o.OpenedAt, o.ClosedAt,
		o.Direction, o.Leverage, o.Quantity, o.Margin, o.AvgEntryPrice,
		o.OpenFee, o.CloseFee, o.PnL, o.ROI, o.Bookmarked, o.SyncedAt,
	}
}

// sort name -> ORDER BY clause, whitelisted
var orderSorts = map[string]string{
	"":              "closed_at DESC",
	"closed_desc":   "closed_at DESC",
	"closed_asc":    "closed_at ASC",
	"opened_desc":   "opened_at DESC",
	"opened_asc":    "opened_at ASC",
	"pnl_desc":      "pnl DESC",
	"pnl_asc":       "pnl ASC",
	"roi_desc":      "roi DESC",
	"roi_asc":       "roi ASC",
}

func (f *OrderFilter) where() (string, []interface{}) {
	clauses := []string{"user_id = ?", "exchange = ?"}
	args := []interface{}{f.UserID, f.Exchange}
	if f.Start > 0 {
		clauses = append(clauses, "closed_at >= ?")
		args = append(args, f.Start)
	}
	if f.End > 0 {
		clauses = append(clauses, "closed_at <= ?")
		args = append(args, f.End)
	}
	if f.Search != "" {
		clauses = append(clauses, "symbol LIKE ?")
		args = append(args, "%"+strings.ToUpper(f.Search)+"%")
	}
	if f.BookmarksOnly {
		clauses = append(clauses, "bookmarked = ?")
		args = append(args, true)
	}
	return strings.Join(clauses, " AND "), args
}

// List returns one page of matching orders plus the total page count
func (s *OrderStore) List(f OrderFilter, sort string, page, limit int) ([]*ClosedOrder, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	orderBy, ok := orderSorts[sort]
	if !ok {
		orderBy = orderSorts[""]
	}

	where, args := f.where()

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM closed_orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	totalPages := (total + limit - 1) / limit

	query := fmt.Sprintf(`
		SELECT id, user_id, exchange, external_id, symbol, opened_at, closed_at,
			direction, leverage, quantity, margin, avg_entry_price,
			open_fee, close_fee, pnl, roi, bookmarked, synced_at
		FROM closed_orders WHERE %s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*ClosedOrder
	for rows.Next() {
		var o ClosedOrder
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.Exchange, &o.ExternalID, &o.Symbol, &o.OpenedAt, &o.ClosedAt,
			&o.Direction, &o.Leverage, &o.Quantity, &o.Margin, &o.AvgEntryPrice,
			&o.OpenFee, &o.CloseFee, &o.PnL, &o.ROI, &o.Bookmarked, &o.SyncedAt,
		); err != nil {
			continue
		}
		orders = append(orders, &o)
	}
	return orders, totalPages, rows.Err()
}

// CountInRange counts persisted orders covering the requested range
func (s *OrderStore) CountInRange(userID, exchange string, start, end int64) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM closed_orders
		WHERE user_id = ? AND exchange = ? AND closed_at BETWEEN ? AND ?
	`, userID, exchange, start, end).Scan(&count)
	return count, err
}

// Watermark returns the close time of the most recently synchronized order in
// range, or 0 when the range holds no rows.
func (s *OrderStore) Watermark(userID, exchange string, start, end int64) (int64, error) {
	var watermark sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(closed_at) FROM closed_orders
		WHERE user_id = ? AND exchange = ? AND closed_at BETWEEN ? AND ?
	`, userID, exchange, start, end).Scan(&watermark)
	if err != nil {
		return 0, err
	}
	return watermark.Int64, nil
}

// Totals aggregates profit/loss buckets over matching orders.
// Rows bucket by roi sign: roi >= 0 counts as profit, roi < 0 as loss.
func (s *OrderStore) Totals(f OrderFilter) (*Totals, error) {
	where, args := f.where()
	query := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN roi >= 0 THEN pnl ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN roi < 0 THEN pnl ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN roi >= 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN roi < 0 THEN 1 ELSE 0 END), 0)
		FROM closed_orders WHERE %s`, where)

	var t Totals
	if err := s.db.QueryRow(query, args...).Scan(&t.Profit, &t.Loss, &t.ProfitCount, &t.LossCount); err != nil {
		return nil, fmt.Errorf("failed to aggregate totals: %w", err)
	}
	t.Profit = round2(t.Profit)
	t.Loss = round2(t.Loss)
	return &t, nil
}

// SetBookmark toggles the bookmark flag on one owned order
func (s *OrderStore) SetBookmark(userID string, id int64, bookmarked bool) error {
	res, err := s.db.Exec(`
		UPDATE closed_orders SET bookmarked = ? WHERE id = ? AND user_id = ?
	`, bookmarked, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
