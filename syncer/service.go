package syncer

import (
	"context"
	"time"

	"tradesync/cache"
	"tradesync/exchange"
	"tradesync/logger"
	"tradesync/store"
)

// watermark overlap: delta syncs re-fetch a window before the last
// synchronized record instead of trusting it as an exact cursor, so a sync
// interrupted mid-stage cannot leave a silent gap. Duplicate rows from the
// overlap are absorbed by the dedup keys.
const defaultOverlap = time.Hour

// reads with no explicit start default to this many days back, so an open
// request never triggers a sync from the epoch
const defaultReadWindowDays = 90

// ClientFactory resolves an authenticated exchange client for an owner.
// It returns a *BadRequestError when the exchange is unsupported or the
// owner has no stored credentials.
type ClientFactory func(owner, exchangeName string) (exchange.Client, error)

// ServiceConfig tuning knobs for the sync service
type ServiceConfig struct {
	MaxChunkDays int
	Overlap      time.Duration
	Fetcher      *Fetcher
}

// Service orchestrates the fetch/canonicalize/persist pipeline and serves
// the cached read path on top of it.
type Service struct {
	store        *store.Store
	cache        *cache.Cache
	fetcher      *Fetcher
	clients      ClientFactory
	maxChunkDays int
	overlapMs    int64
}

// NewService creates the sync service. cfg may be nil for defaults.
func NewService(st *store.Store, ca *cache.Cache, clients ClientFactory, cfg *ServiceConfig) *Service {
	s := &Service{
		store:        st,
		cache:        ca,
		fetcher:      NewFetcher(),
		clients:      clients,
		maxChunkDays: 7,
		overlapMs:    int64(defaultOverlap / time.Millisecond),
	}
	if cfg != nil {
		if cfg.MaxChunkDays > 0 {
			s.maxChunkDays = cfg.MaxChunkDays
		}
		if cfg.Overlap > 0 {
			s.overlapMs = int64(cfg.Overlap / time.Millisecond)
		}
		if cfg.Fetcher != nil {
			s.fetcher = cfg.Fetcher
		}
	}
	return s
}

// OrderQuery parameters of a cached closed-position read
type OrderQuery struct {
	Owner         string
	Exchange      string
	Start         int64 // unix ms
	End           int64 // unix ms, 0 = now
	Sort          string
	Search        string
	Page          int
	Limit         int
	BookmarksOnly bool
}

// OrderPage the composed closed-position read result
type OrderPage struct {
	Records    []*store.ClosedOrder `json:"records"`
	TotalPages int                  `json:"total_pages"`
	Totals     *store.Totals        `json:"totals"`
}

// TransactionQuery parameters of a cached ledger read
type TransactionQuery struct {
	Owner         string
	Exchange      string
	Start         int64
	End           int64
	Sort          string
	Search        string
	Page          int
	Limit         int
	BookmarksOnly bool
}

// TransactionPage the composed ledger read result
type TransactionPage struct {
	Records    []*store.LedgerTransaction `json:"records"`
	TotalPages int                        `json:"total_pages"`
}

func (q *OrderQuery) normalize() error {
	if q.Owner == "" {
		return NewBadRequest("owner is required")
	}
	if !exchange.Supported(q.Exchange) {
		return NewBadRequest("unsupported exchange: %s", q.Exchange)
	}
	if q.End == 0 {
		q.End = time.Now().UnixMilli()
	}
	if q.Start <= 0 {
		q.Start = q.End - defaultReadWindowDays*millisPerDay
	}
	if q.End <= q.Start {
		return NewBadRequest("invalid time range")
	}
	return nil
}

func (q *TransactionQuery) normalize() error {
	o := OrderQuery{Owner: q.Owner, Exchange: q.Exchange, Start: q.Start, End: q.End}
	if err := o.normalize(); err != nil {
		return err
	}
	q.Start = o.Start
	q.End = o.End
	return nil
}

// Orders serves a paginated closed-position read, syncing from the remote
// exchange first when the local store does not cover the range. Totals are
// always recomputed from the store, never from the fetch response.
func (s *Service) Orders(ctx context.Context, q OrderQuery) (*OrderPage, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}

	key := cache.Key(q.Owner, q.Exchange, "orders", q)
	if v, ok := s.cache.Get(key); ok {
		return v.(*OrderPage), nil
	}

	if _, err := s.SyncOrders(ctx, q.Owner, q.Exchange, q.Start, q.End, nil); err != nil {
		return nil, err
	}

	filter := store.OrderFilter{
		UserID:        q.Owner,
		Exchange:      q.Exchange,
		Start:         q.Start,
		End:           q.End,
		Search:        q.Search,
		BookmarksOnly: q.BookmarksOnly,
	}
	records, totalPages, err := s.store.Order().List(filter, q.Sort, q.Page, q.Limit)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.Order().Totals(filter)
	if err != nil {
		return nil, err
	}

	page := &OrderPage{Records: records, TotalPages: totalPages, Totals: totals}
	s.cache.Set(key, page, cache.TTLRead)
	return page, nil
}

// Transactions serves a paginated ledger read with the same sync-on-miss flow
func (s *Service) Transactions(ctx context.Context, q TransactionQuery) (*TransactionPage, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}

	key := cache.Key(q.Owner, q.Exchange, "transactions", q)
	if v, ok := s.cache.Get(key); ok {
		return v.(*TransactionPage), nil
	}

	if _, err := s.SyncTransactions(ctx, q.Owner, q.Exchange, q.Start, q.End, nil); err != nil {
		return nil, err
	}

	filter := store.TransactionFilter{
		UserID:        q.Owner,
		Exchange:      q.Exchange,
		Start:         q.Start,
		End:           q.End,
		Search:        q.Search,
		BookmarksOnly: q.BookmarksOnly,
	}
	records, totalPages, err := s.store.Transaction().List(filter, q.Sort, q.Page, q.Limit)
	if err != nil {
		return nil, err
	}

	page := &TransactionPage{Records: records, TotalPages: totalPages}
	s.cache.Set(key, page, cache.TTLRead)
	return page, nil
}

// Totals serves profit/loss aggregates from persisted rows only
func (s *Service) Totals(ctx context.Context, q OrderQuery) (*store.Totals, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}

	key := cache.Key(q.Owner, q.Exchange, "totals", q)
	if v, ok := s.cache.Get(key); ok {
		return v.(*store.Totals), nil
	}

	totals, err := s.store.Order().Totals(store.OrderFilter{
		UserID:        q.Owner,
		Exchange:      q.Exchange,
		Start:         q.Start,
		End:           q.End,
		Search:        q.Search,
		BookmarksOnly: q.BookmarksOnly,
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, totals, cache.TTLShort)
	return totals, nil
}

// SyncOrders brings the store up to date for [start, end]. Empty coverage
// triggers a full-range fetch; partial coverage a delta fetch from the
// watermark minus the overlap window. Returns the number of rows inserted.
func (s *Service) SyncOrders(ctx context.Context, owner, exchangeName string, start, end int64, hook ChunkHook) (int, error) {
	client, err := s.clients(owner, exchangeName)
	if err != nil {
		return 0, err
	}

	from, err := s.fetchStart(owner, exchangeName, start, end, s.store.Order())
	if err != nil {
		return 0, err
	}

	raws, err := s.fetcher.FetchRange(ctx, client, exchange.MethodClosedPositions, nil, from, end, s.maxChunkDays, hook)
	if err != nil {
		return 0, err
	}
	if len(raws) == 0 {
		return 0, nil
	}

	now := time.Now()
	candidates := DedupOrders(TransformOrders(owner, exchangeName, raws, now))
	fresh, err := s.filterNewOrders(owner, exchangeName, candidates)
	if err != nil {
		return 0, err
	}

	inserted, skipped, err := s.store.Order().InsertBatch(fresh)
	if err != nil {
		return inserted, err
	}
	if skipped > 0 {
		logger.Infof("📦 %s orders: %d duplicates skipped during insert", exchangeName, skipped)
	}
	if inserted > 0 {
		logger.Infof("✅ Synced %d new closed orders (%s, owner %s)", inserted, exchangeName, owner)
	}
	return inserted, nil
}

// SyncTransactions brings the ledger store up to date for [start, end]
func (s *Service) SyncTransactions(ctx context.Context, owner, exchangeName string, start, end int64, hook ChunkHook) (int, error) {
	client, err := s.clients(owner, exchangeName)
	if err != nil {
		return 0, err
	}

	from, err := s.fetchStart(owner, exchangeName, start, end, s.store.Transaction())
	if err != nil {
		return 0, err
	}

	raws, err := s.fetcher.FetchRange(ctx, client, exchange.MethodTransactionLog, nil, from, end, s.maxChunkDays, hook)
	if err != nil {
		return 0, err
	}
	if len(raws) == 0 {
		return 0, nil
	}

	now := time.Now()
	candidates := DedupTransactions(TransformTransactions(owner, exchangeName, raws, now))
	fresh, err := s.filterNewTransactions(owner, exchangeName, candidates)
	if err != nil {
		return 0, err
	}

	inserted, skipped, err := s.store.Transaction().InsertBatch(fresh)
	if err != nil {
		return inserted, err
	}
	if skipped > 0 {
		logger.Infof("📦 %s transactions: %d duplicates skipped during insert", exchangeName, skipped)
	}
	if inserted > 0 {
		logger.Infof("✅ Synced %d new ledger transactions (%s, owner %s)", inserted, exchangeName, owner)
	}
	return inserted, nil
}

// coverage abstracts the two record stores for the full-vs-delta decision
type coverage interface {
	CountInRange(userID, exchange string, start, end int64) (int, error)
	Watermark(userID, exchange string, start, end int64) (int64, error)
}

// fetchStart decides where the remote fetch begins: the range start when the
// store holds nothing in range, otherwise the watermark minus the overlap.
func (s *Service) fetchStart(owner, exchangeName string, start, end int64, cov coverage) (int64, error) {
	count, err := cov.CountInRange(owner, exchangeName, start, end)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return start, nil
	}

	watermark, err := cov.Watermark(owner, exchangeName, start, end)
	if err != nil {
		return 0, err
	}
	from := watermark - s.overlapMs
	if from < start {
		from = start
	}
	return from, nil
}

// filterNewOrders drops candidates whose dedup key already exists in the store
func (s *Service) filterNewOrders(owner, exchangeName string, candidates []*store.ClosedOrder) ([]*store.ClosedOrder, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	minOpened, maxOpened := candidates[0].OpenedAt, candidates[0].OpenedAt
	for _, o := range candidates[1:] {
		if o.OpenedAt < minOpened {
			minOpened = o.OpenedAt
		}
		if o.OpenedAt > maxOpened {
			maxOpened = o.OpenedAt
		}
	}

	existing, err := s.store.Order().ExistingKeys(owner, exchangeName, minOpened, maxOpened)
	if err != nil {
		return nil, err
	}

	fresh := make([]*store.ClosedOrder, 0, len(candidates))
	for _, o := range candidates {
		if _, dup := existing[o.DedupKey()]; dup {
			continue
		}
		fresh = append(fresh, o)
	}
	return fresh, nil
}

// filterNewTransactions drops candidates whose dedup key already exists
func (s *Service) filterNewTransactions(owner, exchangeName string, candidates []*store.LedgerTransaction) ([]*store.LedgerTransaction, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	minOccurred, maxOccurred := candidates[0].OccurredAt, candidates[0].OccurredAt
	for _, t := range candidates[1:] {
		if t.OccurredAt < minOccurred {
			minOccurred = t.OccurredAt
		}
		if t.OccurredAt > maxOccurred {
			maxOccurred = t.OccurredAt
		}
	}

	existing, err := s.store.Transaction().ExistingKeys(owner, exchangeName, minOccurred, maxOccurred)
	if err != nil {
		return nil, err
	}

	fresh := make([]*store.LedgerTransaction, 0, len(candidates))
	for _, t := range candidates {
		if _, dup := existing[t.DedupKey()]; dup {
			continue
		}
		fresh = append(fresh, t)
	}
	return fresh, nil
}

// SetOrderBookmark toggles a bookmark and synchronously invalidates the
// owner+exchange cache scope before reporting success.
func (s *Service) SetOrderBookmark(owner, exchangeName string, id int64, bookmarked bool) error {
	if err := s.store.Order().SetBookmark(owner, id, bookmarked); err != nil {
		return err
	}
	s.cache.InvalidateScope(owner, exchangeName)
	return nil
}

// SetTransactionBookmark toggles a ledger bookmark with the same invalidation
func (s *Service) SetTransactionBookmark(owner, exchangeName string, id int64, bookmarked bool) error {
	if err := s.store.Transaction().SetBookmark(owner, id, bookmarked); err != nil {
		return err
	}
	s.cache.InvalidateScope(owner, exchangeName)
	return nil
}
