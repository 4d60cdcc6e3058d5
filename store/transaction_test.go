package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func testTransaction(occurredAt int64, txType string, change float64) *LedgerTransaction {
	return &LedgerTransaction{
		UserID:     "user-1",
		Exchange:   "bybit",
		OccurredAt: occurredAt,
		Symbol:     "BTCUSDT",
		Currency:   "USDT",
		TxType:     txType,
		Change:     change,
		SyncedAt:   occurredAt,
	}
}

func TestTransactionInsertBatch_FallsBackOnDuplicates(t *testing.T) {
	st := setupTestStore(t)

	inserted, skipped, err := st.Transaction().InsertBatch([]*LedgerTransaction{
		testTransaction(1000, "TRADE", -1),
		testTransaction(2000, "SETTLEMENT", 0.5),
	})
	require.NoError(t, err)
	require.Equal(t, 2, inserted)
	require.Zero(t, skipped)

	// same timestamp, different type: a distinct dedup key, so it inserts
	inserted, skipped, err = st.Transaction().InsertBatch([]*LedgerTransaction{
		testTransaction(1000, "TRADE", -1),
		testTransaction(1000, "TRANSFER_IN", 100),
	})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)
	require.Equal(t, 1, skipped)
}

func TestTransactionExistingKeys(t *testing.T) {
	st := setupTestStore(t)

	_, _, err := st.Transaction().InsertBatch([]*LedgerTransaction{
		testTransaction(1000, "TRADE", -1),
		testTransaction(2000, "SETTLEMENT", 0.5),
	})
	require.NoError(t, err)

	keys, err := st.Transaction().ExistingKeys("user-1", "bybit", 0, 1500)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Contains(t, keys, testTransaction(1000, "TRADE", -1).DedupKey())
}

func TestTransactionList_SearchMatchesSymbolOrCurrency(t *testing.T) {
	st := setupTestStore(t)

	other := testTransaction(2000, "TRADE", -1)
	other.Symbol = "ETHUSDT"
	other.Currency = "ETH"
	_, _, err := st.Transaction().InsertBatch([]*LedgerTransaction{
		testTransaction(1000, "TRADE", -1),
		other,
	})
	require.NoError(t, err)

	f := TransactionFilter{UserID: "user-1", Exchange: "bybit"}

	f.Search = "eth"
	matches, _, err := st.Transaction().List(f, "", 1, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "ETHUSDT", matches[0].Symbol)

	f.Search = "usdt"
	matches, _, err = st.Transaction().List(f, "", 1, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestTransactionList_SortWhitelist(t *testing.T) {
	st := setupTestStore(t)

	_, _, err := st.Transaction().InsertBatch([]*LedgerTransaction{
		testTransaction(1000, "TRADE", -5),
		testTransaction(2000, "TRADE", 3),
	})
	require.NoError(t, err)

	f := TransactionFilter{UserID: "user-1", Exchange: "bybit"}

	byChange, _, err := st.Transaction().List(f, "change_desc", 1, 10)
	require.NoError(t, err)
	require.InDelta(t, 3.0, byChange[0].Change, 1e-9)

	defaultSort, _, err := st.Transaction().List(f, "", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2000), defaultSort[0].OccurredAt)
}

func TestTransactionWatermarkAndBookmark(t *testing.T) {
	st := setupTestStore(t)

	_, _, err := st.Transaction().InsertBatch([]*LedgerTransaction{
		testTransaction(1000, "TRADE", -1),
		testTransaction(4000, "SETTLEMENT", 0.5),
	})
	require.NoError(t, err)

	w, err := st.Transaction().Watermark("user-1", "bybit", 0, 10000)
	require.NoError(t, err)
	require.Equal(t, int64(4000), w)

	rows, _, err := st.Transaction().List(TransactionFilter{UserID: "user-1", Exchange: "bybit"}, "", 1, 10)
	require.NoError(t, err)
	require.NoError(t, st.Transaction().SetBookmark("user-1", rows[0].ID, true))
	require.ErrorIs(t, st.Transaction().SetBookmark("user-2", rows[0].ID, true), sql.ErrNoRows)
}
