package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeROI(t *testing.T) {
	tests := []struct {
		name     string
		pnl      float64
		quantity float64
		leverage float64
		entry    float64
		want     float64
	}{
		{"profitable position", 5, 2, 10, 100, 25},
		{"losing position", -10, 2, 10, 100, -50},
		{"zero quantity", 5, 0, 10, 100, 0},
		{"zero leverage", 5, 2, 0, 100, 0},
		{"zero entry price", 5, 2, 10, 0, 0},
		{"negative quantity", 5, -1, 10, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, ComputeROI(tt.pnl, tt.quantity, tt.leverage, tt.entry), 1e-9)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name       string
		input      interface{}
		wantValid  bool
		wantMillis int64
	}{
		{"int64 millis", int64(1700000000000), true, 1700000000000},
		{"float64 millis", float64(1700000000000), true, 1700000000000},
		{"numeric string", "1700000000000", true, 1700000000000},
		{"rfc3339", "2023-11-14T22:13:20Z", true, 1700000000000},
		{"date only", "2023-11-14", true, time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC).UnixMilli()},
		{"datetime space", "2023-11-14 22:13:20", true, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC).UnixMilli()},
		{"zero", int64(0), false, 0},
		{"negative", int64(-5), false, 0},
		{"empty string", "", false, 0},
		{"garbage", "not-a-time", false, 0},
		{"nil", nil, false, 0},
		{"unsupported type", []string{"x"}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(tt.input)
			require.Equal(t, tt.wantValid, got.Valid)
			if tt.wantValid {
				require.Equal(t, tt.wantMillis, got.Millis)
			}
		})
	}
}

func validRawOrder() map[string]interface{} {
	return map[string]interface{}{
		"orderId":       "ord-1",
		"symbol":        "btcusdt",
		"side":          "Buy",
		"qty":           "2",
		"leverage":      "10",
		"avgEntryPrice": "100",
		"closedPnl":     "5",
		"openFee":       "0.11",
		"closeFee":      "0.12",
		"createdTime":   "1700000000000",
		"updatedTime":   "1700000600000",
	}
}

func TestTransformOrders_MapsFields(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	orders := TransformOrders("user-1", "bybit", []map[string]interface{}{validRawOrder()}, now)
	require.Len(t, orders, 1)

	o := orders[0]
	require.Equal(t, "user-1", o.UserID)
	require.Equal(t, "bybit", o.Exchange)
	require.Equal(t, "ord-1", o.ExternalID)
	require.Equal(t, "BTCUSDT", o.Symbol)
	require.Equal(t, int64(1700000000000), o.OpenedAt)
	require.Equal(t, int64(1700000600000), o.ClosedAt)
	require.InDelta(t, 20.0, o.Margin, 1e-9) // 2 * 100 / 10
	require.InDelta(t, 25.0, o.ROI, 1e-9)
	require.InDelta(t, 0.11, o.OpenFee, 1e-9)
	require.Equal(t, now.UnixMilli(), o.SyncedAt)
}

func TestTransformOrders_DropsIncompleteRecords(t *testing.T) {
	now := time.Now()
	missing := []string{"orderId", "symbol", "side", "createdTime"}
	for _, field := range missing {
		raw := validRawOrder()
		delete(raw, field)
		orders := TransformOrders("user-1", "bybit", []map[string]interface{}{raw}, now)
		require.Empty(t, orders, "record without %s should be dropped", field)
	}
}

func TestTransformOrders_CloseTimeFallsBackToNow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := validRawOrder()
	delete(raw, "updatedTime")

	orders := TransformOrders("user-1", "bybit", []map[string]interface{}{raw}, now)
	require.Len(t, orders, 1)
	require.Equal(t, now.UnixMilli(), orders[0].ClosedAt)
}

func TestTransformTransactions_MapsAndDrops(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raws := []map[string]interface{}{
		{
			"type":            "TRADE",
			"transactionTime": "1700000000000",
			"symbol":          "ethusdt",
			"currency":        "USDT",
			"change":          "-1.5",
			"cashBalance":     "998.5",
		},
		{"transactionTime": "1700000000001"}, // no type
		{"type": "SETTLEMENT"},               // no timestamp
	}

	txs := TransformTransactions("user-1", "bybit", raws, now)
	require.Len(t, txs, 1)
	require.Equal(t, "TRADE", txs[0].TxType)
	require.Equal(t, "ETHUSDT", txs[0].Symbol)
	require.Equal(t, int64(1700000000000), txs[0].OccurredAt)
	require.InDelta(t, -1.5, txs[0].Change, 1e-9)
	require.InDelta(t, 998.5, txs[0].CashBalance, 1e-9)
}

func TestDedupOrders_KeepsFirstOccurrence(t *testing.T) {
	now := time.Now()
	a := validRawOrder()
	b := validRawOrder()
	b["closedPnl"] = "99" // same dedup key, different payload
	c := validRawOrder()
	c["createdTime"] = "1700000000001"

	orders := TransformOrders("user-1", "bybit", []map[string]interface{}{a, b, c}, now)
	require.Len(t, orders, 3)

	deduped := DedupOrders(orders)
	require.Len(t, deduped, 2)
	require.InDelta(t, 5.0, deduped[0].PnL, 1e-9) // first wins
}

func TestDedupTransactions_KeepsFirstOccurrence(t *testing.T) {
	now := time.Now()
	raws := []map[string]interface{}{
		{"type": "TRADE", "transactionTime": "1700000000000", "change": "1"},
		{"type": "TRADE", "transactionTime": "1700000000000", "change": "2"},
		{"type": "SETTLEMENT", "transactionTime": "1700000000000"},
	}

	deduped := DedupTransactions(TransformTransactions("user-1", "bybit", raws, now))
	require.Len(t, deduped, 2)
	require.InDelta(t, 1.0, deduped[0].Change, 1e-9)
}
