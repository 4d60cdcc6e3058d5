package syncer

import (
	"strconv"
	"strings"
	"time"

	"tradesync/store"
)

// ParsedTime the outcome of parsing one raw timestamp value.
// Either it parsed to positive epoch millis or it did not; the single
// fallback rule (use "now") is applied by the caller, nowhere else.
type ParsedTime struct {
	Millis int64
	Valid  bool
}

// ParseTimestamp parses a raw timestamp defensively: numeric epoch millis are
// used as-is, ISO-like strings are parsed as dates, anything unparseable or
// non-positive is Invalid.
func ParseTimestamp(v interface{}) ParsedTime {
	switch t := v.(type) {
	case int64:
		return validMillis(t)
	case int:
		return validMillis(int64(t))
	case float64:
		return validMillis(int64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return ParsedTime{}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return validMillis(ms)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return validMillis(parsed.UnixMilli())
			}
		}
	}
	return ParsedTime{}
}

func validMillis(ms int64) ParsedTime {
	if ms <= 0 {
		return ParsedTime{}
	}
	return ParsedTime{Millis: ms, Valid: true}
}

// timestampOr applies the single fallback rule: invalid parses become now
func timestampOr(v interface{}, now time.Time) int64 {
	if p := ParseTimestamp(v); p.Valid {
		return p.Millis
	}
	return now.UnixMilli()
}

// ComputeROI derives return-on-investment percent from pnl and position size.
// roi = pnl / (quantity * avgEntryPrice / leverage) * 100; zero when
// quantity, leverage, or avgEntryPrice is non-positive.
func ComputeROI(pnl, quantity, leverage, avgEntryPrice float64) float64 {
	if quantity <= 0 || leverage <= 0 || avgEntryPrice <= 0 {
		return 0
	}
	return pnl / (quantity * avgEntryPrice / leverage) * 100
}

// rawString returns the first non-empty string among the named fields
func rawString(record map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := record[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(v, 10)
		}
	}
	return ""
}

// rawFloat returns the first parseable number among the named fields
func rawFloat(record map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		switch v := record[key].(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case int:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// TransformOrders maps raw closed-position records into canonical orders.
// Records missing any identifying field (id, symbol, side, open timestamp)
// are dropped rather than persisted half-populated.
func TransformOrders(userID, exchangeName string, raws []map[string]interface{}, now time.Time) []*store.ClosedOrder {
	orders := make([]*store.ClosedOrder, 0, len(raws))
	for _, raw := range raws {
		externalID := rawString(raw, "orderId", "id")
		symbol := rawString(raw, "symbol")
		side := rawString(raw, "side")
		openedRaw, hasOpened := firstPresent(raw, "createdTime", "openTime")
		if externalID == "" || symbol == "" || side == "" || !hasOpened {
			continue
		}

		quantity := rawFloat(raw, "qty", "closedSize")
		leverage := rawFloat(raw, "leverage")
		avgEntryPrice := rawFloat(raw, "avgEntryPrice")
		pnl := rawFloat(raw, "closedPnl", "pnl")

		var margin float64
		if leverage > 0 {
			margin = quantity * avgEntryPrice / leverage
		}

		closedRaw, _ := firstPresent(raw, "updatedTime", "closeTime")
		openedAt := timestampOr(openedRaw, now)

		orders = append(orders, &store.ClosedOrder{
			UserID:        userID,
			Exchange:      exchangeName,
			ExternalID:    externalID,
			Symbol:        strings.ToUpper(symbol),
			OpenedAt:      openedAt,
			ClosedAt:      timestampOr(closedRaw, now),
			Direction:     side,
			Leverage:      leverage,
			Quantity:      quantity,
			Margin:        margin,
			AvgEntryPrice: avgEntryPrice,
			OpenFee:       rawFloat(raw, "openFee"),
			CloseFee:      rawFloat(raw, "closeFee"),
			PnL:           pnl,
			ROI:           ComputeROI(pnl, quantity, leverage, avgEntryPrice),
			SyncedAt:      now.UnixMilli(),
		})
	}
	return orders
}

// TransformTransactions maps raw ledger records into canonical transactions.
// Records missing the timestamp or type are dropped.
func TransformTransactions(userID, exchangeName string, raws []map[string]interface{}, now time.Time) []*store.LedgerTransaction {
	txs := make([]*store.LedgerTransaction, 0, len(raws))
	for _, raw := range raws {
		txType := rawString(raw, "type")
		occurredRaw, hasOccurred := firstPresent(raw, "transactionTime", "time")
		if txType == "" || !hasOccurred {
			continue
		}

		txs = append(txs, &store.LedgerTransaction{
			UserID:      userID,
			Exchange:    exchangeName,
			OccurredAt:  timestampOr(occurredRaw, now),
			Symbol:      strings.ToUpper(rawString(raw, "symbol")),
			Currency:    rawString(raw, "currency"),
			Category:    rawString(raw, "category"),
			Side:        rawString(raw, "side"),
			TxType:      txType,
			Change:      rawFloat(raw, "change"),
			CashFlow:    rawFloat(raw, "cashFlow"),
			CashBalance: rawFloat(raw, "cashBalance"),
			Funding:     rawFloat(raw, "funding"),
			Fee:         rawFloat(raw, "fee"),
			SyncedAt:    now.UnixMilli(),
		})
	}
	return txs
}

func firstPresent(record map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := record[key]; ok && v != nil && v != "" {
			return v, true
		}
	}
	return nil, false
}

// DedupOrders keeps only the first occurrence per dedup key within a batch
func DedupOrders(batch []*store.ClosedOrder) []*store.ClosedOrder {
	seen := make(map[string]struct{}, len(batch))
	out := make([]*store.ClosedOrder, 0, len(batch))
	for _, o := range batch {
		key := o.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}
	return out
}

// DedupTransactions keeps only the first occurrence per dedup key within a batch
func DedupTransactions(batch []*store.LedgerTransaction) []*store.LedgerTransaction {
	seen := make(map[string]struct{}, len(batch))
	out := make([]*store.LedgerTransaction, 0, len(batch))
	for _, t := range batch {
		key := t.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
