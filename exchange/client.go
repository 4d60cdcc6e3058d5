// Package exchange abstracts the remote trading venues the syncer pulls
// history from. Every venue is exposed through the same cursor-paginated
// Call contract; per-venue response shapes live in the contract table.
package exchange

import (
	"context"
	"fmt"
)

// Methods understood by every adapter
const (
	MethodClosedPositions = "position/closed-pnl"
	MethodTransactionLog  = "account/transaction-log"
)

// Params request parameters for a single page fetch.
// Well-known keys: startTime, endTime, cursor, limit, symbol, category.
type Params map[string]interface{}

// Page one page of raw records plus the cursor for the next page.
// An empty cursor means the page drained the range.
type Page struct {
	List   []map[string]interface{}
	Cursor string
}

// Client a remote exchange API client
type Client interface {
	// Name returns the exchange identifier ("bybit", "binance")
	Name() string
	// Call fetches one page of raw records for a method
	Call(ctx context.Context, method string, params Params) (*Page, error)
}

// New builds a client for a supported exchange
func New(name, apiKey, secretKey string) (Client, error) {
	switch name {
	case "bybit":
		return NewBybitClient(apiKey, secretKey), nil
	case "binance":
		return NewBinanceClient(apiKey, secretKey), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// Supported reports whether an exchange name has an adapter
func Supported(name string) bool {
	_, ok := contracts[name]
	return ok
}

// Int64 reads an int64-ish param
func (p Params) Int64(key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// String reads a string param
func (p Params) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}
