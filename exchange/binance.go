package exchange

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"
)

// BinanceClient adapter over the go-binance futures SDK.
// Responses are normalized into the same raw field names the Bybit endpoints
// use so the canonicalizer sees one record shape.
type BinanceClient struct {
	client *futures.Client
}

// NewBinanceClient creates a Binance USD-M futures API client
func NewBinanceClient(apiKey, secretKey string) *BinanceClient {
	return &BinanceClient{client: futures.NewClient(apiKey, secretKey)}
}

// NewBinanceClientWith wraps an existing futures client (tests, custom base URL)
func NewBinanceClientWith(client *futures.Client) *BinanceClient {
	return &BinanceClient{client: client}
}

func (c *BinanceClient) Name() string {
	return "binance"
}

// Call fetches one page of history records
func (c *BinanceClient) Call(ctx context.Context, method string, params Params) (*Page, error) {
	switch method {
	case MethodClosedPositions:
		return c.closedPositions(ctx, params)
	case MethodTransactionLog:
		return c.transactionLog(ctx, params)
	default:
		return nil, NewAPIError(c.Name(), method, "method not supported")
	}
}

// closedPositions maps account trades onto closed-position records. Binance
// reports realized PnL per fill and its trade endpoint is per-symbol, so the
// adapter discovers the symbols traded in the range from the realized-pnl
// income stream and walks them one by one. The cursor encodes the current
// symbol plus the fromId watermark within it; callers just drain it.
func (c *BinanceClient) closedPositions(ctx context.Context, params Params) (*Page, error) {
	limit := int(params.Int64("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	start := params.Int64("startTime")
	end := params.Int64("endTime")

	var symbols []string
	if pinned := params.String("symbol"); pinned != "" {
		symbols = []string{pinned}
	} else {
		var err error
		symbols, err = c.tradedSymbols(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if len(symbols) == 0 {
			return &Page{}, nil
		}
	}

	symbol := symbols[0]
	fromID := int64(0)
	if cursor := params.String("cursor"); cursor != "" {
		var err error
		symbol, fromID, err = parseTradeCursor(cursor)
		if err != nil {
			return nil, NewAPIError(c.Name(), MethodClosedPositions, "invalid cursor %q", cursor)
		}
	}
	pos := indexOf(symbols, symbol)
	if pos < 0 {
		return nil, NewAPIError(c.Name(), MethodClosedPositions, "cursor symbol %q not in range", symbol)
	}

	svc := c.client.NewListAccountTradeService().Symbol(symbol).Limit(limit)
	if fromID > 0 {
		svc = svc.FromID(fromID)
	} else {
		if start > 0 {
			svc = svc.StartTime(start)
		}
		if end > 0 {
			svc = svc.EndTime(end)
		}
	}

	trades, err := svc.Do(ctx)
	if err != nil {
		return nil, NewAPIError(c.Name(), MethodClosedPositions, "%v", err)
	}

	rows := make([]interface{}, 0, len(trades))
	var lastID int64
	for _, tr := range trades {
		lastID = tr.ID
		rows = append(rows, map[string]interface{}{
			"orderId":       strconv.FormatInt(tr.OrderID, 10),
			"symbol":        tr.Symbol,
			"side":          string(tr.Side),
			"qty":           tr.Quantity,
			"avgEntryPrice": tr.Price,
			"closedPnl":     tr.RealizedPnl,
			"closeFee":      tr.Commission,
			"leverage":      "1",
			"createdTime":   strconv.FormatInt(tr.Time, 10),
			"updatedTime":   strconv.FormatInt(tr.Time, 10),
		})
	}

	payload := map[string]interface{}{"rows": rows}
	switch {
	case len(trades) == limit && lastID > 0:
		// current symbol may have more fills
		payload["cursor"] = tradeCursor(symbol, lastID+1)
	case pos+1 < len(symbols):
		payload["cursor"] = tradeCursor(symbols[pos+1], 0)
	}
	return ParsePage(c.Name(), MethodClosedPositions, payload)
}

// tradedSymbols collects the symbols with realized pnl inside [start, end],
// paging the income stream by advancing past the last seen timestamp.
func (c *BinanceClient) tradedSymbols(ctx context.Context, start, end int64) ([]string, error) {
	const pageLimit = 1000
	seen := make(map[string]struct{})
	from := start

	for {
		svc := c.client.NewGetIncomeHistoryService().IncomeType("REALIZED_PNL").Limit(pageLimit)
		if from > 0 {
			svc = svc.StartTime(from)
		}
		if end > 0 {
			svc = svc.EndTime(end)
		}
		incomes, err := svc.Do(ctx)
		if err != nil {
			return nil, NewAPIError(c.Name(), MethodClosedPositions, "%v", err)
		}

		var last int64
		for _, inc := range incomes {
			if inc.Symbol != "" {
				seen[inc.Symbol] = struct{}{}
			}
			last = inc.Time
		}
		if len(incomes) < pageLimit || last <= 0 {
			break
		}
		from = last + 1
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// transactionLog maps income history onto ledger records. The endpoint has no
// native cursor; a full page synthesizes one by advancing startTime past the
// last returned record so no chunk is silently truncated.
func (c *BinanceClient) transactionLog(ctx context.Context, params Params) (*Page, error) {
	limit := params.Int64("limit")
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	start := params.Int64("startTime")
	if cursor := params.String("cursor"); cursor != "" {
		ms, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, NewAPIError(c.Name(), MethodTransactionLog, "invalid cursor %q", cursor)
		}
		start = ms
	}

	svc := c.client.NewGetIncomeHistoryService().Limit(limit)
	if v := params.String("symbol"); v != "" {
		svc = svc.Symbol(v)
	}
	if start > 0 {
		svc = svc.StartTime(start)
	}
	if v := params.Int64("endTime"); v > 0 {
		svc = svc.EndTime(v)
	}

	incomes, err := svc.Do(ctx)
	if err != nil {
		return nil, NewAPIError(c.Name(), MethodTransactionLog, "%v", err)
	}

	rows := make([]interface{}, 0, len(incomes))
	var lastTime int64
	for _, inc := range incomes {
		lastTime = inc.Time
		row := map[string]interface{}{
			"transactionTime": strconv.FormatInt(inc.Time, 10),
			"symbol":          inc.Symbol,
			"currency":        inc.Asset,
			"category":        "linear",
			"type":            inc.IncomeType,
			"change":          inc.Income,
			"cashFlow":        inc.Income,
		}
		if inc.IncomeType == "FUNDING_FEE" {
			row["funding"] = inc.Income
		}
		if inc.IncomeType == "COMMISSION" {
			row["fee"] = inc.Income
		}
		rows = append(rows, row)
	}

	payload := map[string]interface{}{"rows": rows}
	if int64(len(incomes)) == limit && lastTime > 0 {
		payload["cursor"] = strconv.FormatInt(lastTime+1, 10)
	}
	return ParsePage(c.Name(), MethodTransactionLog, payload)
}

func tradeCursor(symbol string, fromID int64) string {
	return symbol + "|" + strconv.FormatInt(fromID, 10)
}

func parseTradeCursor(cursor string) (string, int64, error) {
	idx := strings.LastIndexByte(cursor, '|')
	if idx <= 0 {
		return "", 0, strconv.ErrSyntax
	}
	fromID, err := strconv.ParseInt(cursor[idx+1:], 10, 64)
	if err != nil {
		return "", 0, err
	}
	return cursor[:idx], fromID, nil
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
