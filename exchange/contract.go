package exchange

// Contract names the response fields an exchange uses for the record list
// and the pagination cursor. Responses failing this shape raise an APIError
// instead of degrading to a silent empty page.
type Contract struct {
	ListField   string
	CursorField string
}

var contracts = map[string]Contract{
	"bybit":   {ListField: "list", CursorField: "nextPageCursor"},
	"binance": {ListField: "rows", CursorField: "cursor"},
}

// ContractFor returns the response contract for an exchange
func ContractFor(exchange string) (Contract, bool) {
	c, ok := contracts[exchange]
	return c, ok
}

// ParsePage validates a raw result payload against the exchange contract and
// extracts the record list and next cursor.
func ParsePage(exchange, method string, payload map[string]interface{}) (*Page, error) {
	contract, ok := contracts[exchange]
	if !ok {
		return nil, NewAPIError(exchange, method, "no response contract registered")
	}

	rawList, ok := payload[contract.ListField]
	if !ok {
		return nil, NewAPIError(exchange, method, "response missing %q field", contract.ListField)
	}
	items, ok := rawList.([]interface{})
	if !ok {
		return nil, NewAPIError(exchange, method, "response field %q is not a list", contract.ListField)
	}

	page := &Page{List: make([]map[string]interface{}, 0, len(items))}
	for _, item := range items {
		record, ok := item.(map[string]interface{})
		if !ok {
			return nil, NewAPIError(exchange, method, "response list contains a non-object record")
		}
		page.List = append(page.List, record)
	}

	if rawCursor, ok := payload[contract.CursorField]; ok && rawCursor != nil {
		if cursor, ok := rawCursor.(string); ok {
			page.Cursor = cursor
		}
	}
	return page, nil
}
