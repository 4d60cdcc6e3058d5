package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePage_ExtractsListAndCursor(t *testing.T) {
	page, err := ParsePage("bybit", MethodClosedPositions, map[string]interface{}{
		"list": []interface{}{
			map[string]interface{}{"orderId": "1"},
			map[string]interface{}{"orderId": "2"},
		},
		"nextPageCursor": "cursor-abc",
	})
	require.NoError(t, err)
	require.Len(t, page.List, 2)
	require.Equal(t, "cursor-abc", page.Cursor)
}

func TestParsePage_EmptyCursorEndsPagination(t *testing.T) {
	page, err := ParsePage("bybit", MethodClosedPositions, map[string]interface{}{
		"list": []interface{}{},
	})
	require.NoError(t, err)
	require.Empty(t, page.List)
	require.Empty(t, page.Cursor)
}

func TestParsePage_MissingListField(t *testing.T) {
	_, err := ParsePage("bybit", MethodClosedPositions, map[string]interface{}{
		"rows": []interface{}{},
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "bybit", apiErr.Exchange)
	require.Contains(t, apiErr.Error(), "list")
}

func TestParsePage_ListFieldWrongType(t *testing.T) {
	_, err := ParsePage("bybit", MethodClosedPositions, map[string]interface{}{
		"list": "not-a-list",
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestParsePage_NonObjectRecord(t *testing.T) {
	_, err := ParsePage("binance", MethodTransactionLog, map[string]interface{}{
		"rows": []interface{}{"scalar"},
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestParsePage_UnknownExchange(t *testing.T) {
	_, err := ParsePage("kraken", MethodClosedPositions, map[string]interface{}{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestSupported(t *testing.T) {
	require.True(t, Supported("bybit"))
	require.True(t, Supported("binance"))
	require.False(t, Supported("kraken"))
	require.False(t, Supported(""))
}
