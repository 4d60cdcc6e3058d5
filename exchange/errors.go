package exchange

import "fmt"

// APIError a malformed or error-shaped response from a remote exchange.
// It carries the exchange and method so callers can report where the sync
// broke; the fetch layer never retries on it.
type APIError struct {
	Exchange string
	Method   string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%s): %s", e.Exchange, e.Method, e.Message)
}

// NewAPIError builds a typed exchange API error
func NewAPIError(exchange, method, format string, args ...interface{}) *APIError {
	return &APIError{
		Exchange: exchange,
		Method:   method,
		Message:  fmt.Sprintf(format, args...),
	}
}
