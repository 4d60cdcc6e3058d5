package syncer

import "fmt"

// BadRequestError a validation failure raised before any remote call is made
// (missing credentials, unsupported exchange, bad range).
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// NewBadRequest builds a typed validation error
func NewBadRequest(format string, args ...interface{}) *BadRequestError {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}
