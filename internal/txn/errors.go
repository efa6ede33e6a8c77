package txn

import "errors"

// Errors surfaced by the transaction manager, mirrored at the façade level.
var (
	ErrInvalidOperation = errors.New("txn: invalid operation for transaction state")
	ErrDatabaseClosed   = errors.New("txn: database closed")
)
