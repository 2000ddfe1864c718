package storage

import (
	"errors"
)

var (
	// ErrTransactionConflict if two transactions attempt to write the same data at the same time
	// and the database aborted this one.
	ErrTransactionConflict = errors.New("transaction aborted due to conflict")
	// ErrTransactionThrottled if the database refused the transaction because it is overloaded.
	ErrTransactionThrottled = errors.New("transaction throttled")
)

// IsTransient reports whether the whole request may be retried unchanged.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransactionConflict) || errors.Is(err, ErrTransactionThrottled)
}
