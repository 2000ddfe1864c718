//go:generate mockgen -source storage.go -destination ./mocks/mock_storage.go -package mocks Upserter

// Package storage defines the boundary between the loader and the graph database.
// Implementations must be safe for concurrent use: every call to Upsert runs as an
// independent transaction.
package storage

import (
	"context"
)

// Mutation is one set-payload of an upsert request. SetJSON holds a JSON array of
// objects to set; Cond, when non-empty, is a guard such as `@if(eq(len(v), 0))` that
// must hold for the mutation to apply.
type Mutation struct {
	SetJSON []byte
	Cond    string
}

// Upserter submits a query block plus an ordered list of mutations as one atomic
// transaction. Query variables declared in the query may be referenced from the
// mutations and their conditions.
type Upserter interface {
	// Upsert runs the query and applies the mutations, committing immediately. A write
	// conflict is reported as ErrTransactionConflict and an overload signal as
	// ErrTransactionThrottled; any other error is fatal for the request.
	Upsert(ctx context.Context, query string, mutations []Mutation) error

	// Close releases the resources held by the Upserter.
	Close() error
}
