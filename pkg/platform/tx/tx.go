// Package tx threads an open *sql.Tx through context so a store can join the
// transaction of the service call that invoked it. The audit publisher relies
// on this to write its outbox row atomically with the caller's mutation.
package tx

import (
	"context"
	"database/sql"
)

type txKeyType struct{}

// WithTx returns a context carrying the transaction. A nil tx leaves the
// context untouched.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKeyType{}, tx)
}

// From reports the transaction carried by ctx, if any. Stores that support
// joining fall back to their own *sql.DB when none is present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKeyType{}).(*sql.Tx)
	return tx, ok
}
