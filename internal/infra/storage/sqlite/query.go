package sqlite

import (
	"context"
	"math/big"

	"github.com/jmoiron/sqlx"
)

// sqlxQueryer is the subset of *sqlx.DB used for reads, letting Get and
// InsertSend's existence check run against either the writer or reader
// handle depending on whether the caller already holds the write lock.
type sqlxQueryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func getContext(ctx context.Context, q sqlxQueryer, dest interface{}, query string, args ...interface{}) error {
	return q.GetContext(ctx, dest, query, args...)
}

func selectContext(ctx context.Context, q sqlxQueryer, dest interface{}, query string, args ...interface{}) error {
	return q.SelectContext(ctx, dest, query, args...)
}

var _ sqlxQueryer = (*sqlx.DB)(nil)

// bigIntAccum sums decimal amount strings that may exceed 64 bits, as IBC
// transfer amounts are arbitrary-precision on the wire.
type bigIntAccum struct {
	total *big.Int
}

func newBigIntAccum() *bigIntAccum {
	return &bigIntAccum{total: new(big.Int)}
}

func (a *bigIntAccum) addString(s string) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return
	}
	a.total.Add(a.total, v)
}

func (a *bigIntAccum) String() string {
	return a.total.String()
}
