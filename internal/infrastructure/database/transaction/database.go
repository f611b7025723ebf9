package transaction

import (
	"context"

	"gorm.io/gorm"

	"collab-server/services/groupchat-api/internal/domain/transaction"
)

type TransactionContextKey struct{}

// WithTx stores an open transaction on the context.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, TransactionContextKey{}, tx)
}

// Database hands repositories the transaction carried by the context, or the
// base connection when there is none.
type Database struct {
	db *gorm.DB
}

var _ transaction.Manager = (*Database)(nil)

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db}
}

// GetTx returns the active transaction or the base connection, bound to ctx.
func (t *Database) GetTx(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TransactionContextKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return t.db.WithContext(ctx)
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(TransactionContextKey{}).(*gorm.DB)
	return ok
}

// Do runs fn in a transaction, joining the one on ctx if present.
func (t *Database) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
