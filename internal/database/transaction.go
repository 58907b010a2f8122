package database

import (
	"context"

	"gorm.io/gorm"
)

// TxFunc runs inside a transaction. Every query it issues must go through tx.
type TxFunc func(tx *gorm.DB) error

// UnitOfWork runs a function atomically: the transaction commits when fn
// returns nil and rolls back otherwise.
type UnitOfWork interface {
	WithTransaction(ctx context.Context, fn TxFunc) error
}

// Transactor is the gorm-backed UnitOfWork.
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// DB returns a context-bound handle for reads outside a transaction.
func (t *Transactor) DB(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *Transactor) WithTransaction(ctx context.Context, fn TxFunc) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}
