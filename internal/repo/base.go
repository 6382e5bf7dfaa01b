// Package repo holds the gorm plumbing shared by the stock stores.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base binds a store to one gorm handle, either the pool or an open transaction.
type Base struct {
	db *gorm.DB
}

// NewBase wraps the connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the handle scoped to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	return b.db.WithContext(ctx)
}

// Bind returns a Base on tx. A nil tx keeps the current handle.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Atomic runs fn inside a transaction. When the Base is already bound to a
// transaction gorm nests it as a savepoint.
func (b Base) Atomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.DB(ctx).Transaction(fn)
}
