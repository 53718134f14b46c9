// Package store defines the persistence interface for purchase lots.
// Implementations include PostgreSQL (production), SQLite (single-node
// deployments) and in-memory (development and tests). The package also
// provides the company-name caches (in-memory and Redis).
package store

import (
	"context"

	"github.com/atmx/stocker/internal/model"
)

// LedgerStore is the durable home of purchase lots keyed by (guild, ticker).
// Every read or write happens inside WithTx so that a sell's updates and
// deletes commit or roll back together.
type LedgerStore interface {
	// EnsureSchema creates the lot table and indexes if they do not exist.
	EnsureSchema(ctx context.Context) error

	// WithTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and is rolled back on any error or panic.
	WithTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of operations available inside a transaction.
type LedgerTx interface {
	// InsertLot persists a new lot and fills in its ID and CreatedAt when unset.
	InsertLot(ctx context.Context, lot *model.PurchaseLot) error

	// ListLots returns the lots for (guild, ticker) oldest first, ties broken
	// by ascending id.
	ListLots(ctx context.Context, guildID int64, ticker string) ([]model.PurchaseLot, error)

	// ListGuildLots returns every lot in the guild ordered by ticker, then FIFO.
	ListGuildLots(ctx context.Context, guildID int64) ([]model.PurchaseLot, error)

	// UpdateLotQuantity sets a lot's remaining quantity. qty must be positive.
	UpdateLotQuantity(ctx context.Context, id int64, qty int64) error

	// DeleteLot removes a fully consumed lot.
	DeleteLot(ctx context.Context, id int64) error
}
