package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/stocker/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS portfolio (
	id             BIGSERIAL PRIMARY KEY,
	guild_id       BIGINT NOT NULL,
	user_id        BIGINT NOT NULL,
	ticker         VARCHAR(16) NOT NULL,
	purchase_price NUMERIC NOT NULL CHECK (purchase_price > 0),
	quantity       INT NOT NULL CHECK (quantity > 0),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE portfolio ADD COLUMN IF NOT EXISTS guild_id BIGINT;
ALTER TABLE portfolio ALTER COLUMN purchase_price TYPE NUMERIC;
CREATE INDEX IF NOT EXISTS portfolio_guild_ticker_fifo
	ON portfolio (guild_id, ticker, created_at, id);
`

// PostgresStore implements LedgerStore using PostgreSQL.
// Prices are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure portfolio schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after a successful commit is a no-op.
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) InsertLot(ctx context.Context, lot *model.PurchaseLot) error {
	row := t.tx.QueryRow(ctx,
		`INSERT INTO portfolio (guild_id, user_id, ticker, purchase_price, quantity)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)
		 RETURNING id, created_at`,
		lot.GuildID, lot.UserID, lot.Ticker, lot.Price.String(), lot.Quantity,
	)
	if err := row.Scan(&lot.ID, &lot.CreatedAt); err != nil {
		return fmt.Errorf("insert lot %s: %w", lot.Ticker, err)
	}
	return nil
}

func (t *postgresTx) ListLots(ctx context.Context, guildID int64, ticker string) ([]model.PurchaseLot, error) {
	// FOR UPDATE keeps two concurrent sells from consuming the same lots.
	rows, err := t.tx.Query(ctx,
		`SELECT id, guild_id, user_id, ticker, purchase_price::TEXT, quantity, created_at
		 FROM portfolio
		 WHERE guild_id = $1 AND ticker = $2
		 ORDER BY created_at, id
		 FOR UPDATE`, guildID, ticker)
	if err != nil {
		return nil, fmt.Errorf("list lots %s: %w", ticker, err)
	}
	defer rows.Close()

	return scanLots(rows)
}

func (t *postgresTx) ListGuildLots(ctx context.Context, guildID int64) ([]model.PurchaseLot, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, guild_id, user_id, ticker, purchase_price::TEXT, quantity, created_at
		 FROM portfolio
		 WHERE guild_id = $1
		 ORDER BY ticker, created_at, id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list guild lots: %w", err)
	}
	defer rows.Close()

	return scanLots(rows)
}

func (t *postgresTx) UpdateLotQuantity(ctx context.Context, id int64, qty int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE portfolio SET quantity = $2 WHERE id = $1`, id, qty)
	if err != nil {
		return fmt.Errorf("update lot %d: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update lot %d: not found", id)
	}
	return nil
}

func (t *postgresTx) DeleteLot(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM portfolio WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lot %d: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("delete lot %d: not found", id)
	}
	return nil
}

// lotRows is satisfied by both pgx.Rows and *sql.Rows.
type lotRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanLots(rows lotRows) ([]model.PurchaseLot, error) {
	var lots []model.PurchaseLot
	for rows.Next() {
		var l model.PurchaseLot
		var priceS string

		if err := rows.Scan(&l.ID, &l.GuildID, &l.UserID, &l.Ticker,
			&priceS, &l.Quantity, &l.CreatedAt); err != nil {
			return nil, err
		}

		price, err := decimal.NewFromString(priceS)
		if err != nil {
			return nil, fmt.Errorf("lot %d: bad price %q: %w", l.ID, priceS, err)
		}
		l.Price = price
		lots = append(lots, l)
	}
	return lots, rows.Err()
}
