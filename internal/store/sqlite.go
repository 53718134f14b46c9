package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/atmx/stocker/internal/model"
)

// created_at is stored as unix nanoseconds so ordering is exact.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS portfolio (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id       INTEGER NOT NULL,
	user_id        INTEGER NOT NULL,
	ticker         TEXT NOT NULL,
	purchase_price TEXT NOT NULL,
	quantity       INTEGER NOT NULL CHECK (quantity > 0),
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS portfolio_guild_ticker_fifo
	ON portfolio (guild_id, ticker, created_at, id);
`

// SQLiteStore implements LedgerStore on a local SQLite file using the
// pure-Go modernc driver.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// SetClock overrides the timestamp source for new lots.
func (s *SQLiteStore) SetClock(now func() time.Time) { s.now = now }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure portfolio schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after a successful commit returns sql.ErrTxDone, which is ignored.
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *sqliteTx) InsertLot(ctx context.Context, lot *model.PurchaseLot) error {
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = t.now().UTC()
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO portfolio (guild_id, user_id, ticker, purchase_price, quantity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		lot.GuildID, lot.UserID, lot.Ticker, lot.Price.String(), lot.Quantity, lot.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert lot %s: %w", lot.Ticker, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert lot %s: %w", lot.Ticker, err)
	}
	lot.ID = id
	return nil
}

func (t *sqliteTx) ListLots(ctx context.Context, guildID int64, ticker string) ([]model.PurchaseLot, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, guild_id, user_id, ticker, purchase_price, quantity, created_at
		 FROM portfolio
		 WHERE guild_id = ? AND ticker = ?
		 ORDER BY created_at, id`, guildID, ticker)
	if err != nil {
		return nil, fmt.Errorf("list lots %s: %w", ticker, err)
	}
	defer rows.Close()

	return scanSQLiteLots(rows)
}

func (t *sqliteTx) ListGuildLots(ctx context.Context, guildID int64) ([]model.PurchaseLot, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, guild_id, user_id, ticker, purchase_price, quantity, created_at
		 FROM portfolio
		 WHERE guild_id = ?
		 ORDER BY ticker, created_at, id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("list guild lots: %w", err)
	}
	defer rows.Close()

	return scanSQLiteLots(rows)
}

func (t *sqliteTx) UpdateLotQuantity(ctx context.Context, id int64, qty int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE portfolio SET quantity = ? WHERE id = ?`, qty, id)
	if err != nil {
		return fmt.Errorf("update lot %d: %w", id, err)
	}
	return expectOneRow(res, "update", id)
}

func (t *sqliteTx) DeleteLot(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM portfolio WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete lot %d: %w", id, err)
	}
	return expectOneRow(res, "delete", id)
}

func expectOneRow(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s lot %d: %w", op, id, err)
	}
	if n != 1 {
		return fmt.Errorf("%s lot %d: not found", op, id)
	}
	return nil
}

func scanSQLiteLots(rows lotRows) ([]model.PurchaseLot, error) {
	var lots []model.PurchaseLot
	for rows.Next() {
		var l model.PurchaseLot
		var priceS string
		var created int64

		if err := rows.Scan(&l.ID, &l.GuildID, &l.UserID, &l.Ticker,
			&priceS, &l.Quantity, &created); err != nil {
			return nil, err
		}

		price, err := decimal.NewFromString(priceS)
		if err != nil {
			return nil, fmt.Errorf("lot %d: bad price %q: %w", l.ID, priceS, err)
		}
		l.Price = price
		l.CreatedAt = time.Unix(0, created).UTC()
		lots = append(lots, l)
	}
	return lots, rows.Err()
}
