package tradelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ohikava/token-sandbox/internal/domain"
)

const (
	defaultPostgresTimeout = 5 * time.Second

	pgErrUniqueViolation = "23505"
)

const createTradesTable = `
	CREATE TABLE IF NOT EXISTS sandbox_trades (
		id            TEXT PRIMARY KEY,
		wallet        TEXT NOT NULL,
		is_buy        BOOLEAN NOT NULL,
		eth_amount    NUMERIC NOT NULL,
		token_amount  NUMERIC NOT NULL,
		token_reserve NUMERIC NOT NULL,
		eth_reserve   NUMERIC NOT NULL,
		price         NUMERIC NOT NULL,
		price_change  NUMERIC NOT NULL,
		ts            TIMESTAMPTZ NOT NULL
	)
`

// PostgresSink inserts trade records into the sandbox_trades table.
type PostgresSink struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPool creates a Postgres connection pool and verifies it.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// NewPostgresSink creates the table if needed and returns the sink.
func NewPostgresSink(ctx context.Context, pool *pgxpool.Pool) (*PostgresSink, error) {
	if _, err := pool.Exec(ctx, createTradesTable); err != nil {
		return nil, fmt.Errorf("create sandbox_trades: %w", err)
	}
	return &PostgresSink{pool: pool, timeout: defaultPostgresTimeout}, nil
}

// Append implements Sink. A record that is already stored is not an error.
func (p *PostgresSink) Append(record domain.TradeRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.Insert(ctx, record)
}

// Insert adds one trade record.
func (p *PostgresSink) Insert(ctx context.Context, t domain.TradeRecord) error {
	query := `
		INSERT INTO sandbox_trades (
			id, wallet, is_buy,
			eth_amount, token_amount,
			token_reserve, eth_reserve,
			price, price_change, ts
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7,
			$8, $9, $10
		)
	`

	_, err := p.pool.Exec(ctx, query,
		t.ID, t.Wallet, t.IsBuy,
		t.EthInput, t.TokenOutput,
		t.TokenBalance, t.EthBalance,
		t.Price, t.PriceChange, t.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// Count returns the number of stored trades.
func (p *PostgresSink) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sandbox_trades`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}
