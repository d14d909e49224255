package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
)

var tablePrefixPattern = regexp.MustCompile("^[a-zA-Z0-9_]*$")

// PostgresSink writes tokens, trades and users to PostgreSQL.
// Unique constraints make every write idempotent.
type PostgresSink struct {
	db     *sql.DB
	tokens string
	trades string
	users  string
}

func NewPostgresSink(url, prefix string) (*PostgresSink, error) {
	if !tablePrefixPattern.MatchString(prefix) {
		return nil, fmt.Errorf("invalid table prefix: %s", prefix)
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	p := NewPostgresSinkWithDB(db, prefix)
	if err := p.initTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return p, nil
}

// NewPostgresSinkWithDB wraps an open database without creating tables.
func NewPostgresSinkWithDB(db *sql.DB, prefix string) *PostgresSink {
	return &PostgresSink{
		db:     db,
		tokens: prefix + "tokens",
		trades: prefix + "transactions",
		users:  prefix + "users",
	}
}

func (p *PostgresSink) initTables() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			address TEXT PRIMARY KEY,
			version TEXT NOT NULL,
			creator TEXT NOT NULL,
			creation_index TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			id SERIAL PRIMARY KEY,
			version TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			wallet TEXT NOT NULL,
			token TEXT NOT NULL,
			side TEXT NOT NULL,
			eth_amount DOUBLE PRECISION NOT NULL,
			token_amount DOUBLE PRECISION NOT NULL,
			market_cap_usd DOUBLE PRECISION NOT NULL,
			block_number BIGINT NOT NULL,
			block_time TIMESTAMPTZ NOT NULL,
			bundled BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (tx_hash, wallet)
		);
		CREATE INDEX IF NOT EXISTS idx_%[2]s_token ON %[2]s (token);
		CREATE TABLE IF NOT EXISTS %[3]s (
			wallet TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`, p.tokens, p.trades, p.users)
	_, err := p.db.Exec(query)
	return err
}

func (p *PostgresSink) TokenExists(ctx context.Context, token common.Address) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE address = $1)", p.tokens)
	err := p.db.QueryRowContext(ctx, query, token.Hex()).Scan(&exists)
	return exists, err
}

func (p *PostgresSink) UpsertToken(ctx context.Context, rec DeploymentRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (address, version, creator, creation_index, tx_hash, block_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			creator = EXCLUDED.creator,
			creation_index = EXCLUDED.creation_index,
			tx_hash = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number`, p.tokens)
	_, err := p.db.ExecContext(ctx, query,
		rec.Token.Hex(), rec.Version, rec.Creator.Hex(), rec.CreationIndex, rec.TxHash.Hex(), rec.BlockNumber)
	return err
}

func (p *PostgresSink) TransactionExists(ctx context.Context, txHash common.Hash, wallet common.Address) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE tx_hash = $1 AND wallet = $2)", p.trades)
	err := p.db.QueryRowContext(ctx, query, txHash.Hex(), wallet.Hex()).Scan(&exists)
	return exists, err
}

func (p *PostgresSink) AppendTransaction(ctx context.Context, rec TradeRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (version, tx_hash, wallet, token, side, eth_amount, token_amount, market_cap_usd, block_number, block_time, bundled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tx_hash, wallet) DO NOTHING`, p.trades)
	_, err := p.db.ExecContext(ctx, query,
		rec.Version, rec.TxHash.Hex(), rec.Wallet.Hex(), rec.Token.Hex(), rec.Side,
		rec.ETHAmount, rec.TokenAmount, rec.MarketCapUSD, rec.BlockNumber, rec.Timestamp, rec.Bundled)
	return err
}

func (p *PostgresSink) UpsertUser(ctx context.Context, wallet common.Address) error {
	query := fmt.Sprintf("INSERT INTO %s (wallet) VALUES ($1) ON CONFLICT (wallet) DO NOTHING", p.users)
	_, err := p.db.ExecContext(ctx, query, wallet.Hex())
	return err
}

func (p *PostgresSink) Close() error { return p.db.Close() }
