package storage

import (
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Persistence interface
type PostgresStore struct {
	db          *sql.DB
	cursorTable string
	dedupTable  string
}

// NewPostgresStore initializes PostgreSQL storage.
// connStr: Connection string
// tablePrefix: Table prefix (defaults to "indexer_") -> tables prefix+"checkpoints" and prefix+"dedup_log"
func NewPostgresStore(connStr string, tablePrefix string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	store := NewPostgresStoreWithDB(db, tablePrefix)
	if err := store.initTables(); err != nil {
		return nil, err
	}

	return store, nil
}

// NewPostgresStoreWithDB wraps an open database without creating tables.
func NewPostgresStoreWithDB(db *sql.DB, tablePrefix string) *PostgresStore {
	if tablePrefix == "" {
		tablePrefix = "indexer_"
	}
	return &PostgresStore{
		db:          db,
		cursorTable: tablePrefix + "checkpoints",
		dedupTable:  tablePrefix + "dedup_log",
	}
}

// initTables automatically creates the cursor and dedup tables
func (p *PostgresStore) initTables() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		version VARCHAR(64) PRIMARY KEY,
		last_processed_block BIGINT NOT NULL,
		to_processed_block BIGINT NOT NULL DEFAULT 0,
		to_block_reached BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		kind VARCHAR(64) NOT NULL,
		tx_hash VARCHAR(66) NOT NULL,
		block_number BIGINT NOT NULL,
		token VARCHAR(42) NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);
	`, p.cursorTable, p.dedupTable)
	_, err := p.db.Exec(query)
	return err
}

func (p *PostgresStore) LoadCheckpoint() (Checkpoint, error) {
	query := fmt.Sprintf("SELECT version, last_processed_block, to_processed_block, to_block_reached FROM %s", p.cursorTable)
	rows, err := p.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cp := make(Checkpoint)
	for rows.Next() {
		var (
			version string
			rec     CursorRecord
		)
		if err := rows.Scan(&version, &rec.LastProcessedBlock, &rec.ToProcessedBlock, &rec.ToBlockReached); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		cp[version] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cp) == 0 {
		return nil, ErrNotFound
	}
	return cp, nil
}

// SaveCheckpoint upserts every version inside one transaction.
func (p *PostgresStore) SaveCheckpoint(cp Checkpoint) error {
	versions := make([]string, 0, len(cp))
	for v := range cp {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	tx, err := p.db.Begin()
	if err != nil {
		return err
	}

	// Upsert using Postgres ON CONFLICT syntax
	query := fmt.Sprintf(`
	INSERT INTO %s (version, last_processed_block, to_processed_block, to_block_reached, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (version)
	DO UPDATE SET last_processed_block = EXCLUDED.last_processed_block,
		to_processed_block = EXCLUDED.to_processed_block,
		to_block_reached = EXCLUDED.to_block_reached,
		updated_at = NOW();
	`, p.cursorTable)

	for _, v := range versions {
		rec := cp[v]
		if _, err := tx.Exec(query, v, rec.LastProcessedBlock, rec.ToProcessedBlock, rec.ToBlockReached); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) AppendDedup(kind string, entry DedupEntry) error {
	query := fmt.Sprintf("INSERT INTO %s (kind, tx_hash, block_number, token, recorded_at) VALUES ($1, $2, $3, $4, $5)", p.dedupTable)
	_, err := p.db.Exec(query, kind, entry.Hash, entry.Block, entry.Token, entry.Timestamp)
	return err
}

func (p *PostgresStore) LoadDedup() (DedupLog, error) {
	query := fmt.Sprintf("SELECT kind, tx_hash, block_number, token, recorded_at FROM %s ORDER BY id", p.dedupTable)
	rows, err := p.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	l := make(DedupLog)
	for rows.Next() {
		var (
			kind string
			e    DedupEntry
		)
		if err := rows.Scan(&kind, &e.Hash, &e.Block, &e.Token, &e.Timestamp); err != nil {
			return nil, err
		}
		l[kind] = append(l[kind], e)
	}
	return l, rows.Err()
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
