package txlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Mindburn-Labs/tokenledger/pkg/token"
)

// PostgresStore persists the transaction log in PostgreSQL, for deployments
// where the audit trail outlives the single process.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open Postgres connection. Call Init before use.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the transactions table.
func (s *PostgresStore) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS transactions (
		sequence BIGSERIAL PRIMARY KEY,
		tx_id TEXT UNIQUE NOT NULL,
		from_addr TEXT,
		to_addr TEXT,
		amount TEXT NOT NULL,
		fee TEXT NOT NULL DEFAULT '0',
		burned TEXT NOT NULL DEFAULT '0',
		tx_type TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		metadata JSONB,
		prev_hash TEXT NOT NULL DEFAULT 'genesis',
		chain_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions (timestamp);`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Append writes the transaction as the next link of the hash chain. Two
// appenders racing for the head collide on the sequence primary key; the
// loser retries against the new head so no entry is ever dropped.
func (s *PostgresStore) Append(ctx context.Context, tx token.Transaction) (uint64, error) {
	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		seq, err := s.appendOnce(ctx, tx)
		if err == nil {
			return seq, nil
		}
		if !isPgSequenceConflict(err) {
			return 0, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("failed to append after %d attempts: %w", appendAttempts, lastErr)
}

func isPgSequenceConflict(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "transactions_pkey"
}

func (s *PostgresStore) appendOnce(ctx context.Context, tx token.Transaction) (uint64, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	var seq uint64 = 1
	prevHash := "genesis"
	row := dbtx.QueryRowContext(ctx, `SELECT sequence, chain_hash FROM transactions ORDER BY sequence DESC LIMIT 1 FOR UPDATE`)
	var lastSeq uint64
	var lastHash string
	switch err := row.Scan(&lastSeq, &lastHash); err {
	case nil:
		seq = lastSeq + 1
		prevHash = lastHash
	case sql.ErrNoRows:
	default:
		return 0, fmt.Errorf("failed to read chain head: %w", err)
	}

	ch, err := chainHash(seq, tx, prevHash)
	if err != nil {
		return 0, err
	}
	metaJSON, _ := json.Marshal(tx.Metadata)

	_, err = dbtx.ExecContext(ctx, `
		INSERT INTO transactions (sequence, tx_id, from_addr, to_addr, amount, fee, burned, tx_type, tx_hash, timestamp, status, metadata, prev_hash, chain_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		seq, tx.ID, string(tx.From), string(tx.To), tx.Amount.BaseUnits(), tx.Fee.BaseUnits(), tx.Burned.BaseUnits(),
		string(tx.Type), tx.Hash, tx.Timestamp.UTC(), string(tx.Status), string(metaJSON), prevHash, ch)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit append: %w", err)
	}
	return seq, nil
}

func (s *PostgresStore) Get(ctx context.Context, txID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgTxColumns+` FROM transactions WHERE tx_id = $1`, txID)
	e, err := scanPgEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("txlog: entry %s not found", txID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+pgTxColumns+` FROM transactions ORDER BY sequence DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectPgEntries(rows)
}

func (s *PostgresStore) Since(ctx context.Context, t time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgTxColumns+` FROM transactions
		WHERE status = $1 AND timestamp >= $2
		ORDER BY sequence ASC`,
		string(token.TxConfirmed), t.UTC())
	if err != nil {
		return nil, err
	}
	return collectPgEntries(rows)
}

const pgTxColumns = `sequence, tx_id, from_addr, to_addr, amount, fee, burned, tx_type, tx_hash, timestamp, status, metadata, prev_hash, chain_hash`

func collectPgEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()
	var entries []Entry
	for rows.Next() {
		e, err := scanPgEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanPgEntry(row scanner) (Entry, error) {
	var (
		seq       uint64
		txID      string
		fromAddr  sql.NullString
		toAddr    sql.NullString
		amountStr string
		feeStr    string
		burnedStr string
		txType    string
		txHash    string
		timestamp time.Time
		status    string
		metaJSON  sql.NullString
		prevHash  string
		chHash    string
	)
	if err := row.Scan(&seq, &txID, &fromAddr, &toAddr, &amountStr, &feeStr, &burnedStr, &txType, &txHash, &timestamp, &status, &metaJSON, &prevHash, &chHash); err != nil {
		return Entry{}, err
	}

	var meta token.Metadata
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &meta)
	}

	return Entry{
		Sequence: seq,
		Tx: token.Transaction{
			ID:        txID,
			From:      token.Address(fromAddr.String),
			To:        token.Address(toAddr.String),
			Amount:    parseBaseUnits(amountStr),
			Fee:       parseBaseUnits(feeStr),
			Burned:    parseBaseUnits(burnedStr),
			Type:      token.TxType(txType),
			Hash:      txHash,
			Timestamp: timestamp,
			Status:    token.TxStatus(status),
			Metadata:  meta,
		},
		PrevHash:  prevHash,
		ChainHash: chHash,
	}, nil
}
