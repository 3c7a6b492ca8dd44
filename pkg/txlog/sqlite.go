package txlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the transaction log in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and runs schema migration.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS transactions (
		sequence INTEGER PRIMARY KEY AUTOINCREMENT,
		tx_id TEXT UNIQUE NOT NULL,
		from_addr TEXT,
		to_addr TEXT,
		amount TEXT NOT NULL,
		fee TEXT NOT NULL DEFAULT '0',
		burned TEXT NOT NULL DEFAULT '0',
		tx_type TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		status TEXT NOT NULL,
		metadata JSON,
		prev_hash TEXT NOT NULL DEFAULT 'genesis',
		chain_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions (timestamp);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// appendAttempts bounds the retry loop when two appenders race for the same
// chain head. The loser's insert hits the sequence primary key and is retried
// against the new head.
const appendAttempts = 5

// Append writes the transaction as the next link of the hash chain. A
// concurrent appender can win the sequence; the losing insert is retried so
// no entry is ever dropped.
func (s *SQLiteStore) Append(ctx context.Context, tx token.Transaction) (uint64, error) {
	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		seq, err := s.appendOnce(ctx, tx)
		if err == nil {
			return seq, nil
		}
		if !isSQLiteSequenceConflict(err) {
			return 0, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("failed to append after %d attempts: %w", appendAttempts, lastErr)
}

func isSQLiteSequenceConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "transactions.sequence")
}

func (s *SQLiteStore) appendOnce(ctx context.Context, tx token.Transaction) (uint64, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	var seq uint64
	prevHash := "genesis"
	row := dbtx.QueryRowContext(ctx, `SELECT sequence, chain_hash FROM transactions ORDER BY sequence DESC LIMIT 1`)
	var lastSeq uint64
	var lastHash string
	switch err := row.Scan(&lastSeq, &lastHash); err {
	case nil:
		seq = lastSeq + 1
		prevHash = lastHash
	case sql.ErrNoRows:
		seq = 1
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, tx.ID, string(tx.From), string(tx.To), tx.Amount.BaseUnits(), tx.Fee.BaseUnits(), tx.Burned.BaseUnits(),
		string(tx.Type), tx.Hash, tx.Timestamp.UTC().Format(time.RFC3339Nano), string(tx.Status), string(metaJSON), prevHash, ch)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit append: %w", err)
	}
	return seq, nil
}

const txColumns = `sequence, tx_id, from_addr, to_addr, amount, fee, burned, tx_type, tx_hash, timestamp, status, metadata, prev_hash, chain_hash`

func (s *SQLiteStore) Get(ctx context.Context, txID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE tx_id = ?`, txID)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("txlog: entry %s not found", txID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+txColumns+` FROM transactions ORDER BY sequence DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (s *SQLiteStore) Since(ctx context.Context, t time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE status = ? AND timestamp >= ?
		ORDER BY sequence ASC`,
		string(token.TxConfirmed), t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
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
		timestamp string
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
			Timestamp: parseTime(timestamp),
			Status:    token.TxStatus(status),
			Metadata:  meta,
		},
		PrevHash:  prevHash,
		ChainHash: chHash,
	}, nil
}

func parseBaseUnits(s string) amount.Amount {
	a, err := amount.FromBaseUnitsString(s)
	if err != nil {
		return amount.Zero()
	}
	return a
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
