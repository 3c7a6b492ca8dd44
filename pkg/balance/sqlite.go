package balance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists balances in SQLite. Each Apply runs inside one
// database transaction: begin, validate, apply all changes, commit or roll
// back. A commit-stage failure surfaces as token.ErrCommitFailed with the
// ledger left in its pre-operation state.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time
}

// NewSQLiteStore creates the store and runs schema migration.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, clock: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithClock overrides the clock for testing.
func (s *SQLiteStore) WithClock(clock func() time.Time) *SQLiteStore {
	s.clock = clock
	return s
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS accounts (
		address TEXT PRIMARY KEY,
		balance TEXT NOT NULL DEFAULT '0',
		locked_balance TEXT NOT NULL DEFAULT '0',
		transaction_count INTEGER NOT NULL DEFAULT 0,
		total_received TEXT NOT NULL DEFAULT '0',
		total_sent TEXT NOT NULL DEFAULT '0',
		last_updated DATETIME
	);
	CREATE TABLE IF NOT EXISTS supply (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		minted TEXT NOT NULL DEFAULT '0',
		burned TEXT NOT NULL DEFAULT '0'
	);
	INSERT OR IGNORE INTO supply (id, minted, burned) VALUES (1, '0', '0');`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, addr token.Address) (token.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, balance, locked_balance, transaction_count, total_received, total_sent, last_updated
		FROM accounts WHERE address = ?`, string(addr))
	acc, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return token.Account{Address: addr}, nil
	}
	if err != nil {
		return token.Account{}, fmt.Errorf("failed to read account: %w", err)
	}
	return acc, nil
}

func (s *SQLiteStore) Apply(ctx context.Context, changes ...Change) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", token.ErrCommitFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	working := make(map[token.Address]*token.Account, len(changes))
	for _, c := range changes {
		if c.Op == OpBurn {
			continue
		}
		if _, ok := working[c.Address]; ok {
			continue
		}
		row := tx.QueryRowContext(ctx, `
			SELECT address, balance, locked_balance, transaction_count, total_received, total_sent, last_updated
			FROM accounts WHERE address = ?`, string(c.Address))
		acc, err := scanAccount(row)
		if err == sql.ErrNoRows {
			acc = token.Account{Address: c.Address}
		} else if err != nil {
			return fmt.Errorf("%w: %v", token.ErrCommitFailed, err)
		}
		cp := acc
		working[c.Address] = &cp
	}

	minted, burned := amount.Zero(), amount.Zero()
	for _, c := range changes {
		if c.Op == OpBurn {
			burned = burned.Add(c.Amount)
			continue
		}
		if err := applyChange(working[c.Address], c); err != nil {
			return err
		}
		if c.Op == OpMint {
			minted = minted.Add(c.Amount)
		}
	}

	now := s.clock().UTC().Format(time.RFC3339Nano)
	for _, acc := range working {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (address, balance, locked_balance, transaction_count, total_received, total_sent, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (address) DO UPDATE SET
				balance = excluded.balance,
				locked_balance = excluded.locked_balance,
				transaction_count = excluded.transaction_count,
				total_received = excluded.total_received,
				total_sent = excluded.total_sent,
				last_updated = excluded.last_updated`,
			string(acc.Address), acc.Balance.BaseUnits(), acc.LockedBalance.BaseUnits(),
			acc.TransactionCount, acc.TotalReceived.BaseUnits(), acc.TotalSent.BaseUnits(), now)
		if err != nil {
			return fmt.Errorf("%w: %v", token.ErrCommitFailed, err)
		}
	}

	if !minted.IsZero() || !burned.IsZero() {
		sup, err := readSupply(ctx, tx)
		if err != nil {
			return fmt.Errorf("%w: %v", token.ErrCommitFailed, err)
		}
		sup.Minted = sup.Minted.Add(minted)
		sup.Burned = sup.Burned.Add(burned)
		if _, err := tx.ExecContext(ctx, `UPDATE supply SET minted = ?, burned = ? WHERE id = 1`,
			sup.Minted.BaseUnits(), sup.Burned.BaseUnits()); err != nil {
			return fmt.Errorf("%w: %v", token.ErrCommitFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", token.ErrCommitFailed, err)
	}
	return nil
}

func (s *SQLiteStore) Supply(ctx context.Context) (Supply, error) {
	return readSupply(ctx, s.db)
}

func (s *SQLiteStore) Snapshot(ctx context.Context) ([]token.Account, Supply, error) {
	sup, err := readSupply(ctx, s.db)
	if err != nil {
		return nil, Supply{}, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, balance, locked_balance, transaction_count, total_received, total_sent, last_updated
		FROM accounts ORDER BY address`)
	if err != nil {
		return nil, Supply{}, err
	}
	defer func() { _ = rows.Close() }()

	var accounts []token.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, Supply{}, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, Supply{}, err
	}
	return accounts, sup, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (token.Account, error) {
	var (
		address     string
		balanceStr  string
		lockedStr   string
		txCount     uint64
		receivedStr string
		sentStr     string
		updated     sql.NullString
	)
	if err := row.Scan(&address, &balanceStr, &lockedStr, &txCount, &receivedStr, &sentStr, &updated); err != nil {
		return token.Account{}, err
	}
	acc := token.Account{
		Address:          token.Address(address),
		Balance:          parseBaseUnits(balanceStr),
		LockedBalance:    parseBaseUnits(lockedStr),
		TransactionCount: txCount,
		TotalReceived:    parseBaseUnits(receivedStr),
		TotalSent:        parseBaseUnits(sentStr),
	}
	if updated.Valid && updated.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, updated.String); err == nil {
			acc.LastUpdated = t
		}
	}
	return acc, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readSupply(ctx context.Context, q querier) (Supply, error) {
	var mintedStr, burnedStr string
	row := q.QueryRowContext(ctx, `SELECT minted, burned FROM supply WHERE id = 1`)
	if err := row.Scan(&mintedStr, &burnedStr); err != nil {
		return Supply{}, fmt.Errorf("failed to read supply: %w", err)
	}
	return Supply{Minted: parseBaseUnits(mintedStr), Burned: parseBaseUnits(burnedStr)}, nil
}

func parseBaseUnits(s string) amount.Amount {
	a, err := amount.FromBaseUnitsString(s)
	if err != nil {
		return amount.Zero()
	}
	return a
}
