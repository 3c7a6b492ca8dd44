package txlog_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/tokenledger/pkg/token"
	"github.com/Mindburn-Labs/tokenledger/pkg/txlog"
)

func newSQLiteLog(t *testing.T) *txlog.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := txlog.NewSQLiteStore(db)
	require.NoError(t, err)
	return s
}

func TestSQLiteAppendAndGet(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteLog(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	tx := sampleTx(0, token.TxConfirmed, now)
	tx.Metadata = token.Metadata{"memo": "rent"}
	seq, err := s.Append(ctx, tx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq)

	e, err := s.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.Sequence)
	assert.Equal(t, tx.ID, e.Tx.ID)
	assert.Equal(t, tx.From, e.Tx.From)
	assert.True(t, e.Tx.Amount.Equal(tx.Amount))
	assert.Equal(t, token.TxConfirmed, e.Tx.Status)
	assert.Equal(t, "rent", e.Tx.Metadata["memo"])
	assert.Equal(t, "genesis", e.PrevHash)
	assert.NotEmpty(t, e.ChainHash)
	assert.True(t, e.Tx.Timestamp.Equal(now))
}

func TestSQLiteChainContinuity(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteLog(t)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		seq, err := s.Append(ctx, sampleTx(i, token.TxConfirmed, now))
		require.NoError(t, err)
		assert.EqualValues(t, i+1, seq)
	}

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// List is most recent first; walk the chain backwards.
	for i := 0; i < len(entries)-1; i++ {
		assert.Equal(t, entries[i+1].ChainHash, entries[i].PrevHash,
			"entry %d not chained to its predecessor", entries[i].Sequence)
	}
	assert.Equal(t, "genesis", entries[len(entries)-1].PrevHash)
}

func TestSQLiteDuplicateTxIDRejected(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteLog(t)
	now := time.Now().UTC()

	tx := sampleTx(0, token.TxConfirmed, now)
	_, err := s.Append(ctx, tx)
	require.NoError(t, err)

	_, err = s.Append(ctx, tx)
	assert.Error(t, err, "the log is append-once per transaction ID")
}

func TestSQLiteSinceWindow(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteLog(t)
	now := time.Now().UTC()

	_, err := s.Append(ctx, sampleTx(0, token.TxConfirmed, now.Add(-48*time.Hour)))
	require.NoError(t, err)
	_, err = s.Append(ctx, sampleTx(1, token.TxFailed, now))
	require.NoError(t, err)
	_, err = s.Append(ctx, sampleTx(2, token.TxConfirmed, now))
	require.NoError(t, err)

	entries, err := s.Since(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tx-0002", entries[0].Tx.ID)
}

func TestSQLiteAppendRetriesOnSequenceConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS transactions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := txlog.NewSQLiteStore(db)
	require.NoError(t, err)

	// A concurrent appender wins sequence 4; the losing insert hits the
	// primary key and the append is retried against the new head.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sequence, chain_hash FROM transactions").
		WillReturnRows(sqlmock.NewRows([]string{"sequence", "chain_hash"}).
			AddRow(3, "sha256:deadbeef"))
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: transactions.sequence (1555)"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sequence, chain_hash FROM transactions").
		WillReturnRows(sqlmock.NewRows([]string{"sequence", "chain_hash"}).
			AddRow(4, "sha256:cafef00d"))
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectCommit()

	seq, err := s.Append(context.Background(), sampleTx(9, token.TxConfirmed, time.Now().UTC()))
	require.NoError(t, err)
	assert.EqualValues(t, 5, seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteGetUnknownID(t *testing.T) {
	s := newSQLiteLog(t)
	_, err := s.Get(context.Background(), "missing")
	assert.Error(t, err)
}
