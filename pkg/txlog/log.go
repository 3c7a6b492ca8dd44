// Package txlog — immutable, append-only transaction log.
//
// Every attempted mutating ledger operation is appended exactly once,
// including failures (the error rides in the transaction metadata). Entries
// are hash-chained to their predecessor; append-only, no deletions or
// mutations. The log is the audit trail, independent of balance state.
package txlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Mindburn-Labs/tokenledger/pkg/token"
)

// Entry is an immutable, hash-chained log record.
type Entry struct {
	Sequence  uint64            `json:"sequence"`
	Tx        token.Transaction `json:"tx"`
	PrevHash  string            `json:"prev_hash"`
	ChainHash string            `json:"chain_hash"`
}

// Store records and reads transaction log entries.
type Store interface {
	// Append writes a transaction record and returns its sequence number.
	Append(ctx context.Context, tx token.Transaction) (uint64, error)

	// Get retrieves an entry by transaction ID.
	Get(ctx context.Context, txID string) (*Entry, error)

	// List returns up to limit entries, most recent first.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Since returns confirmed entries with timestamps at or after t,
	// oldest first. Used for rolling-window volume aggregation.
	Since(ctx context.Context, t time.Time) ([]Entry, error)
}

// chainHash derives an entry's chain hash from its sequence, transaction and
// predecessor hash. Deterministic for identical inputs.
func chainHash(seq uint64, tx token.Transaction, prevHash string) (string, error) {
	hashInput := struct {
		Seq  uint64            `json:"seq"`
		Tx   token.Transaction `json:"tx"`
		Prev string            `json:"prev"`
	}{seq, tx, prevHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	h := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Log is the in-memory Store. Thread-safe.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	byID     map[string]int
	headHash string
}

// NewLog creates an empty in-memory transaction log.
func NewLog() *Log {
	return &Log{
		byID:     make(map[string]int),
		headHash: "genesis",
	}
}

func (l *Log) Append(_ context.Context, tx token.Transaction) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	ch, err := chainHash(seq, tx, l.headHash)
	if err != nil {
		return 0, err
	}
	l.entries = append(l.entries, Entry{Sequence: seq, Tx: tx, PrevHash: l.headHash, ChainHash: ch})
	l.byID[tx.ID] = len(l.entries) - 1
	l.headHash = ch
	return seq, nil
}

func (l *Log) Get(_ context.Context, txID string) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byID[txID]
	if !ok {
		return nil, fmt.Errorf("txlog: entry %s not found", txID)
	}
	entry := l.entries[i]
	return &entry, nil
}

func (l *Log) List(_ context.Context, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

func (l *Log) Since(_ context.Context, t time.Time) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Tx.Status == token.TxConfirmed && !e.Tx.Timestamp.Before(t) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Head returns the current head hash.
func (l *Log) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *Log) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify checks the integrity of the entire chain.
func (l *Log) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for i, e := range l.entries {
		if e.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, e.PrevHash)
		}
		computed, err := chainHash(e.Sequence, e.Tx, e.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to hash entry %d", i+1)
		}
		if computed != e.ChainHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = e.ChainHash
	}
	return true, "chain verified"
}
