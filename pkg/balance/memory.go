package balance

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/tokenledger/pkg/amount"
	"github.com/Mindburn-Labs/tokenledger/pkg/token"
)

const stripeCount = 64

// MemoryStore is an in-process Store. Account mutations take per-address
// striped locks so operations on unrelated accounts run in parallel while a
// single account's balance fields stay linearizable.
type MemoryStore struct {
	mu       sync.RWMutex // guards the accounts map and supply counters
	accounts map[token.Address]*token.Account
	stripes  [stripeCount]sync.Mutex
	supply   Supply
	clock    func() time.Time
}

// NewMemoryStore creates an empty in-memory balance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[token.Address]*token.Account),
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func stripeFor(addr token.Address) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(addr))
	return int(h.Sum32() % stripeCount)
}

// lockStripes acquires the stripes for every address in the batch in
// ascending index order, so concurrent batches cannot deadlock. Returns the
// matching unlock function.
func (s *MemoryStore) lockStripes(changes []Change) func() {
	seen := make(map[int]struct{}, len(changes))
	for _, c := range changes {
		if c.Op == OpBurn {
			continue
		}
		seen[stripeFor(c.Address)] = struct{}{}
	}
	idx := make([]int, 0, len(seen))
	for i := range seen {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		s.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			s.stripes[idx[j]].Unlock()
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, addr token.Address) (token.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[addr]; ok {
		return *acc, nil
	}
	return token.Account{Address: addr}, nil
}

func (s *MemoryStore) Apply(_ context.Context, changes ...Change) error {
	if len(changes) == 0 {
		return nil
	}
	unlock := s.lockStripes(changes)
	defer unlock()

	// Validate against working copies; nothing is visible until write-back.
	working := make(map[token.Address]*token.Account, len(changes))
	s.mu.RLock()
	for _, c := range changes {
		if c.Op == OpBurn {
			continue
		}
		if _, ok := working[c.Address]; ok {
			continue
		}
		if acc, ok := s.accounts[c.Address]; ok {
			cp := *acc
			working[c.Address] = &cp
		} else {
			working[c.Address] = &token.Account{Address: c.Address}
		}
	}
	s.mu.RUnlock()

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

	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, acc := range working {
		acc.LastUpdated = now
		s.accounts[addr] = acc
	}
	s.supply.Minted = s.supply.Minted.Add(minted)
	s.supply.Burned = s.supply.Burned.Add(burned)
	return nil
}

func (s *MemoryStore) Supply(_ context.Context) (Supply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.supply, nil
}

func (s *MemoryStore) Snapshot(_ context.Context) ([]token.Account, Supply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]token.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		accounts = append(accounts, *acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Address < accounts[j].Address })
	return accounts, s.supply, nil
}
