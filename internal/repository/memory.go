package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is a process-local Store.  Each account and bet row carries its
// own lock, taken by LockAccount / LockBet / insert and held until the
// transaction commits or rolls back, which mirrors SELECT … FOR UPDATE.
type MemoryStore struct {
	mu       sync.Mutex // guards the maps and every row's val/live/seq
	accounts map[uuid.UUID]*memRow[domain.Account]
	bets     map[uuid.UUID]*memRow[domain.Bet]
	txns     []domain.Transaction
	seq      int64
}

type memRow[T any] struct {
	lock chan struct{} // capacity 1; a send acquires
	val  T
	live bool // false until the inserting transaction commits
	seq  int64
}

func newMemRow[T any]() *memRow[T] {
	return &memRow[T]{lock: make(chan struct{}, 1)}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*memRow[domain.Account]),
		bets:     make(map[uuid.UUID]*memRow[domain.Bet]),
	}
}

func acquire(ctx context.Context, lock chan struct{}) error {
	select {
	case lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithTx runs fn against a fresh memTx.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Tx) error) (err error) {
	t := &memTx{
		s:        s,
		accounts: make(map[uuid.UUID]*domain.Account),
		bets:     make(map[uuid.UUID]*domain.Bet),
	}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()

	if err = fn(t); err != nil {
		t.rollback()
		return err
	}
	t.commit()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

func (s *MemoryStore) GetBet(_ context.Context, id uuid.UUID) (*domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.bets[id]
	if !ok || !row.live {
		return nil, domain.ErrBetNotFound
	}
	b := row.val
	return &b, nil
}

func (s *MemoryStore) ListBets(_ context.Context, userID uuid.UUID, f domain.BetFilter) ([]*domain.Bet, error) {
	s.mu.Lock()
	rows := make([]*memRow[domain.Bet], 0)
	for _, row := range s.bets {
		b := row.val
		if !row.live || b.OwnerID != userID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Kind != "" && b.Kind != f.Kind {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].val.CreatedAt.Equal(rows[j].val.CreatedAt) {
			return rows[i].val.CreatedAt.After(rows[j].val.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := copyBets(rows)
	s.mu.Unlock()

	return paginate(out, normalizeLimit(f.Limit), f.Offset), nil
}

func (s *MemoryStore) ListOpenBets(_ context.Context, kind domain.MarketKind) ([]*domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]*memRow[domain.Bet], 0)
	for _, row := range s.bets {
		if row.live && row.val.Kind == kind && row.val.Status == domain.BetStatusOpen {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].val.CreatedAt.Equal(rows[j].val.CreatedAt) {
			return rows[i].val.CreatedAt.Before(rows[j].val.CreatedAt)
		}
		return rows[i].seq < rows[j].seq
	})
	return copyBets(rows), nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.accounts[userID]
	if !ok || !row.live {
		return nil, domain.ErrAccountNotFound
	}
	acc := row.val
	return &acc, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	s.mu.Lock()
	out := make([]*domain.Transaction, 0)
	for i := len(s.txns) - 1; i >= 0; i-- {
		if s.txns[i].UserID == userID {
			txn := s.txns[i]
			out = append(out, &txn)
		}
	}
	s.mu.Unlock()
	return paginate(out, normalizeLimit(limit), offset), nil
}

func copyBets(rows []*memRow[domain.Bet]) []*domain.Bet {
	out := make([]*domain.Bet, len(rows))
	for i, row := range rows {
		b := row.val
		out[i] = &b
	}
	return out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

// ──────────────────────────────────────────────────────────────────────────────
// memTx
// ──────────────────────────────────────────────────────────────────────────────

type memTx struct {
	s *MemoryStore

	// working copies of every row this transaction holds the lock of
	accounts map[uuid.UUID]*domain.Account
	bets     map[uuid.UUID]*domain.Bet

	accountRows map[uuid.UUID]*memRow[domain.Account]
	betRows     map[uuid.UUID]*memRow[domain.Bet]
	inserted    []func() // removes placeholder rows on rollback
	txns        []domain.Transaction
}

func (t *memTx) holdAccount(id uuid.UUID, row *memRow[domain.Account], val domain.Account) {
	if t.accountRows == nil {
		t.accountRows = make(map[uuid.UUID]*memRow[domain.Account])
	}
	t.accountRows[id] = row
	t.accounts[id] = &val
}

func (t *memTx) holdBet(id uuid.UUID, row *memRow[domain.Bet], val domain.Bet) {
	if t.betRows == nil {
		t.betRows = make(map[uuid.UUID]*memRow[domain.Bet])
	}
	t.betRows[id] = row
	t.bets[id] = &val
}

func (t *memTx) CreateAccount(ctx context.Context, acc *domain.Account) (bool, error) {
	if _, ok := t.accounts[acc.UserID]; ok {
		return false, nil
	}
	for {
		t.s.mu.Lock()
		row, exists := t.s.accounts[acc.UserID]
		if !exists {
			row = newMemRow[domain.Account]()
			row.lock <- struct{}{}
			t.s.accounts[acc.UserID] = row
			t.s.mu.Unlock()

			id := acc.UserID
			t.inserted = append(t.inserted, func() { delete(t.s.accounts, id) })
			t.holdAccount(id, row, *acc)
			return true, nil
		}
		t.s.mu.Unlock()

		// Another transaction may be creating the same row; wait for it.
		if err := acquire(ctx, row.lock); err != nil {
			return false, err
		}
		t.s.mu.Lock()
		live := row.live
		t.s.mu.Unlock()
		<-row.lock
		if live {
			return false, nil
		}
	}
}

func (t *memTx) LockAccount(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if acc, ok := t.accounts[userID]; ok {
		return acc.Balance, nil
	}
	t.s.mu.Lock()
	row, ok := t.s.accounts[userID]
	t.s.mu.Unlock()
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	if err := acquire(ctx, row.lock); err != nil {
		return decimal.Zero, err
	}
	t.s.mu.Lock()
	live, val := row.live, row.val
	t.s.mu.Unlock()
	if !live {
		<-row.lock
		return decimal.Zero, domain.ErrAccountNotFound
	}
	t.holdAccount(userID, row, val)
	return val.Balance, nil
}

func (t *memTx) SetBalance(_ context.Context, userID uuid.UUID, balance decimal.Decimal, at time.Time) error {
	acc, ok := t.accounts[userID]
	if !ok {
		return fmt.Errorf("memory.SetBalance: account %s not locked", userID)
	}
	if balance.IsNegative() {
		return fmt.Errorf("memory.SetBalance: negative balance %s", balance)
	}
	acc.Balance = balance
	acc.UpdatedAt = at
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn *domain.Transaction) error {
	t.txns = append(t.txns, *txn)
	return nil
}

func (t *memTx) InsertBet(_ context.Context, b *domain.Bet) error {
	t.s.mu.Lock()
	if _, exists := t.s.bets[b.ID]; exists {
		t.s.mu.Unlock()
		return fmt.Errorf("memory.InsertBet: duplicate id %s", b.ID)
	}
	row := newMemRow[domain.Bet]()
	row.lock <- struct{}{}
	t.s.bets[b.ID] = row
	t.s.mu.Unlock()

	id := b.ID
	t.inserted = append(t.inserted, func() { delete(t.s.bets, id) })
	t.holdBet(id, row, *b)
	return nil
}

func (t *memTx) LockBet(ctx context.Context, id uuid.UUID) (*domain.Bet, error) {
	if b, ok := t.bets[id]; ok {
		cp := *b
		return &cp, nil
	}
	t.s.mu.Lock()
	row, ok := t.s.bets[id]
	t.s.mu.Unlock()
	if !ok {
		return nil, domain.ErrBetNotFound
	}
	if err := acquire(ctx, row.lock); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	live, val := row.live, row.val
	t.s.mu.Unlock()
	if !live {
		<-row.lock
		return nil, domain.ErrBetNotFound
	}
	t.holdBet(id, row, val)
	cp := val
	return &cp, nil
}

func (t *memTx) CloseBet(ctx context.Context, id uuid.UUID, c BetClose) error {
	if _, ok := t.bets[id]; !ok {
		if _, err := t.LockBet(ctx, id); err != nil {
			return err
		}
	}
	b := t.bets[id]
	if b.Status != domain.BetStatusOpen {
		return domain.ErrAlreadyResolved
	}
	c.Apply(b)
	return nil
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	for id, row := range t.accountRows {
		if !row.live {
			t.s.seq++
			row.seq = t.s.seq
		}
		row.val = *t.accounts[id]
		row.live = true
	}
	for id, row := range t.betRows {
		if !row.live {
			t.s.seq++
			row.seq = t.s.seq
		}
		row.val = *t.bets[id]
		row.live = true
	}
	t.s.txns = append(t.s.txns, t.txns...)
	t.s.mu.Unlock()
	t.release()
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	for _, undo := range t.inserted {
		undo()
	}
	t.s.mu.Unlock()
	t.release()
}

func (t *memTx) release() {
	for _, row := range t.accountRows {
		<-row.lock
	}
	for _, row := range t.betRows {
		<-row.lock
	}
	t.accountRows, t.betRows = nil, nil
}
