package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
)

type idempotencyRecord struct {
	hash          string
	transactionID int64
}

// MemoryStore keeps the ledger in process. It is used for local runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	accounts map[int64]decimal.Decimal
	txs      []domain.Transaction
	keys     map[string]idempotencyRecord
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		accounts: make(map[int64]decimal.Decimal),
		keys:     make(map[string]idempotencyRecord),
		nextID:   1,
	}
}

// EnsureAccount creates the account if missing. A positive opening balance is
// booked as a deposit so history and balance agree.
func (m *MemoryStore) EnsureAccount(ctx context.Context, id int64, opening decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; ok {
		return nil
	}
	m.accounts[id] = decimal.Zero
	if opening.IsPositive() {
		m.append(domain.DepositSourceID, id, opening)
	}
	return nil
}

func (m *MemoryStore) Balance(ctx context.Context, id int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.accounts[id]
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}
	return balance, nil
}

func (m *MemoryStore) Transactions(ctx context.Context, id int64) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return nil, ErrAccountNotFound
	}
	out := []domain.Transaction{}
	for i := len(m.txs) - 1; i >= 0; i-- {
		tx := m.txs[i]
		if tx.SourceAccountID == id || tx.TargetAccountID == id {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MemoryStore) Transfer(ctx context.Context, req domain.TransferRequest, idem Idempotency) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok, err := m.replay(idem); ok || err != nil {
		return r, err
	}

	from, ok := m.accounts[req.FromAccountID]
	if !ok {
		return Receipt{}, ErrAccountNotFound
	}
	if _, ok := m.accounts[req.ToAccountID]; !ok {
		return Receipt{}, ErrAccountNotFound
	}
	if from.LessThan(req.Amount) {
		return Receipt{}, ErrInsufficientFunds
	}

	tx := m.append(req.FromAccountID, req.ToAccountID, req.Amount)
	m.remember(idem, tx.ID)
	return Receipt{Transaction: tx}, nil
}

func (m *MemoryStore) Deposit(ctx context.Context, req domain.DepositRequest, idem Idempotency) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok, err := m.replay(idem); ok || err != nil {
		return r, err
	}
	if _, ok := m.accounts[req.ToAccountID]; !ok {
		return Receipt{}, ErrAccountNotFound
	}

	tx := m.append(domain.DepositSourceID, req.ToAccountID, req.Amount)
	m.remember(idem, tx.ID)
	return Receipt{Transaction: tx}, nil
}

func (m *MemoryStore) Close() {}

// append books a transaction and applies it to balances. Callers hold mu.
func (m *MemoryStore) append(source, target int64, amount decimal.Decimal) domain.Transaction {
	tx := domain.Transaction{
		ID:              m.nextID,
		SourceAccountID: source,
		TargetAccountID: target,
		Amount:          amount,
		Timestamp:       m.now(),
	}
	m.nextID++
	m.txs = append(m.txs, tx)

	if source != domain.DepositSourceID {
		m.accounts[source] = m.accounts[source].Sub(amount)
	}
	m.accounts[target] = m.accounts[target].Add(amount)
	return tx
}

func (m *MemoryStore) replay(idem Idempotency) (Receipt, bool, error) {
	if idem.Key == "" {
		return Receipt{}, false, nil
	}
	rec, ok := m.keys[idem.Key]
	if !ok {
		return Receipt{}, false, nil
	}
	if rec.hash != idem.RequestHash {
		return Receipt{}, false, ErrIdempotencyMismatch
	}
	for _, tx := range m.txs {
		if tx.ID == rec.transactionID {
			return Receipt{Transaction: tx, Replayed: true}, true, nil
		}
	}
	return Receipt{}, false, ErrIdempotencyConflict
}

func (m *MemoryStore) remember(idem Idempotency, txID int64) {
	if idem.Key == "" {
		return
	}
	m.keys[idem.Key] = idempotencyRecord{hash: idem.RequestHash, transactionID: txID}
}
