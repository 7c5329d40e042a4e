package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrIdempotencyConflict = errors.New("request in progress")
	ErrIdempotencyMismatch = errors.New("key reuse with mismatched payload")
)

// Idempotency identifies a client submission. An empty Key disables replay detection.
type Idempotency struct {
	Key         string
	RequestHash string
}

// Receipt is the result of a mutation. Replayed is set when the key had already been applied.
type Receipt struct {
	Transaction domain.Transaction
	Replayed    bool
}

// Store is the reference ledger's persistence layer.
//
// Transactions are returned newest first. Deposits are recorded with
// domain.DepositSourceID as their source.
type Store interface {
	EnsureAccount(ctx context.Context, id int64, opening decimal.Decimal) error
	Balance(ctx context.Context, id int64) (decimal.Decimal, error)
	Transactions(ctx context.Context, id int64) ([]domain.Transaction, error)
	Transfer(ctx context.Context, req domain.TransferRequest, idem Idempotency) (Receipt, error)
	Deposit(ctx context.Context, req domain.DepositRequest, idem Idempotency) (Receipt, error)
	Close()
}
