package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/store"
)

// Transfer validates and executes a transfer out of the caller's account.
func (s *LedgerService) Transfer(ctx context.Context, caller domain.Identity, req domain.TransferRequest, idem store.Idempotency) (store.Receipt, error) {
	if req.FromAccountID != caller.ID {
		return store.Receipt{}, ErrForbidden
	}
	if err := checkAmount(req.Amount); err != nil {
		return store.Receipt{}, err
	}
	if req.FromAccountID == req.ToAccountID {
		return store.Receipt{}, ErrSelfTransfer
	}
	if err := s.allow(ctx, caller); err != nil {
		return store.Receipt{}, err
	}

	receipt, err := s.store.Transfer(ctx, req, idem)
	if err != nil {
		return store.Receipt{}, err
	}
	s.logger.Info("transfer booked",
		"transaction_id", receipt.Transaction.ID,
		"from", req.FromAccountID,
		"to", req.ToAccountID,
		"amount", req.Amount.String(),
		"replayed", receipt.Replayed,
	)
	return receipt, nil
}

// Deposit tops up the caller's own account.
func (s *LedgerService) Deposit(ctx context.Context, caller domain.Identity, req domain.DepositRequest, idem store.Idempotency) (store.Receipt, error) {
	if req.ToAccountID != caller.ID {
		return store.Receipt{}, ErrForbidden
	}
	if err := checkAmount(req.Amount); err != nil {
		return store.Receipt{}, err
	}
	if err := s.allow(ctx, caller); err != nil {
		return store.Receipt{}, err
	}

	receipt, err := s.store.Deposit(ctx, req, idem)
	if err != nil {
		return store.Receipt{}, err
	}
	s.logger.Info("deposit booked",
		"transaction_id", receipt.Transaction.ID,
		"to", req.ToAccountID,
		"amount", req.Amount.String(),
		"replayed", receipt.Replayed,
	)
	return receipt, nil
}

// checkAmount requires a positive amount within the money bounds. Bound failures wrap both
// ErrInvalidAmount and the domain error.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := domain.CheckAmount(amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return nil
}
