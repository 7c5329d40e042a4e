package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/store"
)

var (
	ErrForbidden     = errors.New("account does not belong to the caller")
	ErrSelfTransfer  = errors.New("self-transfer not allowed")
	ErrInvalidAmount = errors.New("positive amount required")
)

// RateLimitedError reports a caller over its mutation budget.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// RateLimiter decides whether subject may perform another mutation.
type RateLimiter interface {
	Allow(ctx context.Context, subject string) (allowed bool, retryAfter time.Duration, err error)
}

// LedgerService applies the reference ledger's business rules in front of a store:
// callers may only read and spend from their own account, amounts must be positive,
// and mutations are rate limited per identity when a limiter is configured.
type LedgerService struct {
	store   store.Store
	limiter RateLimiter
	logger  *slog.Logger
}

// NewLedgerService builds the service. limiter may be nil.
func NewLedgerService(s store.Store, limiter RateLimiter, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{store: s, limiter: limiter, logger: logger}
}

// Provision makes sure every registry identity has an account.
func (s *LedgerService) Provision(ctx context.Context, registry *domain.Registry, opening decimal.Decimal) error {
	for _, ident := range registry.All() {
		if err := s.store.EnsureAccount(ctx, ident.ID, opening); err != nil {
			return fmt.Errorf("provision account %d: %w", ident.ID, err)
		}
	}
	s.logger.Info("accounts provisioned", "count", len(registry.All()), "opening_balance", opening.String())
	return nil
}

func (s *LedgerService) Balance(ctx context.Context, caller domain.Identity, accountID int64) (decimal.Decimal, error) {
	if caller.ID != accountID {
		return decimal.Zero, ErrForbidden
	}
	return s.store.Balance(ctx, accountID)
}

func (s *LedgerService) Transactions(ctx context.Context, caller domain.Identity, accountID int64) ([]domain.Transaction, error) {
	if caller.ID != accountID {
		return nil, ErrForbidden
	}
	return s.store.Transactions(ctx, accountID)
}

func (s *LedgerService) allow(ctx context.Context, caller domain.Identity) error {
	if s.limiter == nil {
		return nil
	}
	ok, retryAfter, err := s.limiter.Allow(ctx, caller.Handle)
	if err != nil {
		s.logger.Warn("rate limiter unavailable; allowing request", "handle", caller.Handle, "error", err)
		return nil
	}
	if !ok {
		return &RateLimitedError{RetryAfter: retryAfter}
	}
	return nil
}
