package session

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/ledger"
)

// Reader is the read half of the ledger client.
type Reader interface {
	GetBalance(ctx context.Context, a ledger.Authorizer, accountID int64) (decimal.Decimal, error)
	GetTransactions(ctx context.Context, a ledger.Authorizer, accountID int64) ([]domain.Transaction, error)
}

// Syncer refreshes a session's snapshot from the ledger.
type Syncer struct {
	reader Reader
	logger *slog.Logger
}

func NewSyncer(reader Reader, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{reader: reader, logger: logger}
}

// Resync re-fetches balance and history concurrently and replaces the cached snapshot.
// Each half applies its own result as it resolves; a failed half keeps the stale value.
// Results for a session closed in the meantime are dropped. Resync returns once both halves finish.
func (s *Syncer) Resync(ctx context.Context, sess *Session) {
	accountID := sess.Identity().ID

	var g errgroup.Group
	g.Go(func() error {
		balance, err := s.reader.GetBalance(ctx, sess, accountID)
		if err != nil {
			s.logger.Warn("balance refresh failed; keeping cached value", "account_id", accountID, "error", err)
			return nil
		}
		if !sess.ApplyBalance(balance) {
			s.logger.Debug("discarding balance for closed session", "account_id", accountID)
		}
		return nil
	})
	g.Go(func() error {
		txs, err := s.reader.GetTransactions(ctx, sess, accountID)
		if err != nil {
			s.logger.Warn("history refresh failed; keeping cached value", "account_id", accountID, "error", err)
			return nil
		}
		if !sess.ApplyTransactions(txs) {
			s.logger.Debug("discarding history for closed session", "account_id", accountID)
		}
		return nil
	})
	_ = g.Wait()
}
