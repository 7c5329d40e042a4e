package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/ledger"
	"github.com/punchamoorthee/atomicbank/internal/session"
)

// Submitter is the mutating half of the ledger client.
type Submitter interface {
	SubmitTransfer(ctx context.Context, a ledger.Authorizer, fromID, toID int64, amount decimal.Decimal) error
	SubmitDeposit(ctx context.Context, a ledger.Authorizer, toID int64, amount decimal.Decimal) error
}

// Resyncer refreshes a session's snapshot after a mutation.
type Resyncer interface {
	Resync(ctx context.Context, sess *session.Session)
}

// Outcome describes what a submission attempt ended up doing.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeRejected: refused locally, nothing was sent.
	OutcomeRejected Outcome = "rejected"
	// OutcomeIgnored: another submission was already in flight.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDiscarded: the session ended before the result arrived.
	OutcomeDiscarded Outcome = "discarded"
)

// Workflow validates and submits transfers and deposits for a session and reconciles
// the session snapshot with the ledger afterwards.
type Workflow struct {
	submitter Submitter
	resyncer  Resyncer
	registry  *domain.Registry
	deposit   decimal.Decimal
	notifier  Notifier
	logger    *slog.Logger
}

// NewWorkflow wires a workflow. deposit is the fixed top-up amount.
func NewWorkflow(submitter Submitter, resyncer Resyncer, registry *domain.Registry, deposit decimal.Decimal, notifier Notifier, logger *slog.Logger) *Workflow {
	if notifier == nil {
		notifier = discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		submitter: submitter,
		resyncer:  resyncer,
		registry:  registry,
		deposit:   deposit,
		notifier:  notifier,
		logger:    logger,
	}
}

// DepositAmount is the fixed top-up submitted by Deposit.
func (w *Workflow) DepositAmount() decimal.Decimal { return w.deposit }

// Recipients lists the eligible transfer targets: everyone but the session's identity.
func (w *Workflow) Recipients(sess *session.Session) []domain.Identity {
	return w.registry.Others(sess.Identity().ID)
}

// SetAmount updates the amount field. Negative input is clamped to zero; an oversized
// or sub-cent amount is refused with a *ledger.ValidationError and the field is left as it was.
func (w *Workflow) SetAmount(sess *session.Session, amount decimal.Decimal) error {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	amount, err := ledger.ValidateAmount(amount)
	if err != nil {
		return err
	}
	if !sess.SetAmount(amount) {
		return session.ErrLoggedOut
	}
	return nil
}

// SelectRecipient changes the transfer target. Self and unknown ids are rejected.
func (w *Workflow) SelectRecipient(sess *session.Session, id int64) error {
	if err := w.checkRecipient(sess, id); err != nil {
		return err
	}
	if !sess.SetRecipient(id) {
		return session.ErrLoggedOut
	}
	return nil
}

func (w *Workflow) checkRecipient(sess *session.Session, id int64) error {
	if id == sess.Identity().ID {
		return &ledger.ValidationError{Field: "recipient", Reason: "Cannot transfer to yourself"}
	}
	if _, ok := w.registry.Lookup(id); !ok {
		return &ledger.ValidationError{Field: "recipient", Reason: "Select a recipient"}
	}
	return nil
}

// Transfer submits the session's amount to its selected recipient.
//
// A non-positive amount is reported without touching the network or the in-flight flag.
// While another submission is in flight the call is a no-op. On success the amount field
// resets to zero; on failure it is kept. Every submission that reached the ledger is
// followed by a resync.
func (w *Workflow) Transfer(ctx context.Context, sess *session.Session) (Outcome, error) {
	if sess.Closed() {
		return OutcomeDiscarded, session.ErrLoggedOut
	}
	if sess.InFlight() {
		return OutcomeIgnored, nil
	}

	self := sess.Identity()
	amount := sess.Amount()
	recipient := sess.Recipient()

	if !amount.IsPositive() {
		return w.reject(&ledger.ValidationError{Field: "amount", Reason: "Enter a valid amount"})
	}
	if err := w.checkRecipient(sess, recipient); err != nil {
		return w.reject(err)
	}
	if !sess.BeginSubmit() {
		return OutcomeIgnored, nil
	}

	err := guarded(sess, func() error {
		err := w.submitter.SubmitTransfer(ctx, sess, self.ID, recipient, amount)
		if err == nil {
			sess.SetAmount(decimal.Zero)
		}
		return err
	})

	if sess.Closed() {
		w.logger.Debug("discarding transfer result for closed session", "identity_id", self.ID)
		return OutcomeDiscarded, err
	}

	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		return w.reject(verr)
	}

	if err != nil {
		w.logger.Warn("transfer failed", "from", self.ID, "to", recipient, "amount", amount.String(), "error", err)
		w.notifier.Notify(Notice{Level: LevelError, Message: "Transfer Failed: " + ledger.UserMessage(err)})
		w.resyncer.Resync(ctx, sess)
		return OutcomeFailed, err
	}

	w.logger.Info("transfer submitted", "from", self.ID, "to", recipient, "amount", amount.String())
	w.notifier.Notify(Notice{
		Level:   LevelInfo,
		Message: fmt.Sprintf("Successfully sent %s to %s", domain.Dollars(amount), w.registry.DisplayName(recipient)),
	})
	w.resyncer.Resync(ctx, sess)
	return OutcomeSucceeded, nil
}

// Deposit tops up the session's own account by the fixed deposit amount.
// The amount field is neither read nor changed. Deposits share the in-flight guard with transfers.
func (w *Workflow) Deposit(ctx context.Context, sess *session.Session) (Outcome, error) {
	if sess.Closed() {
		return OutcomeDiscarded, session.ErrLoggedOut
	}
	if !sess.BeginSubmit() {
		return OutcomeIgnored, nil
	}

	self := sess.Identity()
	err := guarded(sess, func() error {
		return w.submitter.SubmitDeposit(ctx, sess, self.ID, w.deposit)
	})

	if sess.Closed() {
		return OutcomeDiscarded, err
	}

	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		return w.reject(verr)
	}

	if err != nil {
		w.logger.Warn("deposit failed", "to", self.ID, "amount", w.deposit.String(), "error", err)
		w.notifier.Notify(Notice{Level: LevelError, Message: "Deposit Failed"})
		w.resyncer.Resync(ctx, sess)
		return OutcomeFailed, err
	}

	w.logger.Info("deposit submitted", "to", self.ID, "amount", w.deposit.String())
	w.notifier.Notify(Notice{Level: LevelInfo, Message: fmt.Sprintf("Added %s to wallet!", domain.Dollars(w.deposit))})
	w.resyncer.Resync(ctx, sess)
	return OutcomeSucceeded, nil
}

func (w *Workflow) reject(err error) (Outcome, error) {
	w.notifier.Notify(Notice{Level: LevelError, Message: ledger.UserMessage(err)})
	return OutcomeRejected, err
}

// guarded runs fn with the session's in-flight flag held, clearing it however fn returns.
func guarded(sess *session.Session, fn func() error) error {
	defer sess.EndSubmit()
	return fn()
}
