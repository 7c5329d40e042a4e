package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/session"
	"github.com/punchamoorthee/atomicbank/internal/transfer"
	"github.com/punchamoorthee/atomicbank/internal/view"
)

// Ledger is everything the dashboard needs from the ledger service.
type Ledger interface {
	session.Reader
	transfer.Submitter
}

// Dashboard wires sessions, the transfer workflow and the view router into one
// interaction surface for a front-end.
type Dashboard struct {
	registry *domain.Registry
	sessions *session.Manager
	syncer   *session.Syncer
	workflow *transfer.Workflow
	router   *view.Router
	logger   *slog.Logger
}

// Config carries the dashboard's dependencies.
type Config struct {
	Registry      *domain.Registry
	Ledger        Ledger
	Password      string
	DepositAmount decimal.Decimal
	Notifier      transfer.Notifier
	Logger        *slog.Logger
}

func New(cfg Config) *Dashboard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dashboard{
		registry: cfg.Registry,
		sessions: session.NewManager(cfg.Registry, cfg.Password, logger),
		syncer:   session.NewSyncer(cfg.Ledger, logger),
		router:   view.NewRouter(),
		logger:   logger,
	}
	d.workflow = transfer.NewWorkflow(cfg.Ledger, d.syncer, cfg.Registry, cfg.DepositAmount, cfg.Notifier, logger)

	d.sessions.OnLogin(func(*session.Session) { d.router.EnterFromLogin() })
	d.sessions.OnLogout(d.router.Reset)
	return d
}

// Login starts a session for the identity with the given handle and runs the initial sync.
func (d *Dashboard) Login(ctx context.Context, handle string) (domain.Identity, error) {
	ident, ok := d.registry.LookupHandle(handle)
	if !ok {
		return domain.Identity{}, fmt.Errorf("login %q: %w", handle, domain.ErrUnknownIdentity)
	}
	sess := d.sessions.Login(ident)
	d.syncer.Resync(ctx, sess)
	return ident, nil
}

// Logout ends the current session, if any.
func (d *Dashboard) Logout() {
	d.sessions.Logout()
}

func (d *Dashboard) current() (*session.Session, error) {
	sess, ok := d.sessions.Current()
	if !ok {
		return nil, session.ErrLoggedOut
	}
	return sess, nil
}

func (d *Dashboard) Navigate(s view.Screen) error {
	if _, err := d.current(); err != nil {
		return err
	}
	d.router.Navigate(s)
	return nil
}

func (d *Dashboard) ToggleMenu() error {
	if _, err := d.current(); err != nil {
		return err
	}
	d.router.ToggleMenu()
	return nil
}

func (d *Dashboard) OpenSettingsFromMenu() error {
	if _, err := d.current(); err != nil {
		return err
	}
	d.router.OpenSettingsFromMenu()
	return nil
}

func (d *Dashboard) ViewAll() error {
	if _, err := d.current(); err != nil {
		return err
	}
	d.router.ViewAll()
	return nil
}

func (d *Dashboard) SetAmount(amount decimal.Decimal) error {
	sess, err := d.current()
	if err != nil {
		return err
	}
	return d.workflow.SetAmount(sess, amount)
}

func (d *Dashboard) SelectRecipient(id int64) error {
	sess, err := d.current()
	if err != nil {
		return err
	}
	return d.workflow.SelectRecipient(sess, id)
}

// Transfer sends the form's amount to the selected recipient.
func (d *Dashboard) Transfer(ctx context.Context) (transfer.Outcome, error) {
	sess, err := d.current()
	if err != nil {
		return transfer.OutcomeRejected, err
	}
	return d.workflow.Transfer(ctx, sess)
}

// Deposit adds the fixed top-up to the current identity's account.
func (d *Dashboard) Deposit(ctx context.Context) (transfer.Outcome, error) {
	sess, err := d.current()
	if err != nil {
		return transfer.OutcomeRejected, err
	}
	return d.workflow.Deposit(ctx, sess)
}

// Refresh re-fetches balance and history for the current session.
func (d *Dashboard) Refresh(ctx context.Context) error {
	sess, err := d.current()
	if err != nil {
		return err
	}
	d.syncer.Resync(ctx, sess)
	return nil
}

// Frame snapshots the current state for rendering.
func (d *Dashboard) Frame() view.Frame {
	f := view.Frame{
		Identities:    d.registry.All(),
		Router:        d.router.State(),
		DepositAmount: d.workflow.DepositAmount(),
		Names:         d.registry.DisplayName,
	}
	sess, ok := d.sessions.Current()
	if !ok {
		return f
	}
	f.LoggedIn = true
	f.Identity = sess.Identity()
	f.Balance = sess.Balance()
	f.Transactions = sess.Transactions()
	f.Amount = sess.Amount()
	f.Recipient = sess.Recipient()
	f.Recipients = d.workflow.Recipients(sess)
	f.InFlight = sess.InFlight()
	return f
}
