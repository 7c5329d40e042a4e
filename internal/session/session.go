package session

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/auth"
	"github.com/punchamoorthee/atomicbank/internal/domain"
)

// ErrLoggedOut is returned by a session after logout.
var ErrLoggedOut = errors.New("session is logged out")

// Session is the context object for one login: identity, token, the cached ledger snapshot
// and the transfer form. All of it is dropped together at logout.
//
// The mutex is never held across a ledger call; writes that arrive after Close are discarded.
type Session struct {
	identity domain.Identity
	token    auth.Token

	mu           sync.Mutex
	closed       bool
	balance      decimal.Decimal
	transactions []domain.Transaction
	amount       decimal.Decimal
	recipient    int64
	inFlight     bool
}

func newSession(identity domain.Identity, token auth.Token, recipient int64) *Session {
	return &Session{identity: identity, token: token, recipient: recipient}
}

func (s *Session) Identity() domain.Identity { return s.identity }

// Authorization implements ledger.Authorizer.
func (s *Session) Authorization() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrLoggedOut
	}
	return s.token.Header(), nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.balance = decimal.Zero
	s.transactions = nil
	s.amount = decimal.Zero
	s.inFlight = false
}

// Balance is the last fetched balance, zero until the first successful fetch.
func (s *Session) Balance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// Transactions returns a copy of the cached history.
func (s *Session) Transactions() []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// ApplyBalance replaces the cached balance. It reports false if the session has been closed.
func (s *Session) ApplyBalance(b decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.balance = b
	return true
}

// ApplyTransactions replaces the cached history wholesale.
func (s *Session) ApplyTransactions(txs []domain.Transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.transactions = make([]domain.Transaction, len(txs))
	copy(s.transactions, txs)
	return true
}

func (s *Session) Amount() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.amount
}

func (s *Session) SetAmount(a decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.amount = a
	return true
}

func (s *Session) Recipient() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipient
}

// SetRecipient stores the transfer target. Self is never accepted.
func (s *Session) SetRecipient(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || id == s.identity.ID {
		return false
	}
	s.recipient = id
	return true
}

func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// BeginSubmit sets the in-flight flag. It fails if a submission is already running.
func (s *Session) BeginSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

// EndSubmit clears the in-flight flag.
func (s *Session) EndSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}
