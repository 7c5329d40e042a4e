package session

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/auth"
	"github.com/punchamoorthee/atomicbank/internal/domain"
)

// Manager owns the login/logout lifecycle. At most one session is active.
type Manager struct {
	registry *domain.Registry
	password string
	logger   *slog.Logger

	mu       sync.Mutex
	current  *Session
	onLogin  []func(*Session)
	onLogout []func()
}

// NewManager creates a manager. password is the shared demo credential for every identity.
func NewManager(registry *domain.Registry, password string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{registry: registry, password: password, logger: logger}
}

// OnLogin registers a hook run after each login with the new session.
func (m *Manager) OnLogin(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogin = append(m.onLogin, fn)
}

// OnLogout registers a hook run after each logout, including no-op ones.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

// Login derives the token for identity and makes it the active session.
// Any previous session is closed first. Login cannot fail.
func (m *Manager) Login(identity domain.Identity) *Session {
	var recipient int64
	if other, ok := m.registry.DefaultRecipient(identity.ID); ok {
		recipient = other.ID
	}
	sess := newSession(identity, auth.Encode(identity.Handle, m.password), recipient)

	m.mu.Lock()
	prev := m.current
	m.current = sess
	hooks := append([]func(*Session){}, m.onLogin...)
	m.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	m.logger.Info("logged in", "identity_id", identity.ID, "handle", identity.Handle)

	for _, fn := range hooks {
		fn(sess)
	}
	return sess
}

// Logout closes the active session, discarding every cached value with it.
func (m *Manager) Logout() {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	hooks := append([]func(){}, m.onLogout...)
	m.mu.Unlock()

	if prev != nil {
		prev.close()
		m.logger.Info("logged out", "identity_id", prev.identity.ID)
	}
	for _, fn := range hooks {
		fn()
	}
}

// Current returns the active session, if any.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// Identity returns the active identity.
func (m *Manager) Identity() (domain.Identity, bool) {
	if s, ok := m.Current(); ok {
		return s.Identity(), true
	}
	return domain.Identity{}, false
}

// Balance is zero when logged out.
func (m *Manager) Balance() decimal.Decimal {
	if s, ok := m.Current(); ok {
		return s.Balance()
	}
	return decimal.Zero
}

// Transactions is empty when logged out.
func (m *Manager) Transactions() []domain.Transaction {
	if s, ok := m.Current(); ok {
		return s.Transactions()
	}
	return []domain.Transaction{}
}
