package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/ledger"
)

// fakeReader serves canned ledger reads. Hooks run before the result is returned.
type fakeReader struct {
	balance     decimal.Decimal
	balanceErr  error
	history     []domain.Transaction
	historyErr  error
	onBalance   func()
	onHistory   func()
	balanceHits atomic.Int32
	historyHits atomic.Int32
}

func (f *fakeReader) GetBalance(ctx context.Context, a ledger.Authorizer, accountID int64) (decimal.Decimal, error) {
	f.balanceHits.Add(1)
	if f.onBalance != nil {
		f.onBalance()
	}
	return f.balance, f.balanceErr
}

func (f *fakeReader) GetTransactions(ctx context.Context, a ledger.Authorizer, accountID int64) ([]domain.Transaction, error) {
	f.historyHits.Add(1)
	if f.onHistory != nil {
		f.onHistory()
	}
	return f.history, f.historyErr
}

func newManager() *Manager {
	return NewManager(domain.MustRegistry(domain.DefaultIdentities), "password123", nil)
}

func identity(t *testing.T, id int64) domain.Identity {
	t.Helper()
	ident, ok := domain.MustRegistry(domain.DefaultIdentities).Lookup(id)
	require.True(t, ok)
	return ident
}

func TestLogin_DerivesTokenAndDefaultRecipient(t *testing.T) {
	m := newManager()

	sess := m.Login(identity(t, 1))
	header, err := sess.Authorization()
	require.NoError(t, err)
	assert.Equal(t, "Basic YWRtaW46cGFzc3dvcmQxMjM=", header)
	assert.Equal(t, int64(2), sess.Recipient())

	sess = m.Login(identity(t, 2))
	assert.Equal(t, int64(1), sess.Recipient())

	sess = m.Login(identity(t, 3))
	assert.Equal(t, int64(1), sess.Recipient())
}

func TestLogin_ClosesPreviousSession(t *testing.T) {
	m := newManager()

	first := m.Login(identity(t, 1))
	first.ApplyBalance(decimal.NewFromInt(10))
	second := m.Login(identity(t, 2))

	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	_, err := first.Authorization()
	assert.ErrorIs(t, err, ErrLoggedOut)

	current, ok := m.Current()
	require.True(t, ok)
	assert.Same(t, second, current)
	assert.True(t, m.Balance().IsZero())
}

func TestLogin_RunsHooks(t *testing.T) {
	m := newManager()
	var seen []int64
	m.OnLogin(func(s *Session) { seen = append(seen, s.Identity().ID) })

	m.Login(identity(t, 3))
	m.Login(identity(t, 1))

	assert.Equal(t, []int64{3, 1}, seen)
}

func TestLogout_ClearsEverythingAndIsIdempotent(t *testing.T) {
	m := newManager()
	logouts := 0
	m.OnLogout(func() { logouts++ })

	sess := m.Login(identity(t, 1))
	sess.ApplyBalance(decimal.NewFromInt(900))
	sess.ApplyTransactions([]domain.Transaction{{ID: 1, SourceAccountID: -1, TargetAccountID: 1, Amount: decimal.NewFromInt(900)}})
	sess.SetAmount(decimal.NewFromInt(5))

	for i := 0; i < 2; i++ {
		m.Logout()

		_, ok := m.Identity()
		assert.False(t, ok)
		assert.True(t, m.Balance().IsZero())
		assert.Empty(t, m.Transactions())
		assert.NotNil(t, m.Transactions())
	}

	assert.Equal(t, 2, logouts)
	assert.True(t, sess.Closed())
	assert.True(t, sess.Balance().IsZero())
	assert.Empty(t, sess.Transactions())
}

func TestSession_StaleWritesAreDiscarded(t *testing.T) {
	m := newManager()
	sess := m.Login(identity(t, 2))
	m.Logout()

	assert.False(t, sess.ApplyBalance(decimal.NewFromInt(1)))
	assert.False(t, sess.ApplyTransactions([]domain.Transaction{{ID: 1}}))
	assert.False(t, sess.SetAmount(decimal.NewFromInt(1)))
	assert.False(t, sess.BeginSubmit())
	assert.True(t, sess.Balance().IsZero())
}

func TestSession_RecipientNeverSelf(t *testing.T) {
	m := newManager()
	sess := m.Login(identity(t, 2))

	assert.False(t, sess.SetRecipient(2))
	assert.Equal(t, int64(1), sess.Recipient())
	assert.True(t, sess.SetRecipient(3))
	assert.Equal(t, int64(3), sess.Recipient())
}

func TestSession_InFlightGuard(t *testing.T) {
	sess := newManager().Login(identity(t, 1))

	require.True(t, sess.BeginSubmit())
	assert.True(t, sess.InFlight())
	assert.False(t, sess.BeginSubmit())

	sess.EndSubmit()
	assert.False(t, sess.InFlight())
	assert.True(t, sess.BeginSubmit())
}

func TestSession_TransactionsReturnsCopy(t *testing.T) {
	sess := newManager().Login(identity(t, 1))
	sess.ApplyTransactions([]domain.Transaction{{ID: 1}})

	txs := sess.Transactions()
	txs[0].ID = 99

	assert.Equal(t, int64(1), sess.Transactions()[0].ID)
}

func TestResync_AppliesBalanceAndHistory(t *testing.T) {
	sess := newManager().Login(identity(t, 2))
	history := []domain.Transaction{
		{ID: 1, SourceAccountID: -1, TargetAccountID: 2, Amount: decimal.NewFromInt(500)},
		{ID: 2, SourceAccountID: 2, TargetAccountID: 1, Amount: decimal.NewFromInt(100)},
	}
	reader := &fakeReader{balance: decimal.NewFromInt(400), history: history}

	NewSyncer(reader, nil).Resync(context.Background(), sess)

	assert.True(t, decimal.NewFromInt(400).Equal(sess.Balance()))
	assert.Equal(t, history, sess.Transactions())
	assert.Equal(t, int32(1), reader.balanceHits.Load())
	assert.Equal(t, int32(1), reader.historyHits.Load())
}

func TestResync_FailureKeepsStaleValue(t *testing.T) {
	sess := newManager().Login(identity(t, 1))
	sess.ApplyBalance(decimal.NewFromInt(75))
	sess.ApplyTransactions([]domain.Transaction{{ID: 9}})

	reader := &fakeReader{
		balanceErr: &ledger.NetworkError{Op: "get_balance", Err: errors.New("boom")},
		history:    []domain.Transaction{{ID: 10}, {ID: 11}},
	}
	NewSyncer(reader, nil).Resync(context.Background(), sess)

	assert.True(t, decimal.NewFromInt(75).Equal(sess.Balance()))
	assert.Len(t, sess.Transactions(), 2)

	reader = &fakeReader{
		balance:    decimal.NewFromInt(80),
		historyErr: &ledger.AuthError{Op: "get_transactions", StatusCode: 401},
	}
	NewSyncer(reader, nil).Resync(context.Background(), sess)

	assert.True(t, decimal.NewFromInt(80).Equal(sess.Balance()))
	assert.Len(t, sess.Transactions(), 2)
}

func TestResync_IssuesRequestsConcurrently(t *testing.T) {
	sess := newManager().Login(identity(t, 1))

	historyStarted := make(chan struct{})
	reader := &fakeReader{
		balance: decimal.NewFromInt(1),
		history: []domain.Transaction{},
		onBalance: func() {
			select {
			case <-historyStarted:
			case <-time.After(2 * time.Second):
				t.Error("history fetch was not issued while balance fetch was outstanding")
			}
		},
		onHistory: func() { close(historyStarted) },
	}

	NewSyncer(reader, nil).Resync(context.Background(), sess)

	assert.True(t, decimal.NewFromInt(1).Equal(sess.Balance()))
}

func TestResync_DiscardsResultsAfterLogout(t *testing.T) {
	m := newManager()
	sess := m.Login(identity(t, 1))

	release := make(chan struct{})
	reader := &fakeReader{
		balance:   decimal.NewFromInt(999),
		history:   []domain.Transaction{{ID: 1}},
		onBalance: func() { <-release },
		onHistory: func() { <-release },
	}

	done := make(chan struct{})
	go func() {
		NewSyncer(reader, nil).Resync(context.Background(), sess)
		close(done)
	}()

	m.Logout()
	close(release)
	<-done

	assert.True(t, sess.Balance().IsZero())
	assert.Empty(t, sess.Transactions())
	assert.True(t, m.Balance().IsZero())
}
