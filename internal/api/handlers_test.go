package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/atomicbank/internal/auth"
	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/models"
	"github.com/punchamoorthee/atomicbank/internal/service"
	"github.com/punchamoorthee/atomicbank/internal/store"
)

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	args := m.Called(ctx, subject)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}

type testServer struct {
	*httptest.Server
	metrics *Metrics
}

func newTestServer(t *testing.T, limiter service.RateLimiter) *testServer {
	t.Helper()
	registry := domain.MustRegistry(domain.DefaultIdentities)
	svc := service.NewLedgerService(store.NewMemoryStore(), limiter, nil)
	require.NoError(t, svc.Provision(context.Background(), registry, decimal.NewFromInt(1000)))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	srv := httptest.NewServer(NewHandler(svc, registry, "password123", metrics, nil).Router(reg))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path, handle, body string, headers ...string) (*http.Response, string) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	if handle != "" {
		req.Header.Set("Authorization", auth.Encode(handle, "password123").Header())
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, body := srv.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestBankingRequiresBasicAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, _ := srv.do(t, http.MethodGet, "/api/banking/1/balance", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	resp, _ = srv.do(t, http.MethodGet, "/api/banking/1/balance", "mallory", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = srv.do(t, http.MethodGet, "/api/banking/1/balance", "", "",
		"Authorization", auth.Encode("admin", "wrong").Header())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetBalance(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := srv.do(t, http.MethodGet, "/api/banking/1/balance", "admin", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1000", strings.TrimSpace(body))

	resp, _ = srv.do(t, http.MethodGet, "/api/banking/2/balance", "admin", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTransferAndHistory(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := srv.do(t, http.MethodPost, "/api/banking/transfer", "alice",
		`{"fromAccountId":2,"toAccountId":1,"amount":100}`, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	var created models.Transaction
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	assert.Equal(t, int64(2), created.SourceAccountID)

	resp, body = srv.do(t, http.MethodPost, "/api/banking/transfer", "alice",
		`{"fromAccountId":2,"toAccountId":1,"amount":100}`, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var replayed models.Transaction
	require.NoError(t, json.Unmarshal([]byte(body), &replayed))
	assert.Equal(t, created.ID, replayed.ID)

	_, body = srv.do(t, http.MethodGet, "/api/banking/2/balance", "alice", "")
	assert.Equal(t, "900", strings.TrimSpace(body))

	resp, body = srv.do(t, http.MethodGet, "/api/banking/2/transactions", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []models.Transaction
	require.NoError(t, json.Unmarshal([]byte(body), &history))
	require.Len(t, history, 2)
	assert.Equal(t, created.ID, history[0].ID)
	assert.Equal(t, domain.DepositSourceID, history[1].SourceAccountID)
}

func TestTransferErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"insufficient funds", `{"fromAccountId":2,"toAccountId":1,"amount":5000}`, http.StatusUnprocessableEntity, "Insufficient funds"},
		{"self transfer", `{"fromAccountId":2,"toAccountId":2,"amount":1}`, http.StatusUnprocessableEntity, "Self-transfer not allowed"},
		{"zero amount", `{"fromAccountId":2,"toAccountId":1,"amount":0}`, http.StatusUnprocessableEntity, "Positive amount required"},
		{"foreign source", `{"fromAccountId":1,"toAccountId":2,"amount":1}`, http.StatusForbidden, "Forbidden"},
		{"unknown target", `{"fromAccountId":2,"toAccountId":99,"amount":1}`, http.StatusNotFound, "Account not found"},
		{"malformed", `{"fromAccountId":`, http.StatusBadRequest, "Malformed JSON body"},
		{"missing amount", `{"fromAccountId":2,"toAccountId":1}`, http.StatusBadRequest, "Invalid amount"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := srv.do(t, http.MethodPost, "/api/banking/transfer", "alice", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)

			var e models.ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &e))
			assert.Equal(t, tc.message, e.Message)
		})
	}
}

func TestDeposit(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, _ := srv.do(t, http.MethodPost, "/api/banking/deposit", "bob", `{"toAccountId":3,"amount":500}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	_, body := srv.do(t, http.MethodGet, "/api/banking/3/balance", "bob", "")
	assert.Equal(t, "1500", strings.TrimSpace(body))

	resp, _ = srv.do(t, http.MethodPost, "/api/banking/deposit", "bob", `{"toAccountId":1,"amount":500}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMutations_RejectOutOfBoundsAmounts(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name    string
		path    string
		body    string
		message string
	}{
		{"huge deposit", "/api/banking/deposit", `{"toAccountId":2,"amount":1e20000000}`, "Amount exceeds the $1000000000000.00 limit"},
		{"enormous deposit", "/api/banking/deposit", `{"toAccountId":2,"amount":1e400000000}`, "Amount exceeds the $1000000000000.00 limit"},
		{"deposit over the cap", "/api/banking/deposit", `{"toAccountId":2,"amount":1000000000000.01}`, "Amount exceeds the $1000000000000.00 limit"},
		{"sub-cent deposit", "/api/banking/deposit", `{"toAccountId":2,"amount":0.001}`, "Amount must have at most 2 decimal places"},
		{"huge transfer", "/api/banking/transfer", `{"fromAccountId":2,"toAccountId":1,"amount":1e20000000}`, "Amount exceeds the $1000000000000.00 limit"},
		{"sub-cent transfer", "/api/banking/transfer", `{"fromAccountId":2,"toAccountId":1,"amount":1e-20000000}`, "Amount must have at most 2 decimal places"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := srv.do(t, http.MethodPost, tc.path, "alice", tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			var e models.ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &e))
			assert.Equal(t, tc.message, e.Message)
		})
	}

	resp, body := srv.do(t, http.MethodGet, "/api/banking/2/balance", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1000", strings.TrimSpace(body))
}

func TestRateLimited(t *testing.T) {
	limiter := new(MockLimiter)
	limiter.On("Allow", mock.Anything, "alice").Return(false, 20*time.Second, nil)
	srv := newTestServer(t, limiter)

	resp, _ := srv.do(t, http.MethodPost, "/api/banking/deposit", "alice", `{"toAccountId":2,"amount":500}`)

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "20", resp.Header.Get("Retry-After"))
}

func TestMetricsAreRecordedByRouteTemplate(t *testing.T) {
	srv := newTestServer(t, nil)

	srv.do(t, http.MethodGet, "/api/banking/1/balance", "admin", "")
	srv.do(t, http.MethodGet, "/api/banking/1/balance", "", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.requestsTotal.WithLabelValues("GET", "/api/banking/{accountId:[0-9]+}/balance", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.requestsTotal.WithLabelValues("GET", "/api/banking/{accountId:[0-9]+}/balance", "401")))

	resp, body := srv.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ledger_http_requests_total")
}
