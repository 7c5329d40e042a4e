package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/atomicbank/internal/auth"
)

type staticAuth string

func (s staticAuth) Authorization() (string, error) { return string(s), nil }

type closedAuth struct{}

func (closedAuth) Authorization() (string, error) { return "", errors.New("logged out") }

var adminAuth = staticAuth(auth.Encode("admin", "password123").Header())

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", WithHTTPClient(srv.Client())), &calls
}

func TestGetBalance_AttachesBasicHeader(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/banking/1/balance", r.URL.Path)
		assert.Equal(t, "Basic YWRtaW46cGFzc3dvcmQxMjM=", r.Header.Get("Authorization"))
		w.Write([]byte("1250.75"))
	})

	balance, err := client.GetBalance(context.Background(), adminAuth, 1)
	require.NoError(t, err)
	assert.Equal(t, "1250.75", balance.StringFixed(2))
}

func TestGetBalance_AcceptsQuotedDecimal(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"99.10"`))
	})

	balance, err := client.GetBalance(context.Background(), adminAuth, 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("99.1").Equal(balance))
}

func TestGetBalance_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, func(t *testing.T, err error) {
			var aerr *AuthError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, http.StatusUnauthorized, aerr.StatusCode)
		}},
		{"forbidden", http.StatusForbidden, func(t *testing.T, err error) {
			var aerr *AuthError
			require.ErrorAs(t, err, &aerr)
		}},
		{"server error", http.StatusInternalServerError, func(t *testing.T, err error) {
			var nerr *NetworkError
			require.ErrorAs(t, err, &nerr)
			assert.Equal(t, http.StatusInternalServerError, nerr.StatusCode)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.GetBalance(context.Background(), adminAuth, 1)
			tt.check(t, err)
		})
	}
}

func TestGetBalance_TransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, WithTimeout(time.Second))
	_, err := client.GetBalance(context.Background(), adminAuth, 1)

	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Zero(t, nerr.StatusCode)
}

func TestRead_ClosedSessionNeverHitsNetwork(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1"))
	})

	_, err := client.GetTransactions(context.Background(), closedAuth{}, 1)

	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestGetTransactions_PreservesServerOrder(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/banking/2/transactions", r.URL.Path)
		w.Write([]byte(`[
			{"id":3,"sourceAccountId":-1,"targetAccountId":2,"amount":500,"timestamp":"2024-03-01T09:00:00"},
			{"id":1,"sourceAccountId":2,"targetAccountId":1,"amount":100.5,"timestamp":"2024-03-01T10:00:00Z"},
			{"id":2,"sourceAccountId":3,"targetAccountId":2,"amount":"20","timestamp":"2024-03-01T11:00:00.5"}
		]`))
	})

	txs, err := client.GetTransactions(context.Background(), adminAuth, 2)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []int64{3, 1, 2}, []int64{txs[0].ID, txs[1].ID, txs[2].ID})
	assert.True(t, txs[0].IsDeposit())
	assert.Equal(t, "100.50", txs[1].Amount.StringFixed(2))
	assert.Equal(t, 10, txs[1].Timestamp.Hour())
}

func TestGetTransactions_MalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	})

	_, err := client.GetTransactions(context.Background(), adminAuth, 1)
	var nerr *NetworkError
	assert.ErrorAs(t, err, &nerr)
}

func TestGetTransactions_RejectsInvariantViolations(t *testing.T) {
	for _, amount := range []string{"0", "-10", "1e20000000"} {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"id":1,"sourceAccountId":2,"targetAccountId":1,"amount":` + amount + `,"timestamp":"2024-03-01T10:00:00Z"}]`))
		})

		_, err := client.GetTransactions(context.Background(), adminAuth, 1)
		var nerr *NetworkError
		assert.ErrorAs(t, err, &nerr, amount)
	}
}

func TestGetTransactions_UnreadableTimestampKeepsRow(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":1,"sourceAccountId":2,"targetAccountId":1,"amount":5,"timestamp":"sometime"},
			{"id":2,"sourceAccountId":2,"targetAccountId":1,"amount":6,"timestamp":"2024-03-01T10:00:00+0000"}
		]`))
	})

	txs, err := client.GetTransactions(context.Background(), adminAuth, 1)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Timestamp.IsZero())
	assert.Equal(t, 10, txs[1].Timestamp.UTC().Hour())
}

func TestGetBalance_RejectsInvariantViolations(t *testing.T) {
	for _, body := range []string{"-1", "1e20000000", "0.001"} {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})

		_, err := client.GetBalance(context.Background(), adminAuth, 1)
		var nerr *NetworkError
		assert.ErrorAs(t, err, &nerr, body)
	}
}

func TestSubmitTransfer_NonPositiveAmountNeverHitsNetwork(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, amount := range []string{"0", "-0.01", "-100"} {
		err := client.SubmitTransfer(context.Background(), adminAuth, 1, 2, decimal.RequireFromString(amount))

		var verr *ValidationError
		require.ErrorAs(t, err, &verr, amount)
		assert.Equal(t, "amount", verr.Field)
	}
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestSubmitTransfer_OutOfBoundsAmountNeverHitsNetwork(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	tests := []struct {
		amount string
		reason string
	}{
		{"1e20000000", "Amount exceeds the $1000000000000.00 limit"},
		{"1e400000000", "Amount exceeds the $1000000000000.00 limit"},
		{"1000000000000.01", "Amount exceeds the $1000000000000.00 limit"},
		{"0.001", "Use at most 2 decimal places"},
	}
	for _, tt := range tests {
		amount := decimal.RequireFromString(tt.amount)

		err := client.SubmitTransfer(context.Background(), adminAuth, 1, 2, amount)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, tt.amount)
		assert.Equal(t, tt.reason, verr.Reason)

		err = client.SubmitDeposit(context.Background(), adminAuth, 1, amount)
		require.ErrorAs(t, err, &verr, tt.amount)
	}
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestSubmitTransfer_SendsPayloadAndIdempotencyKey(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/banking/transfer", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"fromAccountId":2,"toAccountId":1,"amount":100}`, string(raw))
		w.WriteHeader(http.StatusCreated)
	})

	err := client.SubmitTransfer(context.Background(), adminAuth, 2, 1, decimal.NewFromInt(100))
	assert.NoError(t, err)
}

func TestSubmitTransfer_SurfacesServerMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "Insufficient funds"})
	})

	err := client.SubmitTransfer(context.Background(), adminAuth, 1, 2, decimal.NewFromInt(10))

	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusUnprocessableEntity, terr.StatusCode)
	assert.Equal(t, "Insufficient funds", terr.Message)
	assert.Equal(t, "Insufficient funds", UserMessage(err))
}

func TestSubmitTransfer_GenericMessageFallback(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("<html>nope</html>"))
	})

	err := client.SubmitTransfer(context.Background(), adminAuth, 1, 2, decimal.NewFromInt(10))

	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, GenericTransferMessage, terr.Message)
}

func TestSubmitTransfer_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url).SubmitTransfer(context.Background(), adminAuth, 1, 2, decimal.NewFromInt(10))

	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, GenericTransferMessage, terr.Message)
	var nerr *NetworkError
	assert.ErrorAs(t, err, &nerr)
}

func TestSubmitDeposit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/banking/deposit", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"toAccountId":3,"amount":500}`, string(raw))
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, client.SubmitDeposit(context.Background(), adminAuth, 3, decimal.NewFromInt(500)))
}

func TestSubmitDeposit_FailureIsGeneric(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"slow down"}`))
	})

	err := client.SubmitDeposit(context.Background(), adminAuth, 3, decimal.NewFromInt(500))

	var derr *DepositError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "slow down", derr.ServerMessage)
	assert.Equal(t, GenericDepositMessage, err.Error())
	assert.Equal(t, GenericDepositMessage, UserMessage(err))
}

func TestMetrics_RecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("10"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithMetrics(metrics))
	_, err := client.GetBalance(context.Background(), adminAuth, 1)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues("get_balance", "200")))
}
