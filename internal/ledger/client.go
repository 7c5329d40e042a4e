package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
	"github.com/punchamoorthee/atomicbank/internal/models"
)

const maxResponseBytes = 1 << 20

// Authorizer supplies the Authorization header for a request. A logged-out session returns an error.
type Authorizer interface {
	Authorization() (string, error)
}

// Client talks to the ledger service's /api/banking endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *Metrics
	logger     *slog.Logger
	newKey     func() string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every request. It applies to the client installed at that point.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a ledger client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
		newKey:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBalance fetches the authoritative balance of accountID.
func (c *Client) GetBalance(ctx context.Context, a Authorizer, accountID int64) (decimal.Decimal, error) {
	const op = "get_balance"
	body, err := c.read(ctx, op, fmt.Sprintf("/api/banking/%d/balance", accountID), a)
	if err != nil {
		return decimal.Zero, err
	}

	var n json.Number
	if err := json.Unmarshal(body, &n); err != nil {
		return decimal.Zero, &NetworkError{Op: op, Err: fmt.Errorf("decode balance: %w", err)}
	}
	balance, err := models.ParseAmount(n)
	if err != nil {
		return decimal.Zero, &NetworkError{Op: op, Err: err}
	}
	if balance, err = domain.CheckBalance(balance); err != nil {
		return decimal.Zero, &NetworkError{Op: op, Err: fmt.Errorf("balance %s: %w", n, err)}
	}
	return balance, nil
}

// GetTransactions fetches the history of accountID in the order the ledger returns it.
func (c *Client) GetTransactions(ctx context.Context, a Authorizer, accountID int64) ([]domain.Transaction, error) {
	const op = "get_transactions"
	body, err := c.read(ctx, op, fmt.Sprintf("/api/banking/%d/transactions", accountID), a)
	if err != nil {
		return nil, err
	}

	var wire []models.Transaction
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("decode transactions: %w", err)}
	}

	out := make([]domain.Transaction, 0, len(wire))
	for _, w := range wire {
		tx, err := w.ToDomain()
		if errors.Is(err, models.ErrBadTimestamp) {
			// Keep the row undated rather than fail the whole history.
			c.logger.Warn("ledger sent an unreadable timestamp", "transaction_id", w.ID, "timestamp", w.Timestamp)
			err = nil
		}
		if err != nil {
			return nil, &NetworkError{Op: op, Err: err}
		}
		out = append(out, tx)
	}
	return out, nil
}

// SubmitTransfer moves amount from one account to another.
// A non-positive, oversized or sub-cent amount is rejected before any request is made.
func (c *Client) SubmitTransfer(ctx context.Context, a Authorizer, fromID, toID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "Enter a valid amount"}
	}
	amount, err := ValidateAmount(amount)
	if err != nil {
		return err
	}

	payload := models.TransferRequest{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        models.Number(amount),
	}

	status, body, err := c.do(ctx, "transfer", http.MethodPost, "/api/banking/transfer", a, payload)
	if err != nil {
		return &TransferError{Message: GenericTransferMessage, Err: err}
	}
	if isSuccess(status) {
		return nil
	}

	msg := serverMessage(body)
	if msg == "" {
		msg = GenericTransferMessage
	}
	return &TransferError{StatusCode: status, Message: msg}
}

// SubmitDeposit tops up toID by amount.
func (c *Client) SubmitDeposit(ctx context.Context, a Authorizer, toID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "Enter a valid amount"}
	}
	amount, err := ValidateAmount(amount)
	if err != nil {
		return err
	}

	payload := models.DepositRequest{
		ToAccountID: toID,
		Amount:      models.Number(amount),
	}

	status, body, err := c.do(ctx, "deposit", http.MethodPost, "/api/banking/deposit", a, payload)
	if err != nil {
		return &DepositError{Err: err}
	}
	if isSuccess(status) {
		return nil
	}
	return &DepositError{StatusCode: status, ServerMessage: serverMessage(body)}
}

// read performs a GET and maps non-success statuses onto the read error taxonomy.
func (c *Client) read(ctx context.Context, op, path string, a Authorizer) ([]byte, error) {
	status, body, err := c.do(ctx, op, http.MethodGet, path, a, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case isSuccess(status):
		return body, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &AuthError{Op: op, StatusCode: status}
	default:
		return nil, &NetworkError{Op: op, StatusCode: status}
	}
}

// do issues one authenticated JSON request. It returns an error only when no response was received.
func (c *Client) do(ctx context.Context, op, method, path string, a Authorizer, payload any) (int, []byte, error) {
	header, err := a.Authorization()
	if err != nil {
		return 0, nil, &AuthError{Op: op, Err: err}
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", header)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", c.newKey())
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(op, 0, started)
		return 0, nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.observe(op, resp.StatusCode, started)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("ledger request", "op", op, "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(started))
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// serverMessage pulls the user-facing reason out of an error body, if there is one.
func serverMessage(body []byte) string {
	var er models.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return ""
	}
	return er.Text()
}
