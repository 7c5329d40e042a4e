package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
)

// TransferRequest is the wire payload for POST /api/banking/transfer.
type TransferRequest struct {
	FromAccountID int64       `json:"fromAccountId"`
	ToAccountID   int64       `json:"toAccountId"`
	Amount        json.Number `json:"amount"`
}

// DepositRequest is the wire payload for POST /api/banking/deposit.
type DepositRequest struct {
	ToAccountID int64       `json:"toAccountId"`
	Amount      json.Number `json:"amount"`
}

// Transaction is the wire form of a ledger record.
type Transaction struct {
	ID              int64       `json:"id"`
	SourceAccountID int64       `json:"sourceAccountId"`
	TargetAccountID int64       `json:"targetAccountId"`
	Amount          json.Number `json:"amount"`
	Timestamp       string      `json:"timestamp"`
}

// ErrorResponse is the error body. Ledgers differ on the key, so both are read.
type ErrorResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns the most specific message present.
func (e ErrorResponse) Text() string {
	if m := strings.TrimSpace(e.Message); m != "" {
		return m
	}
	return strings.TrimSpace(e.Error)
}

// Number renders a decimal as a bare JSON number.
func Number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// ParseAmount converts a wire number into a decimal.
func ParseAmount(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", n, err)
	}
	return d, nil
}

// ErrBadTimestamp marks a transaction whose timestamp could not be read.
var ErrBadTimestamp = errors.New("unrecognised timestamp")

// Layouts accepted for timestamps: RFC 3339, ISO 8601 with a colon-less offset and
// zone-less ISO local date-times.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses a ledger timestamp. Zone-less values are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w %q", ErrBadTimestamp, s)
}

// FromTransaction converts a domain transaction to its wire form.
func FromTransaction(t domain.Transaction) Transaction {
	return Transaction{
		ID:              t.ID,
		SourceAccountID: t.SourceAccountID,
		TargetAccountID: t.TargetAccountID,
		Amount:          Number(t.Amount),
		Timestamp:       t.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// ToDomain converts a wire transaction into the immutable domain record.
// Amounts must be positive and within the money bounds.
//
// An unreadable timestamp is the one soft failure: the record is returned with a zero
// Timestamp together with an error wrapping ErrBadTimestamp.
func (t Transaction) ToDomain() (domain.Transaction, error) {
	amount, err := ParseAmount(t.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, err)
	}
	if !amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("transaction %d: amount %s is not positive", t.ID, t.Amount)
	}
	if amount, err = domain.CheckAmount(amount); err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, err)
	}

	tx := domain.Transaction{
		ID:              t.ID,
		SourceAccountID: t.SourceAccountID,
		TargetAccountID: t.TargetAccountID,
		Amount:          amount,
	}
	if t.Timestamp != "" {
		if tx.Timestamp, err = ParseTimestamp(t.Timestamp); err != nil {
			return tx, fmt.Errorf("transaction %d: %w", t.ID, err)
		}
	}
	return tx, nil
}
