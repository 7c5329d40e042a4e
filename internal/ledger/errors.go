package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
)

const (
	// GenericTransferMessage is shown when the ledger gives no reason for a rejected transfer.
	GenericTransferMessage = "insufficient balance or invalid request"
	// GenericDepositMessage is shown for every failed deposit.
	GenericDepositMessage = "deposit failed"
)

// ValidationError is input rejected on the client before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateAmount checks amount against the money bounds and returns its canonical form.
// Failures are reported as *ValidationError. Sign is left to the caller.
func ValidateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	canonical, err := domain.CheckAmount(amount)
	switch {
	case errors.Is(err, domain.ErrAmountTooLarge):
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "Amount exceeds the " + domain.Dollars(domain.MaxAmount) + " limit"}
	case errors.Is(err, domain.ErrAmountTooPrecise):
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "Use at most 2 decimal places"}
	case err != nil:
		return decimal.Zero, &ValidationError{Field: "amount", Reason: "Enter a valid amount"}
	}
	return canonical, nil
}

// NetworkError is a transport failure or an unexpected status on a read.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: ledger returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError means the ledger refused the credential, or there was no session to take one from.
type AuthError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: unauthenticated: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: ledger rejected credentials (status %d)", e.Op, e.StatusCode)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransferError is a transfer the ledger did not accept. Message is safe to show to the user.
type TransferError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransferError) Error() string { return e.Message }

func (e *TransferError) Unwrap() error { return e.Err }

// DepositError is a deposit the ledger did not accept. ServerMessage is kept for logs only.
type DepositError struct {
	StatusCode    int
	ServerMessage string
	Err           error
}

func (e *DepositError) Error() string { return GenericDepositMessage }

func (e *DepositError) Unwrap() error { return e.Err }

// UserMessage extracts the text to surface for a failed submission.
func UserMessage(err error) string {
	var (
		verr *ValidationError
		terr *TransferError
		derr *DepositError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Reason
	case errors.As(err, &terr):
		return terr.Message
	case errors.As(err, &derr):
		return GenericDepositMessage
	default:
		return GenericTransferMessage
	}
}
