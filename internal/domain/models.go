package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositSourceID marks a transaction that has no originating account.
const DepositSourceID int64 = -1

// Identity is one of the fixed bank users the dashboard can act as.
type Identity struct {
	ID     int64  `json:"id" mapstructure:"id"`
	Name   string `json:"name" mapstructure:"name"`
	Handle string `json:"handle" mapstructure:"handle"`
	Avatar string `json:"avatar" mapstructure:"avatar"`
}

// Transaction is an immutable ledger record as observed by the client.
type Transaction struct {
	ID              int64
	SourceAccountID int64
	TargetAccountID int64
	Amount          decimal.Decimal
	Timestamp       time.Time
}

// Direction classifies a transaction relative to the viewing account.
type Direction string

const (
	DirectionDeposit  Direction = "DEPOSIT"
	DirectionSent     Direction = "SENT"
	DirectionReceived Direction = "RECEIVED"
)

// IsDeposit reports whether the transaction is a top-up. The sentinel source wins over any target.
func (t Transaction) IsDeposit() bool {
	return t.SourceAccountID == DepositSourceID
}

// DirectionFor classifies the transaction from the point of view of selfID.
func (t Transaction) DirectionFor(selfID int64) Direction {
	switch {
	case t.IsDeposit():
		return DirectionDeposit
	case t.SourceAccountID == selfID:
		return DirectionSent
	default:
		return DirectionReceived
	}
}

// CounterpartyFor returns the other account involved. Deposits have none.
func (t Transaction) CounterpartyFor(selfID int64) (int64, bool) {
	switch t.DirectionFor(selfID) {
	case DirectionDeposit:
		return 0, false
	case DirectionSent:
		return t.TargetAccountID, true
	default:
		return t.SourceAccountID, true
	}
}

// TransferRequest is a single transfer submission. It is never persisted client-side.
type TransferRequest struct {
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
}

// DepositRequest tops up an account from outside the ledger.
type DepositRequest struct {
	ToAccountID int64
	Amount      decimal.Decimal
}
