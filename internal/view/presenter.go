package view

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/domain"
)

// RecentLimit is how many transactions the dashboard's recent-activity panel shows.
const RecentLimit = 3

// Frame is an immutable snapshot of everything a front-end needs to draw one screen.
type Frame struct {
	LoggedIn bool
	// Identities is the login list.
	Identities []domain.Identity

	Identity      domain.Identity
	Router        State
	Balance       decimal.Decimal
	Transactions  []domain.Transaction
	Amount        decimal.Decimal
	Recipient     int64
	Recipients    []domain.Identity
	InFlight      bool
	DepositAmount decimal.Decimal

	// Names resolves account ids for transaction rows. Nil falls back to "User #N".
	Names func(id int64) string
}

// Recent is the head of the cached history shown on the dashboard.
func (f Frame) Recent() []domain.Transaction {
	if len(f.Transactions) <= RecentLimit {
		return f.Transactions
	}
	return f.Transactions[:RecentLimit]
}

func (f Frame) name(id int64) string {
	if f.Names != nil {
		return f.Names(id)
	}
	return fmt.Sprintf("User #%d", id)
}

// Row is one rendered transaction line.
type Row struct {
	Status  string
	Details string
	Amount  string
	When    string
}

// RowFor renders a transaction as seen by selfID.
func (f Frame) RowFor(tx domain.Transaction, selfID int64) Row {
	row := Row{Amount: "+" + domain.Dollars(tx.Amount)}
	if !tx.Timestamp.IsZero() {
		row.When = tx.Timestamp.Local().Format("2006-01-02 15:04:05")
	}
	switch tx.DirectionFor(selfID) {
	case domain.DirectionDeposit:
		row.Status = "DEPOSIT"
		row.Details = "Wallet Top-up"
	case domain.DirectionSent:
		row.Status = "SENT"
		row.Details = "To " + f.name(tx.TargetAccountID)
		row.Amount = "-" + domain.Dollars(tx.Amount)
	default:
		row.Status = "REC'D"
		row.Details = "From " + f.name(tx.SourceAccountID)
	}
	return row
}

// Render writes a plain-text rendition of the frame.
func Render(w io.Writer, f Frame) error {
	p := &printer{w: w}
	if !f.LoggedIn {
		renderLogin(p, f)
		return p.err
	}

	p.printf("AtomicBank | %s | %s (@%s)\n", f.Router.Screen.Title(), f.Identity.Name, f.Identity.Handle)
	if f.Router.MenuOpen {
		p.printf("  [menu] Signed in as @%s | Account Settings | Logout\n", f.Identity.Handle)
	}
	p.printf("%s\n", strings.Repeat("-", 48))

	switch f.Router.Screen {
	case History:
		renderTable(p, f, f.Transactions)
	case Settings:
		renderSettings(p, f)
	default:
		renderDashboard(p, f)
	}
	return p.err
}

func renderLogin(p *printer, f Frame) {
	p.printf("AtomicBank\nSecure Login Portal\n\n")
	for _, ident := range f.Identities {
		p.printf("  [%s] %-14s @%-8s ID: #%d\n", ident.Avatar, ident.Name, ident.Handle, ident.ID)
	}
}

func renderDashboard(p *printer, f Frame) {
	p.printf("AVAILABLE BALANCE  %s\n", domain.Dollars(f.Balance))
	p.printf("  deposit: Add %s\n\n", domain.Dollars(f.DepositAmount))

	p.printf("Quick Transfer\n")
	p.printf("  Recipient: %s\n", f.name(f.Recipient))
	amount := ""
	if f.Amount.IsPositive() {
		amount = f.Amount.String()
	}
	p.printf("  Amount:    %s\n", amount)
	switch {
	case f.InFlight:
		p.printf("  [Processing...]\n\n")
	case !f.Amount.IsPositive():
		p.printf("  [Send Money Now] (enter an amount)\n\n")
	default:
		p.printf("  [Send Money Now]\n\n")
	}

	p.printf("Recent Activity (view all: history)\n")
	renderTable(p, f, f.Recent())
}

func renderSettings(p *printer, f Frame) {
	p.printf("Profile Settings\n")
	p.printf("  [%s] %s\n", f.Identity.Avatar, f.Identity.Name)
	p.printf("  Verified User\n")
	p.printf("  Username:   @%s\n", f.Identity.Handle)
	p.printf("  Account ID: #%d\n", f.Identity.ID)
}

func renderTable(p *printer, f Frame, txs []domain.Transaction) {
	if len(txs) == 0 {
		p.printf("  No transactions found\n")
		return
	}
	tw := tabwriter.NewWriter(p, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  STATUS\tDETAILS\tWHEN\tAMOUNT")
	for _, tx := range txs {
		row := f.RowFor(tx, f.Identity.ID)
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", row.Status, row.Details, row.When, row.Amount)
	}
	if err := tw.Flush(); err != nil && p.err == nil {
		p.err = err
	}
}

// printer keeps the first write error so render helpers can write unconditionally.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	n, err := p.w.Write(b)
	p.err = err
	return n, err
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p, format, args...)
}
