// Package ledger exposes typed read accessors over the cooperative's
// delivery, account and loan stores. Everything here is a pure query; the
// settlement committer is the only writer of ledger state.
package ledger

import (
	"math"
	"time"
)

// AccountStatus enumerates account lifecycle states.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
	AccountClosed   AccountStatus = "closed"
)

// Account types relevant to settlement.
const (
	AccountTypeSavings = "Savings"
	AccountTypePayout  = "Payout"
)

// LoanStatus enumerates loan lifecycle states.
type LoanStatus string

const (
	LoanApplied   LoanStatus = "applied"
	LoanDisbursed LoanStatus = "disbursed"
	LoanRepaid    LoanStatus = "repaid"
	LoanOverdue   LoanStatus = "overdue"
)

// Delivery is one recorded milk drop-off. Append-only; the settlement engine
// reads deliveries whose date falls inside the period range and never mutates
// them.
type Delivery struct {
	ID          int64
	FarmerID    int64
	Quantity    float64
	FatPct      float64
	SNFPct      float64
	Amount      float64
	DeliveredAt time.Time
	CreatedAt   time.Time
}

// Account is a savings or contribution ledger owned by one farmer.
type Account struct {
	ID                  int64
	FarmerID            int64
	AccountNo           string
	Name                string
	Type                string
	Status              AccountStatus
	Currency            string
	Balance             float64
	MonthlyContribution float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Loan is a farmer's credit obligation. Only disbursed loans participate in
// settlement deductions.
type Loan struct {
	ID           int64
	FarmerID     int64
	LoanNo       string
	Principal    float64
	TermMonths   int
	RepaidAmount float64
	Status       LoanStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Installment returns the flat monthly installment, zero when the loan has no
// term.
func (l Loan) Installment() float64 {
	if l.TermMonths <= 0 {
		return 0
	}
	return l.Principal / float64(l.TermMonths)
}

// Remaining returns the outstanding balance, floored at zero.
func (l Loan) Remaining() float64 {
	return math.Max(0, l.Principal-l.RepaidAmount)
}

// DeliveryTotals aggregates one farmer's deliveries over a period.
type DeliveryTotals struct {
	FarmerID  int64
	Quantity  float64
	Amount    float64
	Count     int
	AvgFatPct float64
	AvgSNFPct float64
}
