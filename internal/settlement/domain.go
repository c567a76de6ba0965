// Package settlement implements the payout settlement engine: the periodic
// batch that turns milk deliveries into farmer payments net of loan
// repayments and savings contributions, and durably updates the ledgers.
package settlement

import (
	"errors"
	"time"

	"github.com/harvest-hub/harvesthub/internal/ledger"
	"github.com/harvest-hub/harvesthub/internal/shared"
)

var (
	// ErrAlreadySettled indicates a payout already exists for the
	// (farmer, period) pair. Expected on batch retry; never overwritten.
	ErrAlreadySettled = errors.New("settlement: farmer already settled for period")
	// ErrRunInProgress indicates another commit run holds the period lock.
	ErrRunInProgress = errors.New("settlement: commit run already in progress for period")
)

// AccountLine is the contribution detail for one account. Accounts with a
// zero monthly contribution still appear in the snapshot so operators can see
// the full ledger position; only lines with Contribution > 0 move money.
type AccountLine struct {
	AccountID    int64                `json:"accountId"`
	AccountNo    string               `json:"accountNumber"`
	Name         string               `json:"accountName"`
	Status       ledger.AccountStatus `json:"status"`
	Contribution float64              `json:"monthlyContribution"`
	Balance      float64              `json:"currentBalance"`
}

// LoanLine is the deduction detail for one disbursed loan.
type LoanLine struct {
	LoanID       int64   `json:"loanId"`
	LoanNo       string  `json:"loanNo"`
	Principal    float64 `json:"principal"`
	TermMonths   int     `json:"termMonths"`
	RepaidAmount float64 `json:"repaidAmount"`
	Installment  float64 `json:"monthlyInstallment"`
	Remaining    float64 `json:"remaining"`
	Deduction    float64 `json:"deduction"`
}

// Breakdown is the full settlement computation for one farmer in one period.
// The committer replays exactly these numbers; it never recomputes.
type Breakdown struct {
	FarmerID            int64
	Period              shared.Period
	RatePerLiter        float64
	TotalQuantity       float64
	Gross               float64
	AccountLines        []AccountLine
	LoanLines           []LoanLine
	TotalLoanDeductions float64
	TotalContributions  float64
	NetAmount           float64
}

// Payout is the immutable settlement record for one (farmer, period).
type Payout struct {
	ID             int64
	FarmerID       int64
	Period         shared.Period
	TotalQuantity  float64
	GrossAmount    float64
	LoanDeductions float64
	Contributions  float64
	NetAmount      float64
	Lines          PayoutLines
	CreatedAt      time.Time
}

// PayoutLines is the snapshot of the lines used to compute a payout.
type PayoutLines struct {
	Accounts []AccountLine `json:"accounts"`
	Loans    []LoanLine    `json:"loans"`
}

// PayoutQuery filters historical payout lookups.
type PayoutQuery struct {
	Period   shared.Period
	FarmerID int64
	Page     int
	PerPage  int
}

// RunMode distinguishes preview from commit runs.
type RunMode string

const (
	ModePreview RunMode = "preview"
	ModeCommit  RunMode = "commit"
)

// FarmerResult is the outcome for one committed farmer.
type FarmerResult struct {
	Breakdown
	PayoutID int64
}

// FailedFarmer records a per-farmer error that did not abort the batch.
type FailedFarmer struct {
	FarmerID int64
	Reason   string
}

// Report summarises one settlement run.
type Report struct {
	RunID     string
	Period    shared.Period
	Rate      float64
	Mode      RunMode
	Previewed []Breakdown
	Committed []FarmerResult
	Skipped   []int64
	Failed    []FailedFarmer
	StartedAt time.Time
	Duration  time.Duration
}

// RunRecord is the persisted history row for a settlement run.
type RunRecord struct {
	RunID      string
	Period     shared.Period
	Mode       RunMode
	Rate       float64
	Committed  int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// PayoutEvent is emitted after each successful commit for the notification
// dispatcher. Dispatch failures never roll back a settlement.
type PayoutEvent struct {
	RunID          string
	FarmerID       int64
	PayoutID       int64
	Period         shared.Period
	TotalQuantity  float64
	GrossAmount    float64
	LoanDeductions float64
	Contributions  float64
	NetAmount      float64
}
