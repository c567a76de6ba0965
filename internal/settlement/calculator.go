package settlement

import (
	"math"

	"github.com/harvest-hub/harvesthub/internal/ledger"
	"github.com/harvest-hub/harvesthub/internal/shared"
)

// ComputeInput carries one farmer's ledger state into the calculator. The
// deliveries are pre-filtered to the farmer and period; accounts and loans
// are the farmer's current records.
type ComputeInput struct {
	FarmerID     int64
	Period       shared.Period
	RatePerLiter float64
	Deliveries   []ledger.Delivery
	Accounts     []ledger.Account
	Loans        []ledger.Loan
}

// Compute maps one farmer's period ledger state to a settlement breakdown.
// Pure function: no I/O, deterministic, identical inputs produce identical
// output. Preview and commit both call it so they can never diverge.
//
// Monetary values are rounded to cents after each aggregation step, matching
// the cent increments the ledgers record.
//
// Net is deliberately not floored at zero: loan collection does not stall
// merely because milk income was low that month, so deductions exceeding
// gross leave a negative net.
func Compute(in ComputeInput) Breakdown {
	var qty float64
	for _, d := range in.Deliveries {
		qty += d.Quantity
	}
	qty = shared.Round2(qty)
	gross := shared.Round2(qty * in.RatePerLiter)

	// Flat monthly contribution per account, keyed only on the configured
	// amount being positive. Account status is intentionally ignored; see
	// the policy note in DESIGN.md.
	accountLines := make([]AccountLine, 0, len(in.Accounts))
	var totalContributions float64
	for _, acc := range in.Accounts {
		contribution := 0.0
		if acc.MonthlyContribution > 0 {
			contribution = shared.Round2(acc.MonthlyContribution)
			totalContributions += contribution
		}
		accountLines = append(accountLines, AccountLine{
			AccountID:    acc.ID,
			AccountNo:    acc.AccountNo,
			Name:         acc.Name,
			Status:       acc.Status,
			Contribution: contribution,
			Balance:      acc.Balance,
		})
	}
	totalContributions = shared.Round2(totalContributions)

	loanLines := make([]LoanLine, 0, len(in.Loans))
	var totalLoanDeductions float64
	for _, loan := range in.Loans {
		if loan.Status != ledger.LoanDisbursed {
			continue
		}
		installment := loan.Installment()
		remaining := loan.Remaining()
		deduction := shared.Round2(math.Min(installment, remaining))
		if deduction > 0 {
			totalLoanDeductions += deduction
		} else {
			deduction = 0
		}
		loanLines = append(loanLines, LoanLine{
			LoanID:       loan.ID,
			LoanNo:       loan.LoanNo,
			Principal:    loan.Principal,
			TermMonths:   loan.TermMonths,
			RepaidAmount: loan.RepaidAmount,
			Installment:  shared.Round2(installment),
			Remaining:    shared.Round2(remaining),
			Deduction:    deduction,
		})
	}
	totalLoanDeductions = shared.Round2(totalLoanDeductions)

	return Breakdown{
		FarmerID:            in.FarmerID,
		Period:              in.Period,
		RatePerLiter:        in.RatePerLiter,
		TotalQuantity:       qty,
		Gross:               gross,
		AccountLines:        accountLines,
		LoanLines:           loanLines,
		TotalLoanDeductions: totalLoanDeductions,
		TotalContributions:  totalContributions,
		NetAmount:           shared.Round2(gross - totalLoanDeductions - totalContributions),
	}
}
