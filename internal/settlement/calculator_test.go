package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harvest-hub/harvesthub/internal/ledger"
	"github.com/harvest-hub/harvesthub/internal/shared"
)

func mustPeriod(t *testing.T, s string) shared.Period {
	t.Helper()
	p, err := shared.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

func TestComputeStandardFarmer(t *testing.T) {
	in := ComputeInput{
		FarmerID:     7,
		Period:       mustPeriod(t, "2024-03"),
		RatePerLiter: 45,
		Deliveries: []ledger.Delivery{
			{ID: 1, FarmerID: 7, Quantity: 100.5},
			{ID: 2, FarmerID: 7, Quantity: 200.25},
		},
		Accounts: []ledger.Account{
			{ID: 10, FarmerID: 7, AccountNo: "F007-SAV", Status: ledger.AccountActive, Balance: 1500, MonthlyContribution: 200},
		},
		Loans: []ledger.Loan{
			{ID: 20, FarmerID: 7, LoanNo: "LN-20", Principal: 12000, TermMonths: 12, RepaidAmount: 11500, Status: ledger.LoanDisbursed},
		},
	}

	b := Compute(in)

	require.InDelta(t, 300.75, b.TotalQuantity, 1e-9)
	require.InDelta(t, 13533.75, b.Gross, 1e-9)

	require.Len(t, b.LoanLines, 1)
	require.InDelta(t, 1000, b.LoanLines[0].Installment, 1e-9)
	require.InDelta(t, 500, b.LoanLines[0].Remaining, 1e-9)
	require.InDelta(t, 500, b.LoanLines[0].Deduction, 1e-9)
	require.InDelta(t, 500, b.TotalLoanDeductions, 1e-9)

	require.Len(t, b.AccountLines, 1)
	require.InDelta(t, 200, b.TotalContributions, 1e-9)

	require.InDelta(t, 12833.75, b.NetAmount, 1e-9)
}

func TestComputeDeductionBoundedByRemaining(t *testing.T) {
	b := Compute(ComputeInput{
		FarmerID:     1,
		Period:       mustPeriod(t, "2024-03"),
		RatePerLiter: 50,
		Deliveries:   []ledger.Delivery{{Quantity: 100}},
		Loans: []ledger.Loan{
			// Almost repaid: remaining is below the installment.
			{ID: 1, Principal: 6000, TermMonths: 6, RepaidAmount: 5700, Status: ledger.LoanDisbursed},
			// Fresh loan: installment is below remaining.
			{ID: 2, Principal: 2400, TermMonths: 24, RepaidAmount: 0, Status: ledger.LoanDisbursed},
		},
	})

	require.Len(t, b.LoanLines, 2)
	require.InDelta(t, 300, b.LoanLines[0].Deduction, 1e-9)
	require.InDelta(t, 100, b.LoanLines[1].Deduction, 1e-9)
	require.InDelta(t, 400, b.TotalLoanDeductions, 1e-9)
}

func TestComputeIgnoresNonDisbursedLoans(t *testing.T) {
	b := Compute(ComputeInput{
		FarmerID:     1,
		Period:       mustPeriod(t, "2024-03"),
		RatePerLiter: 40,
		Deliveries:   []ledger.Delivery{{Quantity: 50}},
		Loans: []ledger.Loan{
			{ID: 1, Principal: 1000, TermMonths: 10, Status: ledger.LoanApplied},
			{ID: 2, Principal: 1000, TermMonths: 10, RepaidAmount: 1000, Status: ledger.LoanRepaid},
		},
	})

	require.Empty(t, b.LoanLines)
	require.Zero(t, b.TotalLoanDeductions)
	require.InDelta(t, 2000, b.NetAmount, 1e-9)
}

func TestComputeFullyRepaidLoanDeductsNothing(t *testing.T) {
	b := Compute(ComputeInput{
		FarmerID:     1,
		Period:       mustPeriod(t, "2024-03"),
		RatePerLiter: 40,
		Deliveries:   []ledger.Delivery{{Quantity: 50}},
		Loans: []ledger.Loan{
			{ID: 1, Principal: 1000, TermMonths: 10, RepaidAmount: 1000, Status: ledger.LoanDisbursed},
		},
	})

	require.Len(t, b.LoanLines, 1)
	require.Zero(t, b.LoanLines[0].Deduction)
	require.Zero(t, b.TotalLoanDeductions)
}

func TestComputeContributionIgnoresAccountStatus(t *testing.T) {
	b := Compute(ComputeInput{
		FarmerID:     1,
		Period:       mustPeriod(t, "2024-03"),
		RatePerLiter: 40,
		Deliveries:   []ledger.Delivery{{Quantity: 100}},
		Accounts: []ledger.Account{
			{ID: 1, Status: ledger.AccountActive, MonthlyContribution: 150},
			{ID: 2, Status: ledger.AccountInactive, MonthlyContribution: 100},
			{ID: 3, Status: ledger.AccountActive, MonthlyContribution: 0},
		},
	})

	require.Len(t, b.AccountLines, 3)
	require.InDelta(t, 150, b.AccountLines[0].Contribution, 1e-9)
	require.InDelta(t, 100, b.AccountLines[1].Contribution, 1e-9)
	require.Zero(t, b.AccountLines[2].Contribution)
	require.InDelta(t, 250, b.TotalContributions, 1e-9)
}

func TestComputeNegativeNetAllowed(t *testing.T) {
	b := Compute(ComputeInput{
		FarmerID:     1,
		Period:       mustPeriod(t, "2024-03"),
		RatePerLiter: 40,
		Deliveries:   []ledger.Delivery{{Quantity: 10}},
		Accounts:     []ledger.Account{{ID: 1, MonthlyContribution: 300}},
		Loans: []ledger.Loan{
			{ID: 1, Principal: 6000, TermMonths: 12, Status: ledger.LoanDisbursed},
		},
	})

	require.InDelta(t, 400, b.Gross, 1e-9)
	require.InDelta(t, -400, b.NetAmount, 1e-9)
}

func TestComputeNoDeliveriesNoGross(t *testing.T) {
	b := Compute(ComputeInput{
		FarmerID:     1,
		Period:       mustPeriod(t, "2024-03"),
		RatePerLiter: 40,
		Accounts:     []ledger.Account{{ID: 1, MonthlyContribution: 200}},
	})

	require.Zero(t, b.TotalQuantity)
	require.Zero(t, b.Gross)
	require.InDelta(t, -200, b.NetAmount, 1e-9)
}

func TestComputeConservation(t *testing.T) {
	b := Compute(ComputeInput{
		FarmerID:     1,
		Period:       mustPeriod(t, "2024-03"),
		RatePerLiter: 43.75,
		Deliveries: []ledger.Delivery{
			{Quantity: 33.33}, {Quantity: 12.01}, {Quantity: 87.4},
		},
		Accounts: []ledger.Account{
			{ID: 1, MonthlyContribution: 123.45},
			{ID: 2, MonthlyContribution: 67.89},
		},
		Loans: []ledger.Loan{
			{ID: 1, Principal: 9999.99, TermMonths: 7, RepaidAmount: 1234.56, Status: ledger.LoanDisbursed},
		},
	})

	require.InDelta(t, shared.Round2(b.Gross-b.TotalLoanDeductions-b.TotalContributions), b.NetAmount, 1e-9)
}

func TestComputeDeterministic(t *testing.T) {
	in := ComputeInput{
		FarmerID:     9,
		Period:       mustPeriod(t, "2024-06"),
		RatePerLiter: 38.5,
		Deliveries:   []ledger.Delivery{{Quantity: 11.11}, {Quantity: 22.22}},
		Accounts:     []ledger.Account{{ID: 1, MonthlyContribution: 50}},
		Loans:        []ledger.Loan{{ID: 1, Principal: 1200, TermMonths: 12, Status: ledger.LoanDisbursed}},
	}

	first := Compute(in)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, Compute(in))
	}
}
