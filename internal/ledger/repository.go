package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed read access to the ledgers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FarmersWithDeliveries returns the distinct farmers with at least one
// delivery in [from, to).
func (r *Repository) FarmersWithDeliveries(ctx context.Context, from, to time.Time) ([]int64, error) {
	const query = `
		SELECT DISTINCT farmer_id
		FROM deliveries
		WHERE delivered_at >= $1 AND delivered_at < $2
		ORDER BY farmer_id`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledger: farmers with deliveries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeliveryTotals aggregates one farmer's deliveries over [from, to).
func (r *Repository) DeliveryTotals(ctx context.Context, farmerID int64, from, to time.Time) (DeliveryTotals, error) {
	const query = `
		SELECT COALESCE(SUM(quantity), 0),
		       COALESCE(SUM(amount), 0),
		       COUNT(*),
		       COALESCE(AVG(fat_pct), 0),
		       COALESCE(AVG(snf_pct), 0)
		FROM deliveries
		WHERE farmer_id = $1 AND delivered_at >= $2 AND delivered_at < $3`

	t := DeliveryTotals{FarmerID: farmerID}
	err := r.pool.QueryRow(ctx, query, farmerID, from, to).Scan(
		&t.Quantity, &t.Amount, &t.Count, &t.AvgFatPct, &t.AvgSNFPct,
	)
	if err != nil {
		return DeliveryTotals{}, fmt.Errorf("ledger: delivery totals for farmer %d: %w", farmerID, err)
	}
	return t, nil
}

// DeliveryTotalsByFarmer aggregates deliveries per farmer over [from, to).
func (r *Repository) DeliveryTotalsByFarmer(ctx context.Context, from, to time.Time) ([]DeliveryTotals, error) {
	const query = `
		SELECT farmer_id,
		       SUM(quantity),
		       SUM(amount),
		       COUNT(*),
		       AVG(fat_pct),
		       AVG(snf_pct)
		FROM deliveries
		WHERE delivered_at >= $1 AND delivered_at < $2
		GROUP BY farmer_id
		ORDER BY farmer_id`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledger: delivery totals by farmer: %w", err)
	}
	defer rows.Close()

	var totals []DeliveryTotals
	for rows.Next() {
		var t DeliveryTotals
		if err := rows.Scan(&t.FarmerID, &t.Quantity, &t.Amount, &t.Count, &t.AvgFatPct, &t.AvgSNFPct); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ListDeliveries returns raw delivery rows, optionally filtered by farmer and
// period range. Newest first.
func (r *Repository) ListDeliveries(ctx context.Context, farmerID int64, from, to time.Time, limit int) ([]Delivery, error) {
	query := `
		SELECT id, farmer_id, quantity, fat_pct, snf_pct, amount, delivered_at, created_at
		FROM deliveries
		WHERE 1=1`

	args := []any{}
	argNum := 1

	if farmerID > 0 {
		query += fmt.Sprintf(" AND farmer_id = $%d", argNum)
		args = append(args, farmerID)
		argNum++
	}
	if !from.IsZero() {
		query += fmt.Sprintf(" AND delivered_at >= $%d", argNum)
		args = append(args, from)
		argNum++
	}
	if !to.IsZero() {
		query += fmt.Sprintf(" AND delivered_at < $%d", argNum)
		args = append(args, to)
		argNum++
	}

	query += " ORDER BY delivered_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.FarmerID, &d.Quantity, &d.FatPct, &d.SNFPct, &d.Amount, &d.DeliveredAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// AccountsByFarmer returns all of a farmer's accounts, newest first.
func (r *Repository) AccountsByFarmer(ctx context.Context, farmerID int64) ([]Account, error) {
	const query = `
		SELECT id, farmer_id, account_no, name, type, status, currency,
		       balance, monthly_contribution, created_at, updated_at
		FROM accounts
		WHERE farmer_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, farmerID)
	if err != nil {
		return nil, fmt.Errorf("ledger: accounts for farmer %d: %w", farmerID, err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

// LoansByFarmer returns a farmer's loans, optionally filtered by status.
func (r *Repository) LoansByFarmer(ctx context.Context, farmerID int64, status LoanStatus) ([]Loan, error) {
	query := `
		SELECT id, farmer_id, loan_no, principal, term_months, repaid_amount, status, created_at, updated_at
		FROM loans
		WHERE farmer_id = $1`

	args := []any{farmerID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: loans for farmer %d: %w", farmerID, err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// DisbursedLoansByFarmer returns the loans that participate in settlement.
func (r *Repository) DisbursedLoansByFarmer(ctx context.Context, farmerID int64) ([]Loan, error) {
	return r.LoansByFarmer(ctx, farmerID, LoanDisbursed)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAccounts(rows pgxRows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(
			&a.ID, &a.FarmerID, &a.AccountNo, &a.Name, &a.Type, &a.Status, &a.Currency,
			&a.Balance, &a.MonthlyContribution, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanLoans(rows pgxRows) ([]Loan, error) {
	var loans []Loan
	for rows.Next() {
		var l Loan
		if err := rows.Scan(
			&l.ID, &l.FarmerID, &l.LoanNo, &l.Principal, &l.TermMonths,
			&l.RepaidAmount, &l.Status, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}
