package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harvest-hub/harvesthub/internal/platform/db"
	"github.com/harvest-hub/harvesthub/internal/shared"
)

const pgUniqueViolation = "23505"

// Repository persists payouts and applies settlement ledger mutations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CommitPayout applies one farmer's breakdown as a single unit of work:
// payout record, contribution credits, loan repayments and the payout-account
// credit all land in one RepeatableRead transaction. The payout insert runs
// first so a duplicate (farmer, period) aborts before any ledger mutation,
// which is what protects a retried batch from double-deduction.
func (r *Repository) CommitPayout(ctx context.Context, b Breakdown) (*Payout, error) {
	payout := &Payout{
		FarmerID:       b.FarmerID,
		Period:         b.Period,
		TotalQuantity:  b.TotalQuantity,
		GrossAmount:    b.Gross,
		LoanDeductions: b.TotalLoanDeductions,
		Contributions:  b.TotalContributions,
		NetAmount:      b.NetAmount,
		Lines:          PayoutLines{Accounts: b.AccountLines, Loans: b.LoanLines},
	}

	linesJSON, err := json.Marshal(payout.Lines)
	if err != nil {
		return nil, fmt.Errorf("settlement: marshal payout lines: %w", err)
	}

	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insertPayout = `
			INSERT INTO payouts (
				farmer_id, period, total_quantity, gross_amount,
				loan_deductions, contributions, net_amount, lines, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			RETURNING id, created_at`

		err := tx.QueryRow(ctx, insertPayout,
			b.FarmerID, b.Period.String(), b.TotalQuantity, b.Gross,
			b.TotalLoanDeductions, b.TotalContributions, b.NetAmount, linesJSON,
		).Scan(&payout.ID, &payout.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return ErrAlreadySettled
			}
			return fmt.Errorf("settlement: insert payout: %w", err)
		}

		for _, line := range b.AccountLines {
			if line.Contribution <= 0 {
				continue
			}
			tag, err := tx.Exec(ctx,
				`UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1`,
				line.AccountID, line.Contribution,
			)
			if err != nil {
				return fmt.Errorf("settlement: credit account %d: %w", line.AccountID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("settlement: account %d vanished during commit", line.AccountID)
			}
		}

		for _, line := range b.LoanLines {
			if line.Deduction <= 0 {
				continue
			}
			// repaid_amount is capped at principal in SQL so no sequence of
			// settlements can push it past the obligation.
			tag, err := tx.Exec(ctx,
				`UPDATE loans SET repaid_amount = LEAST(principal, repaid_amount + $2), updated_at = NOW() WHERE id = $1`,
				line.LoanID, line.Deduction,
			)
			if err != nil {
				return fmt.Errorf("settlement: advance loan %d: %w", line.LoanID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("settlement: loan %d vanished during commit", line.LoanID)
			}
		}

		payoutAccountID, err := findOrCreatePayoutAccount(ctx, tx, b.FarmerID)
		if err != nil {
			return err
		}

		// Net may be negative; the payout account balance is allowed below
		// zero, recording money owed.
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1`,
			payoutAccountID, b.NetAmount,
		); err != nil {
			return fmt.Errorf("settlement: credit payout account %d: %w", payoutAccountID, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func findOrCreatePayoutAccount(ctx context.Context, tx pgx.Tx, farmerID int64) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM accounts WHERE farmer_id = $1 AND type = 'Payout' FOR UPDATE`,
		farmerID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("settlement: lookup payout account: %w", err)
	}

	var memberNo, firstName, surname string
	err = tx.QueryRow(ctx,
		`SELECT member_no, first_name, surname FROM farmers WHERE id = $1`,
		farmerID,
	).Scan(&memberNo, &firstName, &surname)
	if err != nil {
		return 0, fmt.Errorf("settlement: resolve farmer %d for payout account: %w", farmerID, err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (
			farmer_id, account_no, name, type, status, currency,
			balance, monthly_contribution, created_at, updated_at
		) VALUES ($1, $2, $3, 'Payout', 'active', 'KES', 0, 0, NOW(), NOW())
		RETURNING id`,
		farmerID, memberNo+"-PAYOUT", "Payout Account - "+firstName+" "+surname,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("settlement: create payout account: %w", err)
	}
	return id, nil
}

// HasPayout reports whether a payout already exists for (farmer, period).
func (r *Repository) HasPayout(ctx context.Context, farmerID int64, period shared.Period) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payouts WHERE farmer_id = $1 AND period = $2)`,
		farmerID, period.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("settlement: has payout: %w", err)
	}
	return exists, nil
}

// ListPayouts returns stored payout records with optional period/farmer
// filters, newest first, plus the total row count for pagination.
func (r *Repository) ListPayouts(ctx context.Context, q PayoutQuery) ([]Payout, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	argNum := 1

	if !q.Period.IsZero() {
		where += fmt.Sprintf(" AND period = $%d", argNum)
		args = append(args, q.Period.String())
		argNum++
	}
	if q.FarmerID > 0 {
		where += fmt.Sprintf(" AND farmer_id = $%d", argNum)
		args = append(args, q.FarmerID)
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM payouts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("settlement: count payouts: %w", err)
	}

	query := `
		SELECT id, farmer_id, period, total_quantity, gross_amount,
		       loan_deductions, contributions, net_amount, lines, created_at
		FROM payouts` + where + " ORDER BY created_at DESC"

	page := shared.NewPagination(q.Page, q.PerPage, total)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, page.PerPage, (page.Page-1)*page.PerPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("settlement: list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []Payout
	for rows.Next() {
		var p Payout
		var periodStr string
		var linesJSON []byte
		if err := rows.Scan(
			&p.ID, &p.FarmerID, &periodStr, &p.TotalQuantity, &p.GrossAmount,
			&p.LoanDeductions, &p.Contributions, &p.NetAmount, &linesJSON, &p.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		if p.Period, err = shared.ParsePeriod(periodStr); err != nil {
			return nil, 0, fmt.Errorf("settlement: stored period %q: %w", periodStr, err)
		}
		if len(linesJSON) > 0 {
			if err := json.Unmarshal(linesJSON, &p.Lines); err != nil {
				return nil, 0, fmt.Errorf("settlement: unmarshal payout %d lines: %w", p.ID, err)
			}
		}
		payouts = append(payouts, p)
	}
	return payouts, total, rows.Err()
}

// RecordRun persists the history row for a settlement run.
func (r *Repository) RecordRun(ctx context.Context, rec RunRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settlement_runs (
			run_id, period, mode, rate, committed, skipped, failed, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.RunID, rec.Period.String(), string(rec.Mode), rec.Rate,
		rec.Committed, rec.Skipped, rec.Failed, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("settlement: record run: %w", err)
	}
	return nil
}

// ListRuns returns recent settlement run history for a period.
func (r *Repository) ListRuns(ctx context.Context, period shared.Period, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT run_id, period, mode, rate, committed, skipped, failed, started_at, finished_at
		FROM settlement_runs
		WHERE period = $1
		ORDER BY started_at DESC
		LIMIT $2`,
		period.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("settlement: list runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var periodStr, mode string
		if err := rows.Scan(
			&rec.RunID, &periodStr, &mode, &rec.Rate,
			&rec.Committed, &rec.Skipped, &rec.Failed, &rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			return nil, err
		}
		rec.Mode = RunMode(mode)
		if rec.Period, err = shared.ParsePeriod(periodStr); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
