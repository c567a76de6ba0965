package settlement

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harvest-hub/harvesthub/internal/directory"
	"github.com/harvest-hub/harvesthub/internal/ledger"
	"github.com/harvest-hub/harvesthub/internal/shared"
)

// LedgerReader provides the read accessors the orchestrator needs.
type LedgerReader interface {
	FarmersWithDeliveries(ctx context.Context, from, to time.Time) ([]int64, error)
	ListDeliveries(ctx context.Context, farmerID int64, from, to time.Time, limit int) ([]ledger.Delivery, error)
	AccountsByFarmer(ctx context.Context, farmerID int64) ([]ledger.Account, error)
	DisbursedLoansByFarmer(ctx context.Context, farmerID int64) ([]ledger.Loan, error)
}

// PayoutStore persists payouts and run history.
type PayoutStore interface {
	CommitPayout(ctx context.Context, b Breakdown) (*Payout, error)
	HasPayout(ctx context.Context, farmerID int64, period shared.Period) (bool, error)
	ListPayouts(ctx context.Context, q PayoutQuery) ([]Payout, int, error)
	RecordRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, period shared.Period, limit int) ([]RunRecord, error)
}

// FarmerDirectory resolves farmer identities.
type FarmerDirectory interface {
	Get(ctx context.Context, id int64) (*directory.Farmer, error)
}

// Notifier receives post-commit payout events. Failures are logged, never
// surfaced: notification availability must not affect settlement correctness.
type Notifier interface {
	PayoutCommitted(ctx context.Context, evt PayoutEvent) error
}

// RunMetrics records settlement telemetry.
type RunMetrics interface {
	FarmerOutcome(outcome string)
	BatchDuration(mode string, seconds float64)
}

// ServiceConfig tunes orchestrator behaviour.
type ServiceConfig struct {
	// Workers bounds per-farmer concurrency. Farmers are independent, so
	// parallelism is an optimisation only.
	Workers int
	// CommitTimeout applies per farmer-commit transaction, not to the
	// whole batch.
	CommitTimeout time.Duration
	// LockTTL caps how long a crashed commit run can hold the period lock.
	LockTTL time.Duration
	// Location fixes the period boundary timezone.
	Location *time.Location
}

// Service orchestrates settlement runs over all farmers with deliveries in a
// period.
type Service struct {
	logger   *slog.Logger
	ledger   LedgerReader
	payouts  PayoutStore
	farmers  FarmerDirectory
	notifier Notifier
	locker   RunLocker
	metrics  RunMetrics

	workers       int
	commitTimeout time.Duration
	lockTTL       time.Duration
	loc           *time.Location
	now           func() time.Time
}

// NewService wires the orchestrator.
func NewService(logger *slog.Logger, reader LedgerReader, payouts PayoutStore, farmers FarmerDirectory, notifier Notifier, locker RunLocker, metrics RunMetrics, cfg ServiceConfig) *Service {
	s := &Service{
		logger:        logger,
		ledger:        reader,
		payouts:       payouts,
		farmers:       farmers,
		notifier:      notifier,
		locker:        locker,
		metrics:       metrics,
		workers:       cfg.Workers,
		commitTimeout: cfg.CommitTimeout,
		lockTTL:       cfg.LockTTL,
		loc:           cfg.Location,
		now:           time.Now,
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	if s.commitTimeout <= 0 {
		s.commitTimeout = 30 * time.Second
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Minute
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	return s
}

// Preview computes breakdowns for every farmer with deliveries in the period
// without touching any ledger. Safe to call any number of times.
func (s *Service) Preview(ctx context.Context, period string, rate float64) (*Report, error) {
	return s.run(ctx, period, rate, ModePreview)
}

// Commit settles every farmer with deliveries in the period. Farmers with an
// existing payout are skipped, per-farmer failures are isolated, and each
// successful commit emits a notification event.
func (s *Service) Commit(ctx context.Context, period string, rate float64) (*Report, error) {
	return s.run(ctx, period, rate, ModeCommit)
}

// Payouts returns historical payout records.
func (s *Service) Payouts(ctx context.Context, q PayoutQuery) ([]Payout, int, error) {
	return s.payouts.ListPayouts(ctx, q)
}

// Runs returns commit run history for a period.
func (s *Service) Runs(ctx context.Context, period string, limit int) ([]RunRecord, error) {
	p, err := shared.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return s.payouts.ListRuns(ctx, p, limit)
}

type outcomeKind int

const (
	outcomeNone outcomeKind = iota
	outcomePreviewed
	outcomeCommitted
	outcomeSkipped
	outcomeFailed
)

type farmerOutcome struct {
	kind      outcomeKind
	farmerID  int64
	breakdown Breakdown
	payoutID  int64
	reason    string
}

func (s *Service) run(ctx context.Context, periodStr string, rate float64, mode RunMode) (*Report, error) {
	// Batch-level validation happens before any data access.
	period, err := shared.ParsePeriod(periodStr)
	if err != nil {
		return nil, err
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, shared.ErrInvalidRate
	}

	if mode == ModeCommit && s.locker != nil {
		key := shared.SettlementLockKey(period)
		ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
				s.logger.Warn("release settlement lock", slog.Any("error", err))
			}
		}()
	}

	from, to := period.Range(s.loc)
	farmerIDs, err := s.ledger.FarmersWithDeliveries(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Period:    period,
		Rate:      rate,
		Mode:      mode,
		StartedAt: s.now(),
	}

	outcomes := make([]farmerOutcome, len(farmerIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, farmerID := range farmerIDs {
		g.Go(func() error {
			outcomes[i] = s.settleFarmer(gctx, report.RunID, period, rate, from, to, farmerID, mode)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o.kind {
		case outcomePreviewed:
			report.Previewed = append(report.Previewed, o.breakdown)
		case outcomeCommitted:
			report.Committed = append(report.Committed, FarmerResult{Breakdown: o.breakdown, PayoutID: o.payoutID})
		case outcomeSkipped:
			report.Skipped = append(report.Skipped, o.farmerID)
		case outcomeFailed:
			report.Failed = append(report.Failed, FailedFarmer{FarmerID: o.farmerID, Reason: o.reason})
		}
	}
	report.Duration = s.now().Sub(report.StartedAt)

	if s.metrics != nil {
		s.metrics.BatchDuration(string(mode), report.Duration.Seconds())
	}

	if mode == ModeCommit {
		rec := RunRecord{
			RunID:      report.RunID,
			Period:     period,
			Mode:       mode,
			Rate:       rate,
			Committed:  len(report.Committed),
			Skipped:    len(report.Skipped),
			Failed:     len(report.Failed),
			StartedAt:  report.StartedAt,
			FinishedAt: report.StartedAt.Add(report.Duration),
		}
		if err := s.payouts.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Warn("record settlement run", slog.Any("error", err), slog.String("run_id", report.RunID))
		}
		s.logger.Info("settlement run finished",
			slog.String("run_id", report.RunID),
			slog.String("period", period.String()),
			slog.Int("committed", len(report.Committed)),
			slog.Int("skipped", len(report.Skipped)),
			slog.Int("failed", len(report.Failed)),
		)
	}

	return report, nil
}

func (s *Service) settleFarmer(ctx context.Context, runID string, period shared.Period, rate float64, from, to time.Time, farmerID int64, mode RunMode) farmerOutcome {
	// Cancellation between farmers: already-settled farmers stay settled,
	// remaining ones are reported so the operator can re-run the batch.
	if err := ctx.Err(); err != nil {
		return farmerOutcome{kind: outcomeFailed, farmerID: farmerID, reason: "run cancelled before processing"}
	}

	if mode == ModeCommit {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.commitTimeout)
		defer cancel()

		// Skip settled farmers before loading their ledger. A failed or
		// stale existence check still lands on the unique payout index
		// at commit time, so this read never has to be perfect.
		if settled, err := s.payouts.HasPayout(ctx, farmerID, period); err == nil && settled {
			if s.metrics != nil {
				s.metrics.FarmerOutcome("skipped")
			}
			return farmerOutcome{kind: outcomeSkipped, farmerID: farmerID}
		}
	}

	if _, err := s.farmers.Get(ctx, farmerID); err != nil {
		if errors.Is(err, directory.ErrFarmerNotFound) {
			return s.failed(farmerID, "farmer not found in member directory")
		}
		return s.failed(farmerID, err.Error())
	}

	deliveries, err := s.ledger.ListDeliveries(ctx, farmerID, from, to, 0)
	if err != nil {
		return s.failed(farmerID, err.Error())
	}
	accounts, err := s.ledger.AccountsByFarmer(ctx, farmerID)
	if err != nil {
		return s.failed(farmerID, err.Error())
	}
	loans, err := s.ledger.DisbursedLoansByFarmer(ctx, farmerID)
	if err != nil {
		return s.failed(farmerID, err.Error())
	}

	breakdown := Compute(ComputeInput{
		FarmerID:     farmerID,
		Period:       period,
		RatePerLiter: rate,
		Deliveries:   deliveries,
		Accounts:     accounts,
		Loans:        loans,
	})

	if mode == ModePreview {
		if s.metrics != nil {
			s.metrics.FarmerOutcome("previewed")
		}
		return farmerOutcome{kind: outcomePreviewed, farmerID: farmerID, breakdown: breakdown}
	}

	payout, err := s.payouts.CommitPayout(ctx, breakdown)
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			if s.metrics != nil {
				s.metrics.FarmerOutcome("skipped")
			}
			return farmerOutcome{kind: outcomeSkipped, farmerID: farmerID}
		}
		s.logger.Error("commit payout",
			slog.Any("error", err),
			slog.Int64("farmer_id", farmerID),
			slog.String("period", period.String()),
		)
		return s.failed(farmerID, err.Error())
	}

	if s.notifier != nil {
		evt := PayoutEvent{
			RunID:          runID,
			FarmerID:       farmerID,
			PayoutID:       payout.ID,
			Period:         period,
			TotalQuantity:  breakdown.TotalQuantity,
			GrossAmount:    breakdown.Gross,
			LoanDeductions: breakdown.TotalLoanDeductions,
			Contributions:  breakdown.TotalContributions,
			NetAmount:      breakdown.NetAmount,
		}
		if err := s.notifier.PayoutCommitted(context.WithoutCancel(ctx), evt); err != nil {
			// Notification dispatch must never roll back a settlement.
			s.logger.Warn("dispatch payout notification",
				slog.Any("error", err),
				slog.Int64("farmer_id", farmerID),
			)
		}
	}

	if s.metrics != nil {
		s.metrics.FarmerOutcome("committed")
	}
	return farmerOutcome{kind: outcomeCommitted, farmerID: farmerID, breakdown: breakdown, payoutID: payout.ID}
}

func (s *Service) failed(farmerID int64, reason string) farmerOutcome {
	if s.metrics != nil {
		s.metrics.FarmerOutcome("failed")
	}
	return farmerOutcome{kind: outcomeFailed, farmerID: farmerID, reason: reason}
}
