package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harvest-hub/harvesthub/internal/directory"
	"github.com/harvest-hub/harvesthub/internal/ledger"
	"github.com/harvest-hub/harvesthub/internal/shared"
)

type memLedger struct {
	mu         sync.Mutex
	deliveries map[int64][]ledger.Delivery
	accounts   map[int64][]ledger.Account
	loans      map[int64][]ledger.Loan
}

func newMemLedger() *memLedger {
	return &memLedger{
		deliveries: map[int64][]ledger.Delivery{},
		accounts:   map[int64][]ledger.Account{},
		loans:      map[int64][]ledger.Loan{},
	}
}

func (m *memLedger) FarmersWithDeliveries(_ context.Context, from, to time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, ds := range m.deliveries {
		for _, d := range ds {
			if !d.DeliveredAt.Before(from) && d.DeliveredAt.Before(to) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memLedger) ListDeliveries(_ context.Context, farmerID int64, from, to time.Time, _ int) ([]ledger.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Delivery
	for _, d := range m.deliveries[farmerID] {
		if !d.DeliveredAt.Before(from) && d.DeliveredAt.Before(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memLedger) AccountsByFarmer(_ context.Context, farmerID int64) ([]ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[farmerID], nil
}

func (m *memLedger) DisbursedLoansByFarmer(_ context.Context, farmerID int64) ([]ledger.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Loan
	for _, l := range m.loans[farmerID] {
		if l.Status == ledger.LoanDisbursed {
			out = append(out, l)
		}
	}
	return out, nil
}

type memPayouts struct {
	mu          sync.Mutex
	nextID      int64
	payouts     map[string]*Payout
	runs        []RunRecord
	failFor     map[int64]error
	commitCalls int
}

func newMemPayouts() *memPayouts {
	return &memPayouts{payouts: map[string]*Payout{}, failFor: map[int64]error{}}
}

func payoutKey(farmerID int64, period shared.Period) string {
	return fmt.Sprintf("%d/%s", farmerID, period)
}

func (m *memPayouts) HasPayout(_ context.Context, farmerID int64, period shared.Period) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.payouts[payoutKey(farmerID, period)]
	return ok, nil
}

func (m *memPayouts) CommitPayout(_ context.Context, b Breakdown) (*Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCalls++
	if err, ok := m.failFor[b.FarmerID]; ok {
		return nil, err
	}
	key := payoutKey(b.FarmerID, b.Period)
	if _, ok := m.payouts[key]; ok {
		return nil, ErrAlreadySettled
	}
	m.nextID++
	p := &Payout{
		ID:             m.nextID,
		FarmerID:       b.FarmerID,
		Period:         b.Period,
		TotalQuantity:  b.TotalQuantity,
		GrossAmount:    b.Gross,
		LoanDeductions: b.TotalLoanDeductions,
		Contributions:  b.TotalContributions,
		NetAmount:      b.NetAmount,
		Lines:          PayoutLines{Accounts: b.AccountLines, Loans: b.LoanLines},
		CreatedAt:      time.Now(),
	}
	m.payouts[key] = p
	return p, nil
}

func (m *memPayouts) ListPayouts(_ context.Context, q PayoutQuery) ([]Payout, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payout
	for _, p := range m.payouts {
		if !q.Period.IsZero() && p.Period != q.Period {
			continue
		}
		if q.FarmerID > 0 && p.FarmerID != q.FarmerID {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memPayouts) RecordRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return nil
}

func (m *memPayouts) ListRuns(_ context.Context, period shared.Period, _ int) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RunRecord
	for _, rec := range m.runs {
		if rec.Period == period {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memDirectory struct {
	mu      sync.Mutex
	farmers map[int64]*directory.Farmer
}

func newMemDirectory() *memDirectory {
	return &memDirectory{farmers: map[int64]*directory.Farmer{}}
}

func (m *memDirectory) Get(_ context.Context, id int64) (*directory.Farmer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.farmers[id]
	if !ok {
		return nil, directory.ErrFarmerNotFound
	}
	return f, nil
}

type memNotifier struct {
	mu     sync.Mutex
	events []PayoutEvent
	err    error
}

func (m *memNotifier) PayoutCommitted(_ context.Context, evt PayoutEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, evt)
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]bool{}} }

func (m *memLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *memLocker) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
	return nil
}

type fixture struct {
	ledger   *memLedger
	payouts  *memPayouts
	farmers  *memDirectory
	notifier *memNotifier
	locker   *memLocker
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger:   newMemLedger(),
		payouts:  newMemPayouts(),
		farmers:  newMemDirectory(),
		notifier: &memNotifier{},
		locker:   newMemLocker(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewService(logger, f.ledger, f.payouts, f.farmers, f.notifier, f.locker, nil, ServiceConfig{
		Workers:       4,
		CommitTimeout: 5 * time.Second,
		LockTTL:       time.Minute,
	})
	return f
}

func (f *fixture) addFarmer(id int64, memberNo string) {
	f.farmers.farmers[id] = &directory.Farmer{
		ID:        id,
		MemberNo:  memberNo,
		FirstName: "Test",
		Surname:   "Farmer",
		Status:    directory.FarmerActive,
	}
}

func (f *fixture) addDelivery(farmerID int64, qty float64, at time.Time) {
	f.ledger.deliveries[farmerID] = append(f.ledger.deliveries[farmerID], ledger.Delivery{
		FarmerID: farmerID, Quantity: qty, DeliveredAt: at,
	})
}

var march = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func TestPreviewDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	f.addFarmer(1, "F001")
	f.addDelivery(1, 100, march)

	report, err := f.service.Preview(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Len(t, report.Previewed, 1)
	require.InDelta(t, 4500, report.Previewed[0].Gross, 1e-9)
	require.Empty(t, report.Committed)
	require.Empty(t, f.payouts.payouts)
	require.Empty(t, f.payouts.runs)
	require.Empty(t, f.notifier.events)
}

func TestCommitSettlesAllFarmers(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 5; id++ {
		f.addFarmer(id, "F00"+string(rune('0'+id)))
		f.addDelivery(id, float64(id)*10, march)
	}

	report, err := f.service.Commit(context.Background(), "2024-03", 50)
	require.NoError(t, err)
	require.Len(t, report.Committed, 5)
	require.Empty(t, report.Skipped)
	require.Empty(t, report.Failed)
	require.NotEmpty(t, report.RunID)

	// Farmer order in the report is deterministic regardless of worker
	// scheduling.
	for i, c := range report.Committed {
		require.Equal(t, int64(i+1), c.FarmerID)
		require.InDelta(t, float64(i+1)*10*50, c.NetAmount, 1e-9)
	}

	require.Len(t, f.notifier.events, 5)
	require.Len(t, f.payouts.runs, 1)
	require.Equal(t, 5, f.payouts.runs[0].Committed)
}

func TestCommitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addFarmer(1, "F001")
	f.addFarmer(2, "F002")
	f.addDelivery(1, 100, march)
	f.addDelivery(2, 50, march)

	first, err := f.service.Commit(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Len(t, first.Committed, 2)

	second, err := f.service.Commit(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Empty(t, second.Committed)
	require.ElementsMatch(t, []int64{1, 2}, second.Skipped)
	require.Len(t, f.payouts.payouts, 2)
	require.Len(t, f.notifier.events, 2)

	// The rerun skips via the existence check, before the commit path.
	require.Equal(t, 2, f.payouts.commitCalls)
}

func TestCommitPartialRerunSkipsSettled(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 3; id++ {
		f.addFarmer(id, "F")
		f.addDelivery(id, 100, march)
	}
	f.payouts.failFor[2] = errors.New("connection reset")

	first, err := f.service.Commit(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Len(t, first.Committed, 2)
	require.Len(t, first.Failed, 1)
	require.Equal(t, int64(2), first.Failed[0].FarmerID)

	delete(f.payouts.failFor, 2)

	second, err := f.service.Commit(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Len(t, second.Committed, 1)
	require.Equal(t, int64(2), second.Committed[0].FarmerID)
	require.ElementsMatch(t, []int64{1, 3}, second.Skipped)
}

func TestCommitUnknownFarmerIsolated(t *testing.T) {
	f := newFixture(t)
	f.addFarmer(1, "F001")
	f.addDelivery(1, 100, march)
	// Farmer 2 has deliveries but no directory record.
	f.addDelivery(2, 80, march)

	report, err := f.service.Commit(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Len(t, report.Committed, 1)
	require.Len(t, report.Failed, 1)
	require.Equal(t, int64(2), report.Failed[0].FarmerID)
	require.Contains(t, report.Failed[0].Reason, "not found")
}

func TestCommitRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	f.addFarmer(1, "F001")
	f.addDelivery(1, 100, march)

	period := mustPeriod(t, "2024-03")
	held, err := f.locker.Acquire(context.Background(), shared.SettlementLockKey(period), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	_, err = f.service.Commit(context.Background(), "2024-03", 45)
	require.ErrorIs(t, err, ErrRunInProgress)

	// Preview ignores the lock.
	report, err := f.service.Preview(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Len(t, report.Previewed, 1)
}

func TestCommitReleasesLock(t *testing.T) {
	f := newFixture(t)
	f.addFarmer(1, "F001")
	f.addDelivery(1, 100, march)

	_, err := f.service.Commit(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Empty(t, f.locker.held)
}

func TestPreviewCommitParity(t *testing.T) {
	f := newFixture(t)
	f.addFarmer(1, "F001")
	f.addDelivery(1, 33.33, march)
	f.addDelivery(1, 66.67, march)
	f.ledger.accounts[1] = []ledger.Account{{ID: 1, FarmerID: 1, MonthlyContribution: 150}}
	f.ledger.loans[1] = []ledger.Loan{{ID: 1, FarmerID: 1, Principal: 2400, TermMonths: 12, Status: ledger.LoanDisbursed}}

	preview, err := f.service.Preview(context.Background(), "2024-03", 42.5)
	require.NoError(t, err)
	commit, err := f.service.Commit(context.Background(), "2024-03", 42.5)
	require.NoError(t, err)

	require.Len(t, preview.Previewed, 1)
	require.Len(t, commit.Committed, 1)
	require.Equal(t, preview.Previewed[0], commit.Committed[0].Breakdown)
}

func TestRunValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Commit(context.Background(), "2024-3", 45)
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)

	_, err = f.service.Commit(context.Background(), "March 2024", 45)
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)

	_, err = f.service.Commit(context.Background(), "2024-03", 0)
	require.ErrorIs(t, err, shared.ErrInvalidRate)

	_, err = f.service.Commit(context.Background(), "2024-03", -5)
	require.ErrorIs(t, err, shared.ErrInvalidRate)

	// Nothing was locked or written by rejected runs.
	require.Empty(t, f.locker.held)
	require.Empty(t, f.payouts.payouts)
}

func TestCommitOutsidePeriodExcluded(t *testing.T) {
	f := newFixture(t)
	f.addFarmer(1, "F001")
	f.addDelivery(1, 100, march)
	f.addDelivery(1, 999, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	f.addDelivery(1, 999, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC))

	report, err := f.service.Commit(context.Background(), "2024-03", 10)
	require.NoError(t, err)
	require.Len(t, report.Committed, 1)
	require.InDelta(t, 100, report.Committed[0].TotalQuantity, 1e-9)
}

func TestCommitNotifierFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.addFarmer(1, "F001")
	f.addDelivery(1, 100, march)
	f.notifier.err = errors.New("gateway down")

	report, err := f.service.Commit(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Len(t, report.Committed, 1)
	require.Empty(t, report.Failed)
}

func TestPayoutEventCarriesBreakdown(t *testing.T) {
	f := newFixture(t)
	f.addFarmer(1, "F001")
	f.addDelivery(1, 200, march)
	f.ledger.accounts[1] = []ledger.Account{{ID: 1, FarmerID: 1, MonthlyContribution: 100}}

	report, err := f.service.Commit(context.Background(), "2024-03", 45)
	require.NoError(t, err)
	require.Len(t, report.Committed, 1)

	require.Len(t, f.notifier.events, 1)
	evt := f.notifier.events[0]
	require.Equal(t, report.RunID, evt.RunID)
	require.Equal(t, int64(1), evt.FarmerID)
	require.Equal(t, report.Committed[0].PayoutID, evt.PayoutID)
	require.InDelta(t, 9000, evt.GrossAmount, 1e-9)
	require.InDelta(t, 100, evt.Contributions, 1e-9)
	require.InDelta(t, 8900, evt.NetAmount, 1e-9)
}
