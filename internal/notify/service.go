package notify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/harvest-hub/harvesthub/internal/directory"
	"github.com/harvest-hub/harvesthub/internal/shared"
)

// NotificationStore persists notifications.
type NotificationStore interface {
	Create(ctx context.Context, n Notification) (*Notification, error)
	ListByFarmer(ctx context.Context, farmerID int64, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id int64) error
}

// FarmerDirectory resolves the recipient's phone number.
type FarmerDirectory interface {
	Get(ctx context.Context, id int64) (*directory.Farmer, error)
}

// Service records notifications and fans them out over SMS.
type Service struct {
	logger  *slog.Logger
	store   NotificationStore
	farmers FarmerDirectory
	sms     SMSGateway
	printer *message.Printer
}

// NewService wires the notification service.
func NewService(logger *slog.Logger, store NotificationStore, farmers FarmerDirectory, sms SMSGateway) *Service {
	return &Service{
		logger:  logger,
		store:   store,
		farmers: farmers,
		sms:     sms,
		printer: message.NewPrinter(language.English),
	}
}

// DispatchPayout records the payout notification and texts the farmer. The
// stored notification is the source of truth; an SMS failure is logged and
// swallowed so a flaky provider cannot fail the settlement pipeline's retry
// loop into duplicating messages.
func (s *Service) DispatchPayout(ctx context.Context, in PayoutInput) error {
	deductions := shared.Round2(in.LoanDeductions + in.Contributions)

	n := Notification{
		FarmerID: in.FarmerID,
		Type:     TypePayoutProcessed,
		Title:    "Payout Processed",
		Message: fmt.Sprintf(
			"Your payout for %s has been processed. Milk: %s, Deductions: %s, Net: %s",
			in.Period, s.kes(in.GrossAmount), s.kes(deductions), s.kes(in.NetAmount),
		),
		Metadata: map[string]any{
			"payoutId":           in.PayoutID,
			"period":             in.Period,
			"totalQty":           in.TotalQuantity,
			"totalAmount":        in.GrossAmount,
			"totalLoanDeduction": in.LoanDeductions,
			"totalContributions": in.Contributions,
			"netAmount":          in.NetAmount,
		},
	}
	if _, err := s.store.Create(ctx, n); err != nil {
		return err
	}

	farmer, err := s.farmers.Get(ctx, in.FarmerID)
	if err != nil {
		s.logger.Warn("resolve payout recipient", slog.Any("error", err), slog.Int64("farmer_id", in.FarmerID))
		return nil
	}
	if farmer.Phone == "" {
		s.logger.Info("payout sms skipped, no phone on file",
			slog.Int64("farmer_id", in.FarmerID),
			slog.String("farmer", farmer.DisplayName()),
		)
		return nil
	}

	text := fmt.Sprintf(
		"Payout for %s processed! Earned: %s, Deductions: %s, Net: %s. Check your account.",
		in.Period, s.kes(in.GrossAmount), s.kes(deductions), s.kes(in.NetAmount),
	)
	if err := s.sms.Send(ctx, farmer.Phone, text); err != nil {
		s.logger.Warn("send payout sms",
			slog.Any("error", err),
			slog.Int64("farmer_id", in.FarmerID),
			slog.String("phone", farmer.Phone),
		)
	}
	return nil
}

// List returns a farmer's notifications.
func (s *Service) List(ctx context.Context, farmerID int64, unreadOnly bool, limit int) ([]Notification, error) {
	return s.store.ListByFarmer(ctx, farmerID, unreadOnly, limit)
}

// MarkRead flags a notification as read.
func (s *Service) MarkRead(ctx context.Context, id int64) error {
	return s.store.MarkRead(ctx, id)
}

func (s *Service) kes(v float64) string {
	return s.printer.Sprintf("KES %.2f", v)
}
