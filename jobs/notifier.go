package jobs

import (
	"context"

	"github.com/harvest-hub/harvesthub/internal/settlement"
)

// Notifier enqueues payout notification tasks after each commit. It decouples
// the settlement transaction from SMS latency: the worker delivers the
// message out of band.
type Notifier struct {
	client *Client
}

// NewNotifier constructs a Notifier.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// PayoutCommitted enqueues the notification task for one settled farmer.
func (n *Notifier) PayoutCommitted(ctx context.Context, evt settlement.PayoutEvent) error {
	_, err := n.client.EnqueuePayoutNotify(ctx, PayoutNotifyPayload{
		RunID:          evt.RunID,
		FarmerID:       evt.FarmerID,
		PayoutID:       evt.PayoutID,
		Period:         evt.Period.String(),
		TotalQuantity:  evt.TotalQuantity,
		GrossAmount:    evt.GrossAmount,
		LoanDeductions: evt.LoanDeductions,
		Contributions:  evt.Contributions,
		NetAmount:      evt.NetAmount,
	})
	return err
}
