// Package notify records farmer notifications and delivers them over SMS.
// Delivery is best effort; settlement correctness never depends on it.
package notify

import "time"

// NotificationType classifies a notification.
type NotificationType string

const (
	TypeWelcome         NotificationType = "welcome"
	TypeMilkCollected   NotificationType = "milk_collected"
	TypePayoutProcessed NotificationType = "payout_processed"
	TypeLoanIssued      NotificationType = "loan_issued"
	TypeInfo            NotificationType = "info"
)

// Notification is one farmer-facing message with its read state.
type Notification struct {
	ID        int64            `json:"id"`
	FarmerID  int64            `json:"farmerId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Read      bool             `json:"read"`
	ReadAt    *time.Time       `json:"readAt,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// PayoutInput carries the settled amounts for one farmer's payout message.
type PayoutInput struct {
	FarmerID       int64
	PayoutID       int64
	Period         string
	TotalQuantity  float64
	GrossAmount    float64
	LoanDeductions float64
	Contributions  float64
	NetAmount      float64
}
