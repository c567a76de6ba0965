package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/harvest-hub/harvesthub/internal/jobs"
	"github.com/harvest-hub/harvesthub/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePayoutNotify is the task type for farmer payout notifications.
	TaskTypePayoutNotify = "payout:notify"
)

// PayoutNotifyPayload carries the settled amounts for one farmer's
// notification.
type PayoutNotifyPayload struct {
	RunID          string  `json:"runId"`
	FarmerID       int64   `json:"farmerId"`
	PayoutID       int64   `json:"payoutId"`
	Period         string  `json:"period"`
	TotalQuantity  float64 `json:"totalQuantity"`
	GrossAmount    float64 `json:"grossAmount"`
	LoanDeductions float64 `json:"loanDeductions"`
	Contributions  float64 `json:"contributions"`
	NetAmount      float64 `json:"netAmount"`
}

// NewPayoutNotifyTask constructs an Asynq task.
func NewPayoutNotifyTask(payload PayoutNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePayoutNotify, data), nil
}

// NewPayoutNotifyHandler processes TaskTypePayoutNotify tasks by recording
// the notification and texting the farmer.
func NewPayoutNotifyHandler(logger *slog.Logger, svc *notify.Service, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PayoutNotifyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("payout notify payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		tracker := metrics.Track("payout_notify")
		return tracker.End(svc.DispatchPayout(ctx, notify.PayoutInput{
			FarmerID:       payload.FarmerID,
			PayoutID:       payload.PayoutID,
			Period:         payload.Period,
			TotalQuantity:  payload.TotalQuantity,
			GrossAmount:    payload.GrossAmount,
			LoanDeductions: payload.LoanDeductions,
			Contributions:  payload.Contributions,
			NetAmount:      payload.NetAmount,
		}))
	}
}
