// Package aggregate rolls matched spend into monthly per-card totals and raises
// limit breach alerts.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/model"
)

// BreachAlert is raised when a card's monthly spend reaches its limit
type BreachAlert struct {
	UserID          string          `json:"user_id"`
	InstrumentID    string          `json:"instrument_id"`
	InstrumentLabel string          `json:"instrument_label"`
	Month           string          `json:"month"`
	CurrentSpend    decimal.Decimal `json:"current_spend"`
	Limit           decimal.Decimal `json:"limit"`
	Overage         decimal.Decimal `json:"overage"`
}

// Notifier delivers breach alerts to the user
type Notifier interface {
	NotifyLimitBreach(ctx context.Context, alert BreachAlert) error
}

// Store is the aggregate persistence, usually a transaction-scoped repository
type Store interface {
	IncrementAggregate(ctx context.Context, instrumentID, month string, amount decimal.Decimal, at time.Time) (*model.MonthlyAggregate, error)
}

type Aggregator struct {
	notifier Notifier
}

func New(notifier Notifier) *Aggregator {
	return &Aggregator{notifier: notifier}
}

// Apply adds amount to the instrument's total for the month of date and returns an alert
// when the instrument has a limit and the new total meets or exceeds it.
func (a *Aggregator) Apply(ctx context.Context, store Store, inst *model.CreditInstrument, amount decimal.Decimal, date time.Time) (*BreachAlert, error) {
	month := model.MonthKey(date)

	agg, err := store.IncrementAggregate(ctx, inst.ID, month, amount, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update monthly aggregate: %w", err)
	}

	if inst.MonthlyLimit == nil || !inst.MonthlyLimit.IsPositive() {
		return nil, nil
	}
	if agg.TotalSpent.LessThan(*inst.MonthlyLimit) {
		return nil, nil
	}

	return &BreachAlert{
		UserID:          inst.UserID,
		InstrumentID:    inst.ID,
		InstrumentLabel: inst.Label(),
		Month:           month,
		CurrentSpend:    agg.TotalSpent,
		Limit:           *inst.MonthlyLimit,
		Overage:         agg.TotalSpent.Sub(*inst.MonthlyLimit),
	}, nil
}

// Dispatch hands the alert to the notifier. Delivery failures are logged, not returned.
func (a *Aggregator) Dispatch(ctx context.Context, alert *BreachAlert) {
	if alert == nil || a.notifier == nil {
		return
	}
	if err := a.notifier.NotifyLimitBreach(ctx, *alert); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id":       alert.UserID,
			"instrument_id": alert.InstrumentID,
			"month":         alert.Month,
		}).Errorf("Failed to dispatch limit breach alert: %v", err)
	}
}

// LogNotifier writes alerts to the application log
type LogNotifier struct{}

func (LogNotifier) NotifyLimitBreach(_ context.Context, alert BreachAlert) error {
	logrus.WithFields(logrus.Fields{
		"user_id":       alert.UserID,
		"instrument_id": alert.InstrumentID,
		"month":         alert.Month,
		"current_spend": alert.CurrentSpend.StringFixed(2),
		"limit":         alert.Limit.StringFixed(2),
		"overage":       alert.Overage.StringFixed(2),
	}).Warnf("Monthly limit reached on %s", alert.InstrumentLabel)
	return nil
}
