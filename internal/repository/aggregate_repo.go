package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mail-txn-ingest-go/internal/model"
)

// IncrementAggregate adds amount and one transaction to the (instrument, month) row, creating it
// if needed, and returns the updated row.
func (r *Repository) IncrementAggregate(ctx context.Context, instrumentID, month string, amount decimal.Decimal, at time.Time) (*model.MonthlyAggregate, error) {
	row := model.MonthlyAggregate{
		CreditInstrumentID: instrumentID,
		Month:              month,
		TotalSpent:         amount,
		TransactionCount:   1,
		LastUpdated:        at,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "credit_instrument_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_spent":       gorm.Expr("monthly_aggregates.total_spent + ?", amount),
			"transaction_count": gorm.Expr("monthly_aggregates.transaction_count + 1"),
			"last_updated":      at,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert monthly aggregate: %w", err)
	}

	return r.GetAggregate(ctx, instrumentID, month)
}

func (r *Repository) GetAggregate(ctx context.Context, instrumentID, month string) (*model.MonthlyAggregate, error) {
	var agg model.MonthlyAggregate
	result := r.db.WithContext(ctx).Where("credit_instrument_id = ? AND month = ?", instrumentID, month).First(&agg)
	if result.Error != nil {
		if notFound(result.Error) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get monthly aggregate: %w", result.Error)
	}
	return &agg, nil
}
