package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyAggregate holds matched spend for one instrument in one calendar month
type MonthlyAggregate struct {
	ID                 uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	CreditInstrumentID string          `json:"credit_instrument_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_aggregate_instrument_month"`
	Month              string          `json:"month" gorm:"type:char(7);not null;uniqueIndex:idx_aggregate_instrument_month"`
	TotalSpent         decimal.Decimal `json:"total_spent" gorm:"type:decimal(14,2);not null"`
	TransactionCount   int             `json:"transaction_count" gorm:"not null"`
	LastUpdated        time.Time       `json:"last_updated"`
}

// TableName specifies the table name for MonthlyAggregate
func (MonthlyAggregate) TableName() string {
	return "monthly_aggregates"
}

// MonthKey formats t as the aggregate month key
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
