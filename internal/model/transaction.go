package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType is how a Transaction was paid
type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentDebit  PaymentType = "debit"
	PaymentCredit PaymentType = "credit"
)

// Transaction represents a finance-module expense row
type Transaction struct {
	ID                 string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID             string          `json:"user_id" gorm:"type:varchar(64);not null;index"`
	Amount             decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	Category           string          `json:"category" gorm:"type:varchar(64)"`
	Description        string          `json:"description" gorm:"type:varchar(512)"`
	Date               time.Time       `json:"date" gorm:"index"`
	PaymentType        PaymentType     `json:"payment_type" gorm:"type:varchar(16);not null"`
	CreditInstrumentID *string         `json:"credit_instrument_id,omitempty" gorm:"type:varchar(36);index"`
	Source             string          `json:"source" gorm:"type:varchar(32);index"`
	CreatedAt          time.Time       `json:"created_at"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "transactions"
}
