package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreditInstrument represents a user's registered credit card
type CreditInstrument struct {
	ID           string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string           `json:"user_id" gorm:"type:varchar(64);not null;index"`
	BankName     string           `json:"bank_name" gorm:"type:varchar(100);not null"`
	Last4Digits  string           `json:"last4_digits" gorm:"type:varchar(4)"`
	Nickname     string           `json:"nickname" gorm:"type:varchar(100)"`
	MonthlyLimit *decimal.Decimal `json:"monthly_limit,omitempty" gorm:"type:decimal(14,2)"`
	CreatedAt    time.Time        `json:"created_at"`
}

// TableName specifies the table name for CreditInstrument
func (CreditInstrument) TableName() string {
	return "credit_instruments"
}

// Label is the user-facing name of the instrument
func (c CreditInstrument) Label() string {
	if c.Nickname != "" {
		return c.Nickname
	}
	if c.Last4Digits == "" {
		return c.BankName
	}
	return fmt.Sprintf("%s XX%s", c.BankName, c.Last4Digits)
}
