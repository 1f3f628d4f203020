package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawEmail is a provider message normalized for the pipeline. It is never persisted as-is.
type RawEmail struct {
	MessageID    string
	Subject      string
	From         string
	Body         string
	ReceivedDate time.Time
	Snippet      string
}

// Direction is whether money left or entered the account
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// ParsedTransaction is the structured result of parsing one email
type ParsedTransaction struct {
	Amount          decimal.Decimal
	Direction       Direction
	MerchantName    string
	MaskedCardLast4 string
	TransactionDate time.Time
	TransactionTime string
	BankName        string
	SourceSubject   string
	SourceSender    string
	SourceDate      time.Time
	IsValid         bool
}

// PurgeResult counts rows removed by a disconnect teardown
type PurgeResult struct {
	EmailRecords        int64 `json:"email_records"`
	ContentFingerprints int64 `json:"content_fingerprints"`
	Transactions        int64 `json:"transactions"`
}
