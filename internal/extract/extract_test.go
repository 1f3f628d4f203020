package extract

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-txn-ingest-go/internal/classifier"
	"mail-txn-ingest-go/internal/model"
)

func TestExtract(t *testing.T) {
	q := Extract("Your HDFC Bank Credit Card ending 5678 is used for Rs.3,250.00 at ZOMATO on 31-01-26", "Alert")
	require.NotNil(t, q.Amount)
	assert.True(t, q.Amount.Equal(decimal.NewFromInt(3250)))
	assert.Equal(t, "5678", q.CardLast4)
	assert.Equal(t, "Zomato", q.Merchant)
	assert.InDelta(t, 1.0, q.Confidence, 0.0001)

	amountOnly := Extract("Transaction of INR 99 done", "")
	require.NotNil(t, amountOnly.Amount)
	assert.Empty(t, amountOnly.CardLast4)
	assert.InDelta(t, 0.4, amountOnly.Confidence, 0.0001)

	fromSubject := Extract("See details", "Rs 120.50 spent on card XX4321")
	require.NotNil(t, fromSubject.Amount)
	assert.Equal(t, "4321", fromSubject.CardLast4)
	assert.InDelta(t, 0.7, fromSubject.Confidence, 0.0001)

	nothing := Extract("hello", "world")
	assert.Nil(t, nothing.Amount)
	assert.Zero(t, nothing.Confidence)
}

func TestNeedsFullBodyParse(t *testing.T) {
	amount := decimal.NewFromInt(100)
	confident := classifier.Classification{Category: classifier.CategoryTransaction, Confidence: 0.85}
	weak := classifier.Classification{Category: classifier.CategoryTransaction, Confidence: 0.50}

	assert.False(t, NeedsFullBodyParse(confident, QuickExtract{Amount: &amount, Confidence: 0.7}))
	assert.True(t, NeedsFullBodyParse(weak, QuickExtract{Amount: &amount, Confidence: 1.0}))
	assert.True(t, NeedsFullBodyParse(confident, QuickExtract{Confidence: 0.6}))
	assert.True(t, NeedsFullBodyParse(confident, QuickExtract{Amount: &amount, Confidence: 0.4}))
}

func TestToParsedTransaction(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Kolkata")
	amount := decimal.NewFromInt(3250)
	q := QuickExtract{Amount: &amount, CardLast4: "5678", Merchant: "Zomato", Confidence: 1.0}

	email := model.RawEmail{
		MessageID:    "m1",
		From:         "alerts@hdfcbank.com",
		Subject:      "Alert",
		ReceivedDate: time.Date(2026, 1, 31, 14, 15, 0, 0, time.UTC),
	}

	parsed := q.ToParsedTransaction(email, "HDFC", loc)
	require.NotNil(t, parsed)
	assert.Equal(t, model.DirectionDebit, parsed.Direction)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, loc), parsed.TransactionDate)
	assert.Equal(t, "19:45", parsed.TransactionTime)
	assert.Equal(t, "HDFC", parsed.BankName)
	assert.True(t, parsed.IsValid)

	assert.Nil(t, QuickExtract{}.ToParsedTransaction(email, "HDFC", loc))
}
