// Package extract pulls amount, card and merchant out of an email preview without
// reading the body.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mail-txn-ingest-go/internal/classifier"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/parser"
)

var (
	amountPattern   = regexp.MustCompile(`(?i)(?:\brs\.?|\binr|₹)\s*([0-9][0-9,]*(?:\.\d{1,2})?)`)
	cardPattern     = regexp.MustCompile(`(?i)(?:[x*]{2,}\s?|\bending(?:\s+(?:with|in))?\s*|\bcard\s+no\.?\s*)(\d{4})\b`)
	merchantPattern = regexp.MustCompile(`(?i)\b(?:at|to|towards)\s+([A-Za-z][\w&.'@*/ \-]*?)(?:\s+(?:on|at|via|ref|for)\b|[,;]|\.\s|\.$|$)`)
)

// QuickExtract is what the preview text revealed
type QuickExtract struct {
	Amount     *decimal.Decimal
	CardLast4  string
	Merchant   string
	Confidence float64
}

// Extract reads the snippet first, then the subject, for each field
func Extract(snippet, subject string) QuickExtract {
	var q QuickExtract
	texts := []string{snippet, subject}

	for _, text := range texts {
		if m := amountPattern.FindStringSubmatch(text); m != nil {
			amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
			if err == nil && amount.IsPositive() {
				q.Amount = &amount
				break
			}
		}
	}

	for _, text := range texts {
		if m := cardPattern.FindStringSubmatch(text); m != nil {
			q.CardLast4 = m[1]
			break
		}
	}

	for _, text := range texts {
		if m := merchantPattern.FindStringSubmatch(text); m != nil {
			if merchant := parser.NormalizeMerchant(m[1]); merchant != "" {
				q.Merchant = merchant
				break
			}
		}
	}

	if q.Amount != nil {
		q.Confidence += 0.4
	}
	if q.CardLast4 != "" {
		q.Confidence += 0.3
	}
	if q.Merchant != "" {
		q.Confidence += 0.3
	}
	if q.Confidence > 1.0 {
		q.Confidence = 1.0
	}
	return q
}

// NeedsFullBodyParse is false only when both the classifier and the preview are confident
// and an amount is already known
func NeedsFullBodyParse(c classifier.Classification, q QuickExtract) bool {
	return !(c.Confidence >= 0.75 && q.Amount != nil && q.Confidence >= 0.7)
}

// ToParsedTransaction promotes a preview extraction. Direction is always DEBIT and the
// date is the day the email was received in loc.
func (q QuickExtract) ToParsedTransaction(email model.RawEmail, bankName string, loc *time.Location) *model.ParsedTransaction {
	if q.Amount == nil {
		return nil
	}

	local := email.ReceivedDate.In(loc)
	y, m, d := local.Date()

	return &model.ParsedTransaction{
		Amount:          *q.Amount,
		Direction:       model.DirectionDebit,
		MerchantName:    q.Merchant,
		MaskedCardLast4: q.CardLast4,
		TransactionDate: time.Date(y, m, d, 0, 0, 0, 0, loc),
		TransactionTime: local.Format("15:04"),
		BankName:        bankName,
		SourceSubject:   email.Subject,
		SourceSender:    email.From,
		SourceDate:      email.ReceivedDate,
		IsValid:         true,
	}
}
