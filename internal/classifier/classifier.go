// Package classifier triages emails from metadata alone (sender, subject, snippet).
package classifier

import (
	"regexp"

	"mail-txn-ingest-go/internal/banks"
	"mail-txn-ingest-go/internal/model"
)

// Category is the triage bucket for an email
type Category string

const (
	CategoryTransaction Category = "TRANSACTION"
	CategoryOTP         Category = "OTP"
	CategoryPromotion   Category = "PROMOTION"
	CategoryStatement   Category = "STATEMENT"
	CategoryUnknown     Category = "UNKNOWN"
)

// Classification is the triage result
type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	BankHint   string   `json:"bank_hint,omitempty"`
}

// ShouldProcess reports whether the email is worth parsing
func (c Classification) ShouldProcess() bool {
	return c.Category == CategoryTransaction || c.Category == CategoryStatement
}

var (
	otpPattern       = regexp.MustCompile(`(?i)\b(otp|one[\s-]?time[\s-]?password|verification code|security code)\b`)
	promoPattern     = regexp.MustCompile(`(?i)\b(offers?|pre[\s-]?approved|exclusive|limited[\s-]period|apply now|congratulations|upgrade your|discount|vouchers?|newsletter|webinar|win)\b`)
	amountPattern    = regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*[0-9][0-9,]*(?:\.\d{1,2})?`)
	verbPattern      = regexp.MustCompile(`(?i)\b(debited|spent|used|charged|paid|purchase|transaction|txn|withdrawn)\b`)
	cardPattern      = regexp.MustCompile(`(?i)(?:x{2,}|\*{2,}|ending(?:\s+(?:with|in))?\s*|card\s+no\.?\s*)\d{4}\b`)
	statementPattern = regexp.MustCompile(`(?i)\b(statement|bill generated|payment due|minimum amount due|total amount due)\b`)
)

// Classifier decides, in a fixed order, what kind of email it is looking at
type Classifier struct{}

func New() *Classifier {
	return &Classifier{}
}

// Classify applies the first matching rule: OTP, promotion, bank sender with transaction
// signals, statement, bank sender alone, unknown.
func (c *Classifier) Classify(email model.RawEmail) Classification {
	text := email.Subject + " " + email.Snippet

	var hint string
	bank, fromBank := banks.FromSender(email.From)
	if fromBank {
		hint = bank.Name
	}

	if otpPattern.MatchString(text) {
		return Classification{Category: CategoryOTP, Confidence: 0.95, BankHint: hint}
	}

	if promoPattern.MatchString(text) {
		return Classification{Category: CategoryPromotion, Confidence: 0.85, BankHint: hint}
	}

	hasAmount := amountPattern.MatchString(text)
	hasVerb := verbPattern.MatchString(text)
	hasCard := cardPattern.MatchString(text)

	if fromBank && (hasAmount || hasVerb || hasCard) {
		confidence := 0.70
		switch {
		case hasAmount && hasVerb && hasCard:
			confidence = 0.95
		case hasAmount && hasVerb:
			confidence = 0.85
		}
		return Classification{Category: CategoryTransaction, Confidence: confidence, BankHint: hint}
	}

	if statementPattern.MatchString(text) {
		return Classification{Category: CategoryStatement, Confidence: 0.90, BankHint: hint}
	}

	if fromBank {
		return Classification{Category: CategoryTransaction, Confidence: 0.50, BankHint: hint}
	}

	return Classification{Category: CategoryUnknown, Confidence: 0.0}
}
