package parser

import (
	"regexp"
	"strings"
	"time"

	"mail-txn-ingest-go/internal/banks"
	"mail-txn-ingest-go/internal/model"
)

// bankParser is the shared strategy; each issuer supplies its own sender and phrase patterns
type bankParser struct {
	bank             banks.Bank
	cardPatterns     []*regexp.Regexp
	merchantPatterns []*regexp.Regexp
	loc              *time.Location
}

func newBankParser(name string, loc *time.Location, cardPatterns, merchantPatterns []string) *bankParser {
	bank, ok := banks.Lookup(name)
	if !ok {
		bank = banks.Bank{Name: name}
	}

	p := &bankParser{bank: bank, loc: loc}
	for _, expr := range cardPatterns {
		p.cardPatterns = append(p.cardPatterns, regexp.MustCompile(expr))
	}
	p.cardPatterns = append(p.cardPatterns, genericCardPatterns...)

	for _, expr := range merchantPatterns {
		p.merchantPatterns = append(p.merchantPatterns, regexp.MustCompile(expr))
	}
	p.merchantPatterns = append(p.merchantPatterns, genericMerchantPatterns...)
	return p
}

func (p *bankParser) BankName() string {
	return p.bank.Name
}

// CanParse accepts mail from the issuer's domains, or forwarded mail that names the issuer
// and reads like a transaction
func (p *bankParser) CanParse(email model.RawEmail) bool {
	if p.bank.OwnsDomain(banks.SenderDomain(email.From)) {
		return true
	}

	text := emailText(email)
	lower := strings.ToLower(text)
	for _, marker := range p.bank.Markers {
		if strings.Contains(lower, marker) {
			_, hasAmount := extractAmount(text)
			return hasAmount && verbPattern.MatchString(text)
		}
	}
	return false
}

func (p *bankParser) Parse(email model.RawEmail) *model.ParsedTransaction {
	text := emailText(email)

	if otpBodyPattern.MatchString(text) || promoBodyPattern.MatchString(text) {
		return nil
	}
	if !verbPattern.MatchString(text) {
		return nil
	}

	amount, ok := extractAmount(text)
	if !ok {
		return nil
	}

	return &model.ParsedTransaction{
		Amount:          amount,
		Direction:       detectDirection(text),
		MerchantName:    NormalizeMerchant(firstSubmatch(p.merchantPatterns, text)),
		MaskedCardLast4: firstSubmatch(p.cardPatterns, text),
		TransactionDate: parseDate(text, email.ReceivedDate, p.loc),
		TransactionTime: parseTime(text),
		BankName:        p.bank.Name,
		SourceSubject:   email.Subject,
		SourceSender:    email.From,
		SourceDate:      email.ReceivedDate,
		IsValid:         true,
	}
}
