package parser

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mail-txn-ingest-go/internal/banks"
	"mail-txn-ingest-go/internal/model"
)

var (
	cardKeywordPattern = regexp.MustCompile(`(?i)\bcredit[\s-]?card\b|\bcard\s+(?:ending|no\b|number|[x*]{2,})`)
	bankNamePattern    = regexp.MustCompile(`\b([A-Z][A-Za-z]+)\s+Bank\b`)
)

// GenericParser accepts any card alert with an amount and a transaction verb. It never
// reports CREDIT.
type GenericParser struct {
	loc *time.Location
}

func NewGenericParser(loc *time.Location) *GenericParser {
	return &GenericParser{loc: loc}
}

func (p *GenericParser) BankName() string {
	return "Generic"
}

func (p *GenericParser) CanParse(email model.RawEmail) bool {
	text := emailText(email)
	if !cardKeywordPattern.MatchString(text) || !verbPattern.MatchString(text) {
		return false
	}
	_, ok := extractAmount(text)
	return ok
}

func (p *GenericParser) Parse(email model.RawEmail) *model.ParsedTransaction {
	text := emailText(email)
	if otpBodyPattern.MatchString(text) {
		return nil
	}

	amount, ok := extractAmount(text)
	if !ok {
		return nil
	}

	return &model.ParsedTransaction{
		Amount:          amount,
		Direction:       model.DirectionDebit,
		MerchantName:    NormalizeMerchant(firstSubmatch(genericMerchantPatterns, text)),
		MaskedCardLast4: firstSubmatch(genericCardPatterns, text),
		TransactionDate: parseDate(text, email.ReceivedDate, p.loc),
		TransactionTime: parseTime(text),
		BankName:        resolveBankName(email.From, text),
		SourceSubject:   email.Subject,
		SourceSender:    email.From,
		SourceDate:      email.ReceivedDate,
		IsValid:         true,
	}
}

// resolveBankName tries the sender directory, then a "<Name> Bank" phrase, then the sender domain
func resolveBankName(from, text string) string {
	if b, ok := banks.FromSender(from); ok {
		return b.Name
	}
	if m := bankNamePattern.FindStringSubmatch(text); m != nil && !strings.EqualFold(m[1], "your") {
		return m[1]
	}

	domain := banks.SenderDomain(from)
	if domain == "" {
		return "Unknown"
	}
	label := strings.Split(domain, ".")[0]
	return cases.Title(language.English).String(label)
}
