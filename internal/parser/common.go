package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mail-txn-ingest-go/internal/model"
)

var (
	otpBodyPattern   = regexp.MustCompile(`(?i)\b(otp|one[\s-]?time[\s-]?password|verification code)\s*(is|:|for)\b`)
	promoBodyPattern = regexp.MustCompile(`(?i)\b(pre[\s-]?approved (?:offer|loan|limit)|apply now|limited[\s-]period offer|upgrade your card)\b`)
	verbPattern      = regexp.MustCompile(`(?i)\b(debited|spent|used|charged|paid|purchase|transaction|txn|withdrawn|credited|refund(?:ed)?|reversed)\b`)
	amountPattern    = regexp.MustCompile(`(?i)(?:\brs\.?|\binr|₹)\s*([0-9][0-9,]*(?:\.\d{1,2})?)`)
	creditPattern    = regexp.MustCompile(`(?i)\b(credited|refund(?:ed)?|reversed|reversal)\b`)
	debitPattern     = regexp.MustCompile(`(?i)\b(debited|spent|used|charged|purchase|withdrawn|paid)\b`)
	timePattern      = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)(?::([0-5]\d))?\b`)

	leadingVPAPattern = regexp.MustCompile(`(?i)^(?:vpa|upi)\b[\s:/-]*`)
	upiSeparators     = regexp.MustCompile(`[._\-]+`)
)

// Card patterns every strategy falls back to after its own
var genericCardPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[x*]{2,}\s?(\d{4})\b`),
	regexp.MustCompile(`(?i)\bending(?:\s+(?:with|in))?\s*[:\-]?\s*(\d{4})\b`),
}

// Merchant phrase shared by every strategy as its last option
var genericMerchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)\b(?:at|to|towards)\s+([A-Za-z][\w&.'@*/ \-]*?)(?:\s+(?:on|at|via|ref|for)\b|[,;]|\.\s|\.$|$)`),
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

const monthAlt = `(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*`

var (
	ymdPattern   = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`)
	dmyPattern   = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4}|\d{2})\b`)
	dMonYPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?[\s-]+` + monthAlt + `[\s,-]+(\d{4}|\d{2})\b`)
	monDYPattern = regexp.MustCompile(`(?i)\b` + monthAlt + `\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

// extractAmount returns the first currency-prefixed amount. Non-positive or unparsable values yield false.
func extractAmount(text string) (decimal.Decimal, bool) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

func firstSubmatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// NormalizeMerchant collapses whitespace, drops a leading VPA/UPI token, turns a UPI
// handle into words and title-cases the result.
func NormalizeMerchant(raw string) string {
	m := strings.Join(strings.Fields(raw), " ")
	m = strings.Trim(m, " .,:;-")
	m = leadingVPAPattern.ReplaceAllString(m, "")

	if at := strings.Index(m, "@"); at > 0 && !strings.Contains(m[:at], " ") {
		m = upiSeparators.ReplaceAllString(m[:at], " ")
		m = strings.Join(strings.Fields(m), " ")
	}

	if m == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(m))
}

// parseDate finds the first date in text. Without one it falls back to the received day in loc.
func parseDate(text string, received time.Time, loc *time.Location) time.Time {
	if m := ymdPattern.FindStringSubmatch(text); m != nil {
		if d, ok := buildDate(m[1], m[2], m[3], loc); ok {
			return d
		}
	}
	if m := dmyPattern.FindStringSubmatch(text); m != nil {
		if d, ok := buildDate(m[3], m[2], m[1], loc); ok {
			return d
		}
	}
	if m := dMonYPattern.FindStringSubmatch(text); m != nil {
		if d, ok := buildNamedDate(m[3], m[2], m[1], loc); ok {
			return d
		}
	}
	if m := monDYPattern.FindStringSubmatch(text); m != nil {
		if d, ok := buildNamedDate(m[3], m[1], m[2], loc); ok {
			return d
		}
	}
	return startOfDay(received, loc)
}

func buildDate(year, month, day string, loc *time.Location) (time.Time, bool) {
	m, err := strconv.Atoi(month)
	if err != nil {
		return time.Time{}, false
	}
	return validDate(year, time.Month(m), day, loc)
}

func buildNamedDate(year, month, day string, loc *time.Location) (time.Time, bool) {
	m, ok := monthNames[strings.ToLower(month)[:3]]
	if !ok {
		return time.Time{}, false
	}
	return validDate(year, m, day, loc)
}

func validDate(year string, month time.Month, day string, loc *time.Location) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	if len(year) == 2 {
		y += 2000
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, false
	}

	t := time.Date(y, month, d, 0, 0, 0, 0, loc)
	// time.Date normalizes out-of-range values; reject anything it had to move
	if t.Year() != y || t.Month() != month || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// parseTime returns HH:MM or HH:MM:SS as written, or ""
func parseTime(text string) string {
	m := timePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	hh := m[1]
	if len(hh) == 1 {
		hh = "0" + hh
	}
	if m[3] != "" {
		return hh + ":" + m[2] + ":" + m[3]
	}
	return hh + ":" + m[2]
}

func detectDirection(text string) model.Direction {
	if creditPattern.MatchString(text) && !debitPattern.MatchString(text) {
		return model.DirectionCredit
	}
	return model.DirectionDebit
}

func emailText(email model.RawEmail) string {
	body := email.Body
	if strings.TrimSpace(body) == "" {
		body = email.Snippet
	}
	return email.Subject + "\n" + body
}
