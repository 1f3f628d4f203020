package parser

import "time"

// NewKotakParser handles Kotak Mahindra Bank card alerts
func NewKotakParser(loc *time.Location) Parser {
	return newBankParser("Kotak", loc,
		[]string{
			`(?i)credit card [x*]+(\d{4})\b`,
			`(?i)card ending\s*(\d{4})\b`,
		},
		[]string{
			`(?i)\bat\s+(.+?)\s+on\s+\d`,
			`(?i)\btowards\s+(.+?)(?:\s+on\b|\.\s|\.$)`,
		},
	)
}
