package parser

import "time"

// NewAxisParser handles Axis Bank card alerts
func NewAxisParser(loc *time.Location) Parser {
	return newBankParser("Axis", loc,
		[]string{
			`(?i)card no\.?\s*[x*]+(\d{4})\b`,
			`(?i)credit card (?:no\.?\s*)?[x*]+(\d{4})\b`,
		},
		[]string{
			`(?im)^\s*merchant(?: name)?\s*:\s*(.+?)\s*$`,
			`(?i)\bat\s+(.+?)\s+on\s+\d`,
		},
	)
}
