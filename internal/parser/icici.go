package parser

import "time"

// NewICICIParser handles ICICI Bank credit card alerts
func NewICICIParser(loc *time.Location) Parser {
	return newBankParser("ICICI", loc,
		[]string{
			`(?i)card (?:account )?[x*]+(\d{4})\b`,
			`(?i)card no\.?\s*[x*]*(\d{4})\b`,
		},
		[]string{
			`(?im)\binfo:\s*(.+?)(?:\.\s|\.$|$)`,
			`(?i)\bat\s+(.+?)\s+on\s+\d`,
			`(?i)\bon\s+\S+\s+on\s+(.+?)\.\s`,
		},
	)
}
