package parser

import "time"

// NewHDFCParser handles HDFC Bank InstaAlerts
func NewHDFCParser(loc *time.Location) Parser {
	return newBankParser("HDFC", loc,
		[]string{
			`(?i)credit card ending\s*(\d{4})\b`,
			`(?i)card no\.?\s*[x*]+\s?(\d{4})\b`,
			`(?i)a/c\s*(?:no\.?\s*)?[x*]+(\d{4})\b`,
		},
		[]string{
			`(?i)\bat\s+(.+?)\s+on\s+\d`,
			`(?i)\bto\s+vpa\s+(\S+)`,
			`(?im)\binfo:\s*(.+?)(?:\.\s|\.$|$)`,
		},
	)
}
