package parser

import "time"

// NewSBICardParser handles SBI Card transaction alerts
func NewSBICardParser(loc *time.Location) Parser {
	return newBankParser("SBI Card", loc,
		[]string{
			`(?i)sbi (?:credit )?card ending(?:\s+with)?\s*(\d{4})\b`,
			`(?i)card ending(?:\s+with)?\s*(\d{4})\b`,
		},
		[]string{
			`(?i)\bat\s+(.+?)\s+on\s+\d`,
			`(?i)\bspent\s+.*?\bat\s+(.+?)(?:\s+on\b|\.\s|\.$)`,
		},
	)
}
