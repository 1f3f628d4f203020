package model

import "strings"

// Provider identifies a connected mailbox provider
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

// ParseProvider maps a path or query value to a known provider
func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderGmail:
		return ProviderGmail, true
	case ProviderOutlook:
		return ProviderOutlook, true
	}
	return "", false
}

func (p Provider) String() string {
	return string(p)
}

// Source is the Transaction.Source value for rows created from this provider's mail
func (p Provider) Source() string {
	return "email:" + string(p)
}
