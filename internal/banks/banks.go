// Package banks is the directory of card issuers whose alert emails are ingested.
package banks

import (
	"net/mail"
	"strings"
)

// Bank describes an issuer and how its alert emails can be recognized
type Bank struct {
	Name    string
	Domains []string
	// Markers are lower-case phrases that identify the issuer in a body
	Markers []string
	// HintOnly issuers are recognized as senders but have no dedicated parser
	HintOnly bool
}

var directory = []Bank{
	{Name: "HDFC", Domains: []string{"hdfcbank.net", "hdfcbank.com"}, Markers: []string{"hdfc bank"}},
	{Name: "ICICI", Domains: []string{"icicibank.com"}, Markers: []string{"icici bank"}},
	{Name: "SBI Card", Domains: []string{"sbicard.com"}, Markers: []string{"sbi card", "sbi credit card"}},
	{Name: "Axis", Domains: []string{"axisbank.com"}, Markers: []string{"axis bank"}},
	{Name: "Kotak", Domains: []string{"kotak.com"}, Markers: []string{"kotak mahindra", "kotak bank"}},
	{Name: "American Express", Domains: []string{"americanexpress.com", "aexp.com"}, HintOnly: true},
	{Name: "Citi", Domains: []string{"citi.com", "citibank.com"}, HintOnly: true},
	{Name: "IndusInd", Domains: []string{"indusind.com"}, HintOnly: true},
	{Name: "Yes Bank", Domains: []string{"yesbank.in"}, HintOnly: true},
	{Name: "IDFC First", Domains: []string{"idfcfirstbank.com"}, HintOnly: true},
	{Name: "RBL", Domains: []string{"rblbank.com"}, HintOnly: true},
	{Name: "HSBC", Domains: []string{"hsbc.co.in"}, HintOnly: true},
	{Name: "Standard Chartered", Domains: []string{"sc.com"}, HintOnly: true},
}

// All returns the directory in its fixed order
func All() []Bank {
	out := make([]Bank, len(directory))
	copy(out, directory)
	return out
}

// Lookup finds a bank by name, ignoring case
func Lookup(name string) (Bank, bool) {
	for _, b := range directory {
		if strings.EqualFold(b.Name, name) {
			return b, true
		}
	}
	return Bank{}, false
}

// FromSender resolves the bank that owns the sender's domain or a parent domain
func FromSender(from string) (Bank, bool) {
	domain := SenderDomain(from)
	if domain == "" {
		return Bank{}, false
	}
	for _, b := range directory {
		if b.OwnsDomain(domain) {
			return b, true
		}
	}
	return Bank{}, false
}

// OwnsDomain reports whether domain is, or is a subdomain of, one of the bank's domains
func (b Bank) OwnsDomain(domain string) bool {
	domain = strings.ToLower(domain)
	for _, d := range b.Domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// TrustedDomains lists every sender domain in the directory
func TrustedDomains() []string {
	var out []string
	for _, b := range directory {
		out = append(out, b.Domains...)
	}
	return out
}

// SenderDomain extracts the lower-case domain from a From header value
func SenderDomain(from string) string {
	addr := strings.TrimSpace(from)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	} else if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(addr[at+1:], " >"))
}
