package mail

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"mail-txn-ingest-go/internal/banks"
	"mail-txn-ingest-go/internal/model"
)

// Retriever pulls candidate bank emails from one provider mailbox
type Retriever interface {
	Provider() model.Provider
	Fetch(ctx context.Context, accessToken string, daysBack int) ([]model.RawEmail, error)
}

// ProviderFetchError reports a failed list or get call. No partial batch accompanies it.
type ProviderFetchError struct {
	Provider model.Provider
	Op       string
	Err      error
}

func (e *ProviderFetchError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderFetchError) Unwrap() error {
	return e.Err
}

var deniedSubjectTerms = []string{"otp", "verification code", "one time password", "password"}

// Filter selects mail from trusted bank domains inside the lookback window
type Filter struct {
	Domains []string
	Cutoff  time.Time
}

// NewFilter builds a filter over every known bank domain
func NewFilter(daysBack int, now time.Time) Filter {
	return Filter{
		Domains: banks.TrustedDomains(),
		Cutoff:  now.AddDate(0, 0, -daysBack),
	}
}

// GmailQuery renders the filter in Gmail search syntax
func (f Filter) GmailQuery() string {
	terms := make([]string, len(deniedSubjectTerms))
	for i, t := range deniedSubjectTerms {
		if strings.Contains(t, " ") {
			t = `"` + t + `"`
		}
		terms[i] = t
	}
	return fmt.Sprintf("from:(%s) -subject:(%s) after:%d",
		strings.Join(f.Domains, " OR "), strings.Join(terms, " OR "), f.Cutoff.Unix())
}

// Matches applies the sender and subject rules client-side
func (f Filter) Matches(from, subject string) bool {
	domain := banks.SenderDomain(from)
	if domain == "" {
		return false
	}
	trusted := false
	for _, d := range f.Domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			trusted = true
			break
		}
	}
	if !trusted {
		return false
	}
	lower := strings.ToLower(subject)
	for _, term := range deniedSubjectTerms {
		if containsWord(lower, term) {
			return false
		}
	}
	return true
}

// containsWord matches term on word boundaries so "OTP" does not hit "footprint"
func containsWord(s, term string) bool {
	for idx := 0; ; {
		i := strings.Index(s[idx:], term)
		if i < 0 {
			return false
		}
		start, end := idx+i, idx+i+len(term)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

func sortByReceived(emails []model.RawEmail) {
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ReceivedDate.Before(emails[j].ReceivedDate)
	})
}
