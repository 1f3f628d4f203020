package materializer

import (
	"context"
	"strings"

	"mail-txn-ingest-go/internal/model"
)

// InstrumentFinder looks up a user's registered cards
type InstrumentFinder interface {
	FindInstrumentsByBank(ctx context.Context, userID, bankName, last4 string) ([]model.CreditInstrument, error)
	FindInstrumentsLikeBank(ctx context.Context, userID, bankName, last4 string) ([]model.CreditInstrument, error)
}

// Matcher resolves a parsed transaction to one of the user's credit instruments
type Matcher struct {
	finder InstrumentFinder
}

func NewMatcher(finder InstrumentFinder) *Matcher {
	return &Matcher{finder: finder}
}

// Match tries an exact bank name, then a partial one. With last4 the first hit wins;
// without it the bank must identify a single card. No match returns nil without error.
func (m *Matcher) Match(ctx context.Context, userID, bankName, last4 string) (*model.CreditInstrument, error) {
	bankName = strings.TrimSpace(bankName)
	if bankName == "" {
		return nil, nil
	}

	lookups := []func(context.Context, string, string, string) ([]model.CreditInstrument, error){
		m.finder.FindInstrumentsByBank,
		m.finder.FindInstrumentsLikeBank,
	}

	for _, lookup := range lookups {
		instruments, err := lookup(ctx, userID, bankName, last4)
		if err != nil {
			return nil, err
		}
		if pick := choose(instruments, last4); pick != nil {
			return pick, nil
		}
	}
	return nil, nil
}

func choose(instruments []model.CreditInstrument, last4 string) *model.CreditInstrument {
	if len(instruments) == 0 {
		return nil
	}
	if last4 == "" && len(instruments) > 1 {
		return nil
	}
	inst := instruments[0]
	return &inst
}
