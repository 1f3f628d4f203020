// Package parser turns bank alert emails into structured transactions using one
// strategy per issuer and a generic fallback.
package parser

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/model"
)

// Parser is one bank-specific parsing strategy
type Parser interface {
	BankName() string
	CanParse(email model.RawEmail) bool
	// Parse returns nil when the email cannot be turned into a valid transaction
	Parse(email model.RawEmail) *model.ParsedTransaction
}

// Registry holds strategies in priority order plus the generic fallback
type Registry struct {
	mu       sync.RWMutex
	parsers  []Parser
	fallback Parser
}

// NewRegistry creates a registry whose fallback resolves dates in loc
func NewRegistry(loc *time.Location, parsers ...Parser) *Registry {
	return &Registry{
		parsers:  parsers,
		fallback: NewGenericParser(loc),
	}
}

// DefaultRegistry registers every supported issuer
func DefaultRegistry(loc *time.Location) *Registry {
	return NewRegistry(loc,
		NewHDFCParser(loc),
		NewICICIParser(loc),
		NewSBICardParser(loc),
		NewAxisParser(loc),
		NewKotakParser(loc),
	)
}

// Register appends a strategy after the existing ones
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers = append(r.parsers, p)
}

// FindParser returns the first strategy that accepts the email, then the fallback, or nil
func (r *Registry) FindParser(email model.RawEmail) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.parsers {
		if p.CanParse(email) {
			return p
		}
	}
	if r.fallback.CanParse(email) {
		return r.fallback
	}
	return nil
}

// Parse tries every accepting strategy in order and returns the first valid result.
// A strategy that returns nil or panics hands over to the next one.
func (r *Registry) Parse(email model.RawEmail) *model.ParsedTransaction {
	r.mu.RLock()
	candidates := make([]Parser, 0, len(r.parsers)+1)
	for _, p := range r.parsers {
		if p.CanParse(email) {
			candidates = append(candidates, p)
		}
	}
	r.mu.RUnlock()

	if r.fallback.CanParse(email) {
		candidates = append(candidates, r.fallback)
	}

	for _, p := range candidates {
		parsed, err := safeParse(p, email)
		if err != nil {
			logrus.WithFields(logrus.Fields{"parser": p.BankName(), "message_id": email.MessageID}).
				Warnf("Parser failed, trying next: %v", err)
			continue
		}
		if parsed != nil && parsed.IsValid {
			return parsed
		}
	}
	return nil
}

// SupportedBanks lists registered issuers in order. The fallback is not included.
func (r *Registry) SupportedBanks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.parsers))
	for _, p := range r.parsers {
		names = append(names, p.BankName())
	}
	return names
}

func safeParse(p Parser, email model.RawEmail) (parsed *model.ParsedTransaction, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			parsed = nil
			err = fmt.Errorf("panic in %s parser: %v", p.BankName(), rec)
		}
	}()
	return p.Parse(email), nil
}
